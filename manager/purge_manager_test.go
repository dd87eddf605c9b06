package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapviewdb/snapview/mvcc"
)

func TestPurgeBoundaryAdvance(t *testing.T) {
	m := newTestManager()
	p := NewPurgeManager(m.Views(), time.Hour)

	// 空注册表：边界等于当前计数器
	b1, err := p.RunOnce()
	require.NoError(t, err)
	assert.Equal(t, mvcc.TrxID(1), b1)

	// 首次运行只建立基线，不计入推进量
	first := p.Stats()
	assert.Equal(t, uint64(1), first.Runs)
	assert.Equal(t, b1, first.BoundaryNo)
	assert.Equal(t, uint64(0), first.BoundaryAdvance)

	// 活跃事务钉住边界
	txID, err := m.BeginTransaction(mvcc.LevelRepeatableRead)
	require.NoError(t, err)

	b2, err := p.RunOnce()
	require.NoError(t, err)
	assert.Equal(t, mvcc.TrxID(2), b2)

	// 提交后边界继续推进
	require.NoError(t, m.CommitTransaction(txID))

	b3, err := p.RunOnce()
	require.NoError(t, err)
	assert.Greater(t, uint64(b3), uint64(b2))

	stats := p.Stats()
	assert.Equal(t, uint64(3), stats.Runs)
	assert.Equal(t, b3, stats.BoundaryNo)
	assert.Equal(t, uint64(b3-b1), stats.BoundaryAdvance)
	assert.False(t, stats.LastRunTime.IsZero())
}

func TestPurgeConservatism(t *testing.T) {
	m := newTestManager()
	p := NewPurgeManager(m.Views(), time.Hour)

	tx1, err := m.BeginTransaction(mvcc.LevelRepeatableRead)
	require.NoError(t, err)
	tx2, err := m.BeginTransaction(mvcc.LevelRepeatableRead)
	require.NoError(t, err)

	boundary, err := p.RunOnce()
	require.NoError(t, err)

	// 边界不大于任何打开视图的lowLimitNo
	for _, txID := range []mvcc.TrxID{tx1, tx2} {
		view, err := m.GetTransactionReadView(txID)
		require.NoError(t, err)
		assert.LessOrEqual(t, uint64(boundary), uint64(view.GetLowLimitNo()))
	}

	// 最老事务提交前边界不会前移
	require.NoError(t, m.CommitTransaction(tx2))
	again, err := p.RunOnce()
	require.NoError(t, err)
	assert.Equal(t, boundary, again)

	require.NoError(t, m.CommitTransaction(tx1))
}

func TestPurgeStartStop(t *testing.T) {
	m := newTestManager()
	p := NewPurgeManager(m.Views(), 5*time.Millisecond)

	p.Start(context.Background())
	// 重复Start无副作用
	p.Start(context.Background())

	time.Sleep(40 * time.Millisecond)
	p.Stop()
	// 重复Stop无副作用
	p.Stop()

	stats := p.Stats()
	assert.GreaterOrEqual(t, stats.Runs, uint64(1))
}
