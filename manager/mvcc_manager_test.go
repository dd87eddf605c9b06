package manager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapviewdb/snapview/mvcc"
)

func newTestManager() *MVCCManager {
	return NewMVCCManager(&MVCCConfig{
		TxTimeout:     time.Minute,
		MaxActiveTxs:  64,
		ValidateViews: true,
	})
}

func TestTransactionLifecycle(t *testing.T) {
	m := newTestManager()

	t.Run("提交流程测试", func(t *testing.T) {
		txID, err := m.BeginTransaction(mvcc.LevelRepeatableRead)
		require.NoError(t, err)
		require.NotZero(t, txID)

		state, err := m.GetTransactionState(txID)
		require.NoError(t, err)
		assert.Equal(t, TxStateActive, state)
		assert.Equal(t, 1, m.GetActiveTransactionCount())
		assert.Equal(t, 1, m.Views().Size())

		require.NoError(t, m.CommitTransaction(txID))
		assert.Equal(t, 0, m.GetActiveTransactionCount())
		assert.Equal(t, 0, m.Views().Size())

		_, err = m.GetTransactionState(txID)
		assert.Equal(t, ErrTransactionNotFound, err)
	})

	t.Run("回滚流程测试", func(t *testing.T) {
		txID, err := m.BeginTransaction(mvcc.LevelRepeatableRead)
		require.NoError(t, err)

		require.NoError(t, m.RollbackTransaction(txID))
		assert.Equal(t, 0, m.GetActiveTransactionCount())
		assert.Equal(t, 0, m.TrxSys().ActiveRWCount())
	})

	t.Run("未知事务操作报错", func(t *testing.T) {
		assert.Equal(t, ErrTransactionNotFound, m.CommitTransaction(9999))
		assert.Equal(t, ErrTransactionNotFound, m.RollbackTransaction(9999))
		_, err := m.IsVisible(9999, 1)
		assert.Equal(t, ErrTransactionNotFound, err)
	})
}

func TestVisibilityBetweenTransactions(t *testing.T) {
	m := newTestManager()

	tx1, err := m.BeginTransaction(mvcc.LevelRepeatableRead)
	require.NoError(t, err)
	tx2, err := m.BeginTransaction(mvcc.LevelRepeatableRead)
	require.NoError(t, err)

	t.Run("未提交的并发事务互不可见", func(t *testing.T) {
		vis, err := m.IsVisible(tx2, tx1)
		require.NoError(t, err)
		assert.False(t, vis)

		vis, err = m.IsVisible(tx1, tx2)
		require.NoError(t, err)
		assert.False(t, vis)
	})

	t.Run("自己的修改自己可见", func(t *testing.T) {
		vis, err := m.IsVisible(tx1, tx1)
		require.NoError(t, err)
		assert.True(t, vis)
	})

	t.Run("可重复读快照不随提交改变", func(t *testing.T) {
		require.NoError(t, m.CommitTransaction(tx1))

		// tx2的快照建立于tx1提交之前
		vis, err := m.IsVisible(tx2, tx1)
		require.NoError(t, err)
		assert.False(t, vis)
	})

	t.Run("提交后对新事务可见", func(t *testing.T) {
		tx3, err := m.BeginTransaction(mvcc.LevelRepeatableRead)
		require.NoError(t, err)

		vis, err := m.IsVisible(tx3, tx1)
		require.NoError(t, err)
		assert.True(t, vis)

		// tx2仍活跃，对tx3不可见
		vis, err = m.IsVisible(tx3, tx2)
		require.NoError(t, err)
		assert.False(t, vis)
	})
}

func TestIsolationLevels(t *testing.T) {
	t.Run("读已提交每次读取刷新快照", func(t *testing.T) {
		m := newTestManager()

		txA, err := m.BeginTransaction(mvcc.LevelReadCommitted)
		require.NoError(t, err)
		txB, err := m.BeginTransaction(mvcc.LevelRepeatableRead)
		require.NoError(t, err)

		vis, err := m.IsVisible(txA, txB)
		require.NoError(t, err)
		assert.False(t, vis)

		require.NoError(t, m.CommitTransaction(txB))

		vis, err = m.IsVisible(txA, txB)
		require.NoError(t, err)
		assert.True(t, vis)
	})

	t.Run("可重复读快照固定", func(t *testing.T) {
		m := newTestManager()

		txA, err := m.BeginTransaction(mvcc.LevelRepeatableRead)
		require.NoError(t, err)
		txB, err := m.BeginTransaction(mvcc.LevelRepeatableRead)
		require.NoError(t, err)

		require.NoError(t, m.CommitTransaction(txB))

		vis, err := m.IsVisible(txA, txB)
		require.NoError(t, err)
		assert.False(t, vis)
	})

	t.Run("读未提交全部可见", func(t *testing.T) {
		m := newTestManager()

		txA, err := m.BeginTransaction(mvcc.LevelReadUncommitted)
		require.NoError(t, err)
		txB, err := m.BeginTransaction(mvcc.LevelRepeatableRead)
		require.NoError(t, err)

		vis, err := m.IsVisible(txA, txB)
		require.NoError(t, err)
		assert.True(t, vis)
	})
}

func TestTransactionLimits(t *testing.T) {
	m := NewMVCCManager(&MVCCConfig{
		TxTimeout:    time.Minute,
		MaxActiveTxs: 1,
	})

	txID, err := m.BeginTransaction(mvcc.LevelRepeatableRead)
	require.NoError(t, err)

	_, err = m.BeginTransaction(mvcc.LevelRepeatableRead)
	assert.Equal(t, ErrTooManyTransactions, err)

	require.NoError(t, m.CommitTransaction(txID))
	_, err = m.BeginTransaction(mvcc.LevelRepeatableRead)
	assert.NoError(t, err)
}

func TestCleanupExpiredTransactions(t *testing.T) {
	m := NewMVCCManager(&MVCCConfig{
		TxTimeout:    10 * time.Millisecond,
		MaxActiveTxs: 64,
	})

	_, err := m.BeginTransaction(mvcc.LevelRepeatableRead)
	require.NoError(t, err)
	_, err = m.BeginTransaction(mvcc.LevelRepeatableRead)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	cleaned := m.CleanupExpiredTransactions()
	assert.Equal(t, 2, cleaned)
	assert.Equal(t, 0, m.GetActiveTransactionCount())
	assert.Equal(t, 0, m.TrxSys().ActiveRWCount())
}

func TestManagerStats(t *testing.T) {
	m := newTestManager()

	tx1, err := m.BeginTransaction(mvcc.LevelRepeatableRead)
	require.NoError(t, err)
	_, err = m.BeginTransaction(mvcc.LevelRepeatableRead)
	require.NoError(t, err)

	stats := m.Stats()
	assert.Equal(t, 2, stats.ActiveTransactions)
	assert.Equal(t, 2, stats.OpenReadViews)
	assert.Equal(t, 2, stats.ActiveRWTrxs)
	assert.GreaterOrEqual(t, uint64(stats.NextTrxID), uint64(3))

	// purge边界不大于最老打开视图的边界
	oldest := &mvcc.ReadView{}
	require.NoError(t, m.Views().CloneOldestView(oldest))
	assert.Equal(t, oldest.GetLowLimitNo(), stats.PurgeBoundaryNo)

	require.NoError(t, m.CommitTransaction(tx1))
}
