package manager

import (
	"context"
	"sync"
	"time"

	"github.com/snapviewdb/snapview/logger"
	"github.com/snapviewdb/snapview/mvcc"
)

// PurgeManager purge协调器
// 周期性克隆最老的打开读视图，以其lowLimitNo作为可清理边界：
// 序列化号小于边界的事务产生的废弃版本可以安全丢弃。
// 边界只会偏保守（偏旧），绝不会越过任何活跃视图，
// 因此任何活跃视图还能看到的版本都不会被清除
type PurgeManager struct {
	sync.Mutex

	views    *mvcc.MVCC
	interval time.Duration

	stats PurgeStats

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPurgeManager 创建purge协调器
func NewPurgeManager(views *mvcc.MVCC, interval time.Duration) *PurgeManager {
	return &PurgeManager{
		views:    views,
		interval: interval,
	}
}

// Start 启动后台purge循环
func (p *PurgeManager) Start(ctx context.Context) {
	p.Lock()
	defer p.Unlock()

	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(ctx)
	logger.Infof("purge manager started, interval=%s", p.interval)
}

// Stop 停止后台purge循环并等待退出
func (p *PurgeManager) Stop() {
	p.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logger.Infof("purge manager stopped")
}

func (p *PurgeManager) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.RunOnce(); err != nil {
				logger.Errorf("purge run failed: %v", err)
			}
		}
	}
}

// RunOnce 执行一轮purge边界推进，返回新的边界
func (p *PurgeManager) RunOnce() (mvcc.TrxID, error) {
	start := time.Now()

	var view mvcc.ReadView
	if err := p.views.CloneOldestView(&view); err != nil {
		return 0, err
	}
	boundary := view.GetLowLimitNo()

	p.Lock()
	defer p.Unlock()

	if p.stats.Runs == 0 {
		// 首次观测只建立基线，推进量从这之后开始累计
		p.stats.BoundaryNo = boundary
	} else if boundary > p.stats.BoundaryNo {
		p.stats.BoundaryAdvance += uint64(boundary - p.stats.BoundaryNo)
		p.stats.BoundaryNo = boundary
	}
	p.stats.Runs++
	p.stats.LastRunTime = start
	p.stats.Duration = time.Since(start)

	logger.Debugf("purge boundary at %d, %d ids still active in oldest view",
		boundary, len(view.GetActiveIDs()))
	return p.stats.BoundaryNo, nil
}

// Stats purge统计信息快照
func (p *PurgeManager) Stats() PurgeStats {
	p.Lock()
	defer p.Unlock()
	return p.stats
}
