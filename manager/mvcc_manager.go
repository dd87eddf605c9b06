package manager

import (
	"errors"
	"strconv"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/snapviewdb/snapview/logger"
	"github.com/snapviewdb/snapview/mvcc"
)

var (
	ErrTooManyTransactions = errors.New("too many active transactions")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrReadOnlyMode        = errors.New("server is in read-only mode")
)

// MVCCManager MVCC管理器
// 负责事务生命周期与读视图注册表的衔接：
// Begin分配事务ID并打开读视图，Commit/Rollback关闭并释放。
// 活跃事务表使用分片并发map，可见性查询不与Begin/Commit争锁
type MVCCManager struct {
	sync.Mutex // 串行化Begin/Commit/Rollback

	// 事务系统全局状态
	sys *mvcc.TrxSys

	// 读视图注册表
	views *mvcc.MVCC

	// 活跃事务表
	activeTxs cmap.ConcurrentMap[string, *TransactionInfo]

	// 配置
	config *MVCCConfig
}

// NewMVCCManager 创建MVCC管理器
func NewMVCCManager(config *MVCCConfig) *MVCCManager {
	sys := mvcc.NewTrxSys(1)
	return &MVCCManager{
		sys: sys,
		views: mvcc.NewMVCC(sys, mvcc.Options{
			ReadOnly:      config.ReadOnly,
			ValidateViews: config.ValidateViews,
		}),
		activeTxs: cmap.New[*TransactionInfo](),
		config:    config,
	}
}

// BeginTransaction 开始事务，返回分配的事务ID
func (m *MVCCManager) BeginTransaction(level mvcc.IsolationLevel) (mvcc.TrxID, error) {
	m.Lock()
	defer m.Unlock()

	// 检查活跃事务数
	if m.activeTxs.Count() >= m.config.MaxActiveTxs {
		return 0, ErrTooManyTransactions
	}

	txID := m.sys.AllocateTrxID()
	trx := &mvcc.Trx{ID: txID}

	// 读未提交不做可见性过滤，无需读视图
	if level != mvcc.LevelReadUncommitted {
		if err := m.views.ViewOpen(trx); err != nil {
			m.sys.Abort(txID)
			return 0, err
		}
	}

	m.activeTxs.Set(txKey(txID), &TransactionInfo{
		ID:        txID,
		StartTime: time.Now(),
		Trx:       trx,
		State:     TxStateActive,
		Isolation: level,
	})

	logger.Debugf("begin transaction %d isolation=%s", txID, level)
	return txID, nil
}

// CommitTransaction 提交事务
func (m *MVCCManager) CommitTransaction(txID mvcc.TrxID) error {
	m.Lock()
	defer m.Unlock()

	tx, ok := m.activeTxs.Get(txKey(txID))
	if !ok {
		return ErrTransactionNotFound
	}

	tx.State = TxStateCommitting

	// 分配序列化号并登记等待，期间任何新建视图的purge边界都不会越过它
	no := m.sys.BeginCommit(tx.ID)
	m.views.ViewClose(tx.Trx)
	m.sys.EndCommit(tx.ID, no)

	tx.State = TxStateCommitted

	// 事务彻底销毁，视图从注册表摘除
	m.views.ViewRelease(tx.Trx)
	m.activeTxs.Remove(txKey(txID))

	logger.Debugf("commit transaction %d serialisation_no=%d", txID, no)
	return nil
}

// RollbackTransaction 回滚事务
func (m *MVCCManager) RollbackTransaction(txID mvcc.TrxID) error {
	m.Lock()
	defer m.Unlock()

	tx, ok := m.activeTxs.Get(txKey(txID))
	if !ok {
		return ErrTransactionNotFound
	}

	tx.State = TxStateRollback

	m.views.ViewClose(tx.Trx)
	m.sys.Abort(tx.ID)

	m.views.ViewRelease(tx.Trx)
	m.activeTxs.Remove(txKey(txID))

	logger.Debugf("rollback transaction %d", txID)
	return nil
}

// GetTransactionReadView 获取事务的ReadView
// 读已提交隔离级别下每次调用都刷新快照。
// 调用方约定：同一事务同一时刻只由一个worker驱动，
// 快照刷新不与同事务的并发读串行化
func (m *MVCCManager) GetTransactionReadView(txID mvcc.TrxID) (*mvcc.ReadView, error) {
	tx, ok := m.activeTxs.Get(txKey(txID))
	if !ok {
		return nil, ErrTransactionNotFound
	}

	if tx.Isolation == mvcc.LevelReadCommitted {
		if err := m.refreshReadView(tx); err != nil {
			return nil, err
		}
	}

	return &tx.Trx.ReadView, nil
}

// IsVisible 判断version对应版本对事务txID是否可见
func (m *MVCCManager) IsVisible(txID, version mvcc.TrxID) (bool, error) {
	tx, ok := m.activeTxs.Get(txKey(txID))
	if !ok {
		return false, ErrTransactionNotFound
	}

	// 读未提交：所有版本一律可见
	if tx.Isolation == mvcc.LevelReadUncommitted {
		return true, nil
	}

	view, err := m.GetTransactionReadView(txID)
	if err != nil {
		return false, err
	}

	return view.ChangesVisible(version), nil
}

// refreshReadView 关闭并重开事务的读视图，生成新快照
func (m *MVCCManager) refreshReadView(tx *TransactionInfo) error {
	m.views.ViewClose(tx.Trx)
	return m.views.ViewOpen(tx.Trx)
}

// CleanupExpiredTransactions 清理超时事务，返回回滚的事务数
func (m *MVCCManager) CleanupExpiredTransactions() int {
	now := time.Now()
	cleaned := 0

	for item := range m.activeTxs.IterBuffered() {
		tx := item.Val
		if now.Sub(tx.StartTime) > m.config.TxTimeout {
			logger.Warnf("transaction %d timed out after %s, rolling back",
				tx.ID, now.Sub(tx.StartTime))
			if err := m.RollbackTransaction(tx.ID); err == nil {
				cleaned++
			}
		}
	}
	return cleaned
}

// GetActiveTransactionCount 获取活跃事务数
func (m *MVCCManager) GetActiveTransactionCount() int {
	return m.activeTxs.Count()
}

// GetTransactionState 获取事务状态
func (m *MVCCManager) GetTransactionState(txID mvcc.TrxID) (TxState, error) {
	tx, ok := m.activeTxs.Get(txKey(txID))
	if !ok {
		return TxStateRollback, ErrTransactionNotFound
	}
	return tx.State, nil
}

// Views 读视图注册表，供purge协调器使用
func (m *MVCCManager) Views() *mvcc.MVCC {
	return m.views
}

// TrxSys 事务系统状态句柄
func (m *MVCCManager) TrxSys() *mvcc.TrxSys {
	return m.sys
}

// Stats 当前统计信息快照
func (m *MVCCManager) Stats() MVCCStats {
	stats := MVCCStats{
		ActiveTransactions: m.activeTxs.Count(),
		OpenReadViews:      m.views.Size(),
		NextTrxID:          m.sys.MaxTrxID(),
		ActiveRWTrxs:       m.sys.ActiveRWCount(),
	}

	// 只读边界值，不做完整克隆
	if no, err := m.views.OldestViewLowLimitNo(); err == nil {
		stats.PurgeBoundaryNo = no
	}
	return stats
}

// txKey 活跃事务表的键
func txKey(txID mvcc.TrxID) string {
	return strconv.FormatUint(uint64(txID), 10)
}
