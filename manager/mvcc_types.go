package manager

import (
	"time"

	"github.com/snapviewdb/snapview/mvcc"
)

// MVCCStats MVCC统计信息
type MVCCStats struct {
	ActiveTransactions int        // 活跃事务数
	OpenReadViews      int        // 打开的读视图数
	NextTrxID          mvcc.TrxID // 下一个将分配的事务ID
	ActiveRWTrxs       int        // 活跃读写事务数
	PurgeBoundaryNo    mvcc.TrxID // 当前purge可清理边界（序列化号）
}

// PurgeStats purge统计信息
type PurgeStats struct {
	LastRunTime     time.Time     // 最后一次运行时间
	Runs            uint64        // 累计运行次数
	BoundaryNo      mvcc.TrxID    // 当前purge边界
	BoundaryAdvance uint64        // 边界累计推进量
	Duration        time.Duration // 最后一次运行耗时
}

// TxState 事务状态
type TxState int

const (
	TxStateActive TxState = iota
	TxStateCommitting
	TxStateCommitted
	TxStateRollback
)

// TransactionInfo 事务信息
type TransactionInfo struct {
	ID        mvcc.TrxID          // 事务ID
	StartTime time.Time           // 开始时间
	Trx       *mvcc.Trx           // 可见性子系统侧的事务对象
	State     TxState             // 当前状态
	Isolation mvcc.IsolationLevel // 隔离级别
}

// MVCCConfig MVCC管理器配置
type MVCCConfig struct {
	// TxTimeout 事务超时时间，超时的事务由清理例程回滚
	TxTimeout time.Duration

	// MaxActiveTxs 最大活跃事务数
	MaxActiveTxs int

	// ReadOnly 只读模式，不创建读视图
	ReadOnly bool

	// ValidateViews 每次视图注册表变更后自动校验有序性
	ValidateViews bool
}
