package mvcc

import "strconv"

// IsolationLevel 事务隔离级别
//
// 可重复读隔离级别 -> 仅在事务首次一致性读时创建一次ReadView
// 读已提交隔离级别 -> 每次进行快照读时重新创建ReadView
// 读未提交隔离级别 -> 不做可见性过滤
//
// See https://en.wikipedia.org/wiki/Isolation_(database_systems)#Isolation_levels.
type IsolationLevel int

const (
	LevelDefault IsolationLevel = iota
	LevelReadUncommitted
	LevelReadCommitted
	LevelRepeatableRead
	LevelSerializable
)

// String returns the name of the transaction isolation level.
func (i IsolationLevel) String() string {
	switch i {
	case LevelDefault:
		return "Default"
	case LevelReadUncommitted:
		return "Read Uncommitted"
	case LevelReadCommitted:
		return "Read Committed"
	case LevelRepeatableRead:
		return "Repeatable Read"
	case LevelSerializable:
		return "Serializable"
	default:
		return "IsolationLevel(" + strconv.Itoa(int(i)) + ")"
	}
}

// TrxState 事务状态
//
// Valid state transitions are:
//
//	Regular transactions:
//	* NOT_STARTED -> ACTIVE -> COMMITTED -> NOT_STARTED
//
//	Auto-commit non-locking read-only:
//	* NOT_STARTED -> ACTIVE -> NOT_STARTED
type TrxState int

const (
	TrxStateNotStarted TrxState = iota
	TrxStateActive
	TrxStateCommitted
)

func (t TrxState) String() string {
	switch t {
	case TrxStateNotStarted:
		return "trx_state_not_started"
	case TrxStateActive:
		return "trx_state_active"
	case TrxStateCommitted:
		return "trx_state_committed"
	}
	return "trx_state_unknown"
}
