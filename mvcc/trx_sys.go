package mvcc

import (
	"sort"
	"sync"
)

// TrxSys 事务系统全局状态
//
// 在InnoDB中，每次开启一个事务时，都会为该session分配一个事务对象。
// 而为了对全局所有的事务进行控制和协调，有一个全局对象trx_sys，
// 对trx_sys相关成员的操作需要trx_sys->mutex锁。
// 这里把它改造成显式传递的句柄对象：计数器、活跃读写事务列表、
// 序列化等待列表以及视图注册表的变更，全部串行化在唯一的mu上。
type TrxSys struct {
	mu sync.Mutex

	// maxTrxID 将分配给下一个事务的ID，只增不减；0保留表示"无事务"
	maxTrxID TrxID

	// rwTrxIDs 当前活跃的读写事务ID，升序去重
	rwTrxIDs []TrxID

	// serialisation 已分配序列化号但尚未完成提交落盘的事务序列化号，升序
	// 最老的等待者决定purge边界能压到多低
	serialisation []TrxID
}

// NewTrxSys 创建事务系统状态，nextTrxID为恢复后首个可分配的事务ID(>=1)
func NewTrxSys(nextTrxID TrxID) *TrxSys {
	if nextTrxID == 0 {
		nextTrxID = 1
	}
	return &TrxSys{maxTrxID: nextTrxID}
}

// AllocateTrxID 分配一个读写事务ID并登记进活跃列表
func (s *TrxSys) AllocateTrxID() TrxID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.maxTrxID
	s.maxTrxID++
	// ID单调递增，追加即保持升序
	s.rwTrxIDs = append(s.rwTrxIDs, id)
	return id
}

// MaxTrxID 当前将分配给下一个事务的ID
func (s *TrxSys) MaxTrxID() TrxID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxTrxID
}

// ActiveRWTrxIDs 活跃读写事务ID列表的快照副本，升序去重
func (s *TrxSys) ActiveRWTrxIDs() []TrxID {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]TrxID, len(s.rwTrxIDs))
	copy(ids, s.rwTrxIDs)
	return ids
}

// ActiveRWCount 活跃读写事务数
func (s *TrxSys) ActiveRWCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rwTrxIDs)
}

// BeginCommit 提交第一阶段：为事务分配序列化号并登记等待列表
// 序列化号与事务ID取自同一计数器，因此全局可比
func (s *TrxSys) BeginCommit(id TrxID) TrxID {
	s.mu.Lock()
	defer s.mu.Unlock()

	no := s.maxTrxID
	s.maxTrxID++
	s.serialisation = append(s.serialisation, no)
	return no
}

// EndCommit 提交第二阶段：序列化号对外定型后，
// 移除等待记录并从活跃列表注销事务ID
func (s *TrxSys) EndCommit(id, no TrxID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeSerialisation(no)
	s.removeRWTrxID(id)
}

// Abort 回滚：事务没有序列化号，直接从活跃列表注销
func (s *TrxSys) Abort(id TrxID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeRWTrxID(id)
}

// OldestPendingSerialisationNo 最老的尚未定型的序列化号
// 没有等待者时第二个返回值为false
func (s *TrxSys) OldestPendingSerialisationNo() (TrxID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.oldestSerialisationNo()
}

// oldestSerialisationNo 持锁调用
func (s *TrxSys) oldestSerialisationNo() (TrxID, bool) {
	if len(s.serialisation) == 0 {
		return 0, false
	}
	return s.serialisation[0], true
}

// removeRWTrxID 持锁调用，二分定位后原地删除
func (s *TrxSys) removeRWTrxID(id TrxID) {
	i := sort.Search(len(s.rwTrxIDs), func(k int) bool { return s.rwTrxIDs[k] >= id })
	if i < len(s.rwTrxIDs) && s.rwTrxIDs[i] == id {
		s.rwTrxIDs = append(s.rwTrxIDs[:i], s.rwTrxIDs[i+1:]...)
	}
}

// removeSerialisation 持锁调用
func (s *TrxSys) removeSerialisation(no TrxID) {
	i := sort.Search(len(s.serialisation), func(k int) bool { return s.serialisation[k] >= no })
	if i < len(s.serialisation) && s.serialisation[i] == no {
		s.serialisation = append(s.serialisation[:i], s.serialisation[i+1:]...)
	}
}
