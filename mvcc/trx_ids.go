package mvcc

import "sort"

// minTrxIDs TrxIDSet预留的最小容量，避免小集合反复扩容
const minTrxIDs = 32

// TrxIDSet 严格升序、无重复的事务ID集合
// 由单个ReadView独占持有：prepare/copyPrepare构建完成之后，
// 在视图的本轮生命周期内只读，可见性判断因此无需加锁
type TrxIDSet struct {
	ids []TrxID
}

// Reserve 确保容量不小于n，扩容时搬移已有元素，不改变内容和顺序
func (s *TrxIDSet) Reserve(n int) {
	if n <= cap(s.ids) {
		return
	}
	if n < minTrxIDs {
		n = minTrxIDs
	}
	ids := make([]TrxID, len(s.ids), n)
	copy(ids, s.ids)
	s.ids = ids
}

// Assign 用外部给定的升序去重序列覆盖当前内容
// 调用方(ReadView.prepare)保证输入已排序
func (s *TrxIDSet) Assign(values []TrxID) {
	s.Clear()
	s.Reserve(len(values))
	s.ids = s.ids[:len(values)]
	copy(s.ids, values)
}

// PushBack 追加v，调用方保证v大于当前最大元素；容量不足时翻倍
func (s *TrxIDSet) PushBack(v TrxID) {
	if len(s.ids) == cap(s.ids) {
		n := cap(s.ids) * 2
		if n == 0 {
			n = minTrxIDs
		}
		s.Reserve(n)
	}
	s.ids = append(s.ids, v)
}

// Insert 按序插入v(v>=1)
// 若v大于当前最大元素，等价于PushBack；
// 否则二分定位第一个大于v的位置，尾部整体右移一位
// 不检查重复，由调用方保证
func (s *TrxIDSet) Insert(v TrxID) {
	s.Reserve(len(s.ids) + 1)

	if s.Empty() || s.Back() < v {
		s.PushBack(v)
		return
	}

	i := sort.Search(len(s.ids), func(k int) bool { return s.ids[k] > v })
	s.ids = s.ids[:len(s.ids)+1]
	copy(s.ids[i+1:], s.ids[i:])
	s.ids[i] = v
}

// Contains 二分查找v是否存在
func (s *TrxIDSet) Contains(v TrxID) bool {
	i := sort.Search(len(s.ids), func(k int) bool { return s.ids[k] >= v })
	return i < len(s.ids) && s.ids[i] == v
}

// Front 最小元素，集合为空时返回0
func (s *TrxIDSet) Front() TrxID {
	if len(s.ids) == 0 {
		return 0
	}
	return s.ids[0]
}

// Back 最大元素，集合为空时返回0
func (s *TrxIDSet) Back() TrxID {
	if len(s.ids) == 0 {
		return 0
	}
	return s.ids[len(s.ids)-1]
}

// Len 当前元素个数
func (s *TrxIDSet) Len() int {
	return len(s.ids)
}

// Empty 集合是否为空
func (s *TrxIDSet) Empty() bool {
	return len(s.ids) == 0
}

// Clear 清空内容，保留已分配的容量
func (s *TrxIDSet) Clear() {
	s.ids = s.ids[:0]
}

// IDs 返回底层切片，调用方不得修改
func (s *TrxIDSet) IDs() []TrxID {
	return s.ids
}
