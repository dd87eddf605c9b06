package mvcc

import "github.com/pkg/errors"

// Trx 事务对可见性子系统可见的部分
// 每个事务对象内嵌一个可复用的读视图
type Trx struct {
	// ID 读写事务ID，纯只读事务为0
	ID TrxID

	// ReadView 事务的一致性读视图，由MVCC注册表管理生命周期
	ReadView ReadView

	// AutocommitNonLocking 自动提交的非锁定只读事务
	// 这类事务关闭后的视图满足条件时可以走复用快路径
	AutocommitNonLocking bool
}

// Options MVCC注册表行为开关
type Options struct {
	// ReadOnly 只读模式下不会有任何写入发生，ViewOpen不创建快照
	ReadOnly bool

	// ValidateViews 每次注册表变更后自动校验视图列表有序性
	// 校验例程本身始终编译进来，测试可以无条件调用Validate
	ValidateViews bool
}

// MVCC 读视图注册表
// 持有全局视图集合，按lowLimitNo降序排列（最新的在前）。
// 对注册表和事务系统计数器的所有变更都串行化在TrxSys的互斥锁上。
//
// 该顺序不变式是purge正确性的根基：从最老端扫描得到的第一个打开视图，
// 其边界在所有活跃视图中数值上最保守，任何活跃视图还能看到的版本都不会被清除。
type MVCC struct {
	sys   *TrxSys
	opts  Options
	views []*ReadView // 注册过的视图（含已关闭待复用的），新在前旧在后
}

// NewMVCC 创建读视图注册表，sys为显式传入的事务系统句柄
func NewMVCC(sys *TrxSys, opts Options) *MVCC {
	return &MVCC{sys: sys, opts: opts}
}

// ViewOpen 为事务分配一致性读视图
// 同一事务内的所有一致性读共享同一个视图，事务首次读取时创建。
// 视图已打开时调用是幂等的
func (m *MVCC) ViewOpen(trx *Trx) error {
	if m.sys == nil {
		return errors.Wrap(ErrTrxSysNotInitialized, "view open")
	}

	if m.opts.ReadOnly {
		// 只读模式下没有任何写入，无需快照
		return nil
	}

	view := &trx.ReadView
	if view.IsOpen() {
		return nil
	}

	// 复用条件：视图注册过、自动提交非锁定事务、活跃列表为空、
	// 且期间没有任何读写事务启动过（边界仍等于当前计数器）。
	// 这里与purge线程存在一个已知的良性竞争：purge最多克隆到一个更年轻的视图，
	// 但期间没有读写事务，两个视图的边界完全相同，不影响正确性
	if view.IsRegistered() && trx.AutocommitNonLocking &&
		view.Empty() && view.lowLimitID == m.sys.MaxTrxID() {
		view.setOpen(true)
		return nil
	}

	m.sys.mu.Lock()

	view.prepare(m.sys, trx.ID)
	if err := view.checkLimits(); err != nil {
		m.sys.mu.Unlock()
		return err
	}

	// 新快照的边界在所有视图中最大，挂到最前；
	// 复用的视图先从原位置摘下再挂回
	if view.IsRegistered() {
		m.unlink(view)
	} else {
		view.setRegistered(true)
	}
	view.setOpen(true)
	m.linkFront(view)

	if m.opts.ValidateViews {
		if err := m.validate(); err != nil {
			m.sys.mu.Unlock()
			return err
		}
	}

	m.sys.mu.Unlock()
	return nil
}

// ViewClose 关闭事务的读视图
// 视图保持注册状态、活跃列表原样保留，供下一次ViewOpen复用；
// 注册表不收缩
func (m *MVCC) ViewClose(trx *Trx) {
	trx.ReadView.setOpen(false)
}

// IsViewOpen 事务的读视图是否打开
func (m *MVCC) IsViewOpen(trx *Trx) bool {
	return trx.ReadView.IsOpen()
}

// ViewRelease 事务彻底销毁时把视图从注册表摘除
// 这是注册表唯一的收缩路径
func (m *MVCC) ViewRelease(trx *Trx) {
	view := &trx.ReadView
	view.setOpen(false)

	if !view.IsRegistered() {
		return
	}

	m.sys.mu.Lock()
	m.unlink(view)
	view.setRegistered(false)
	m.sys.mu.Unlock()
}

// CloneOldestView 克隆最老的打开视图，供purge判断哪些旧版本可以安全清除
// 克隆结果由调用方独立持有，无需ViewClose。
// 没有任何打开视图时，以当前全局状态生成快照，
// 相当于"无人活跃，当前点之前的版本全部可见"。
//
// 边界只允许偏保守（偏旧）：偏旧只会推迟垃圾回收，偏新则可能清掉
// 活跃视图还能看到的版本，是唯一不允许出现的方向
func (m *MVCC) CloneOldestView(view *ReadView) error {
	if m.sys == nil {
		return errors.Wrap(ErrTrxSysNotInitialized, "clone oldest view")
	}

	m.sys.mu.Lock()

	// 从最老端开始找第一个打开的视图
	for i := len(m.views) - 1; i >= 0; i-- {
		oldest := m.views[i]
		if oldest.IsOpen() {
			view.copyPrepare(oldest)
			m.sys.mu.Unlock()
			view.copyComplete()
			return view.checkLimits()
		}
	}

	view.prepare(m.sys, 0)
	m.sys.mu.Unlock()
	return view.checkLimits()
}

// OldestViewLowLimitNo 最老打开视图的purge边界，仅用于观测
// 与CloneOldestView给出的边界一致，但不拷贝活跃事务列表；
// 没有打开视图时按当前全局状态计算
func (m *MVCC) OldestViewLowLimitNo() (TrxID, error) {
	if m.sys == nil {
		return 0, errors.Wrap(ErrTrxSysNotInitialized, "oldest view low limit no")
	}

	m.sys.mu.Lock()
	defer m.sys.mu.Unlock()

	for i := len(m.views) - 1; i >= 0; i-- {
		if m.views[i].IsOpen() {
			return m.views[i].lowLimitNo, nil
		}
	}

	no := m.sys.maxTrxID
	if pending, ok := m.sys.oldestSerialisationNo(); ok && pending < no {
		no = pending
	}
	return no, nil
}

// Size 当前打开的视图数量，仅用于观测
func (m *MVCC) Size() int {
	m.sys.mu.Lock()
	defer m.sys.mu.Unlock()

	size := 0
	for _, view := range m.views {
		if view.IsOpen() {
			size++
		}
	}
	return size
}

// Validate 校验视图列表的降序不变式
// 任何违反都意味着注册表已被破坏，按不可恢复内部错误上报
func (m *MVCC) Validate() error {
	m.sys.mu.Lock()
	defer m.sys.mu.Unlock()
	return m.validate()
}

// validate 持锁调用
func (m *MVCC) validate() error {
	var prev *ReadView
	for _, view := range m.views {
		if !view.IsRegistered() {
			return errors.Wrap(ErrViewListCorrupted, "unregistered view in list")
		}
		if prev != nil && view.IsOpen() && !view.le(prev) {
			return errors.Wrapf(ErrViewListCorrupted,
				"view order violated: low_limit_no=%d after %d",
				view.lowLimitNo, prev.lowLimitNo)
		}
		prev = view
	}
	return nil
}

// linkFront 持锁调用，把视图挂到列表最前
func (m *MVCC) linkFront(view *ReadView) {
	m.views = append(m.views, nil)
	copy(m.views[1:], m.views)
	m.views[0] = view
}

// unlink 持锁调用，把视图从列表原位置摘下
func (m *MVCC) unlink(view *ReadView) {
	for i, v := range m.views {
		if v == view {
			m.views = append(m.views[:i], m.views[i+1:]...)
			return
		}
	}
}
