package mvcc

import (
	"sort"
	"sync/atomic"

	"github.com/pkg/errors"
)

// TrxID 事务ID类型，在事务系统生命周期内严格递增，0表示"无事务"
type TrxID uint64

// ReadView MVCC读视图
// 表示"在快照时间点之前提交的所有版本，加上创建者事务自己产生的版本"。
//
// 可见性判断规则：
// 若访问记录trx_id等于readview的creatorTrxID，则访问的是自己修改过的记录，当前记录可以被访问
// 若访问记录trx_id小于readview的upLimitID，表明生成该版本的事务在readview生成前已经提交，该版本可以被访问
// 如果被访问版本的trx_id大于或等于readview的lowLimitID，表明生成该版本的事务是在当前事务readview之后开启，该版本不可以被访问
// 如果被访问版本的trx_id在两个边界之间，则需要判断trx_id是否在活跃列表中：
// 在，说明创建readview时生成该版本的事务还是活跃的，该版本不可以被访问；
// 不在，说明生成该版本的事务已经提交，该版本可以被访问
type ReadView struct {
	ids          TrxIDSet // 创建ReadView时活跃的读写事务ID列表，不含创建者
	upLimitID    TrxID    // 活跃事务中最小的事务ID，小于该值的版本一定可见
	lowLimitID   TrxID    // 系统将分配给下一个事务的ID，大于等于该值的版本一定不可见
	lowLimitNo   TrxID    // purge边界：序列化号小于该值的事务修改对所有活跃视图均已定型
	creatorTrxID TrxID    // 创建该ReadView的事务ID

	registered bool        // 是否已挂入全局视图列表
	open       atomic.Bool // 是否正被某个活跃事务使用
}

// NewReadView 以显式边界构造ReadView，主要面向测试和外部协作方
// activeIDs必须升序去重，且不含creatorTrxID
func NewReadView(activeIDs []TrxID, upLimitID, lowLimitID, creatorTrxID TrxID) *ReadView {
	rv := &ReadView{
		upLimitID:    upLimitID,
		lowLimitID:   lowLimitID,
		lowLimitNo:   lowLimitID,
		creatorTrxID: creatorTrxID,
	}
	rv.ids.Assign(activeIDs)
	return rv
}

// ChangesVisible 判断trxID创建的版本对本视图是否可见
// 无需加锁：ids与边界字段在视图本轮生命周期内只读
func (rv *ReadView) ChangesVisible(trxID TrxID) bool {
	// 自己修改的记录永远可见
	if trxID == rv.creatorTrxID {
		return true
	}

	// 小于最小活跃事务ID：生成该版本的事务在视图创建前已提交
	if trxID < rv.upLimitID {
		return true
	}

	// 大于等于下一个要分配的事务ID：生成该版本的事务在视图创建之后才开启
	if trxID >= rv.lowLimitID {
		return false
	}

	// 落在两个边界之间：在活跃列表中则创建时未提交，不可见
	return !rv.ids.Contains(trxID)
}

// prepare 构建一个全新快照
// 调用方必须持有TrxSys互斥锁
func (rv *ReadView) prepare(sys *TrxSys, id TrxID) {
	rv.creatorTrxID = id

	// maxTrxID是排他的可见性上界：从此刻起分配出去的ID都不可见
	rv.lowLimitNo = sys.maxTrxID
	rv.lowLimitID = sys.maxTrxID
	rv.upLimitID = sys.maxTrxID

	if len(sys.rwTrxIDs) > 0 {
		rv.copyTrxIDs(sys.rwTrxIDs)
	} else {
		rv.ids.Clear()
	}

	// 已分配ID但尚未确定序列化顺序的事务，
	// 不能被purge视为"一定在快照之前"，此处把purge边界压低到最老的等待者
	if no, ok := sys.oldestSerialisationNo(); ok && no < rv.lowLimitNo {
		rv.lowLimitNo = no
	}
}

// copyTrxIDs 拷贝活跃读写事务ID列表，剔除创建者自身
// 创建者永远能看到自己未提交的修改，把它从列表中剔除后，
// 常见路径的可见性判断只需比较边界值。
// 前置条件：creatorTrxID非零时应出现在trxIDs中；不在时按原样拷贝
func (rv *ReadView) copyTrxIDs(trxIDs []TrxID) {
	if rv.creatorTrxID > 0 {
		i := sort.Search(len(trxIDs), func(k int) bool { return trxIDs[k] >= rv.creatorTrxID })
		if i < len(trxIDs) && trxIDs[i] == rv.creatorTrxID {
			rv.ids.Reserve(len(trxIDs) - 1)
			rv.ids.Assign(trxIDs[:i])
			for _, id := range trxIDs[i+1:] {
				rv.ids.PushBack(id)
			}
		} else {
			rv.ids.Assign(trxIDs)
		}
	} else {
		rv.ids.Assign(trxIDs)
	}

	// 真正的下界是最老的仍然活跃的事务，而不是计数器
	if !rv.ids.Empty() && rv.ids.Front() < rv.upLimitID {
		rv.upLimitID = rv.ids.Front()
	}
}

// copyPrepare 从other拷贝状态，必须持有TrxSys互斥锁
// 之后必须调用copyComplete完成克隆。
// 拆成两步是为了尽量缩短持锁时间；克隆目标由调用方独占，
// 中间状态不会被其他线程观察到
func (rv *ReadView) copyPrepare(other *ReadView) {
	if !other.ids.Empty() {
		rv.ids.Assign(other.ids.IDs())
	} else {
		rv.ids.Clear()
	}

	rv.upLimitID = other.upLimitID
	rv.lowLimitNo = other.lowLimitNo
	rv.lowLimitID = other.lowLimitID
	rv.creatorTrxID = other.creatorTrxID
}

// copyComplete 完成克隆，无需持锁
// 把创建者ID并入ids并按需下调upLimitID；
// 克隆出来的视图没有自己的创建者，creatorTrxID清零
func (rv *ReadView) copyComplete() {
	if rv.creatorTrxID > 0 {
		rv.ids.Insert(rv.creatorTrxID)
	}

	if !rv.ids.Empty() && rv.ids.Front() < rv.upLimitID {
		// 最老的活跃事务ID最小
		rv.upLimitID = rv.ids.Front()
	}

	rv.creatorTrxID = 0
}

// checkLimits 校验 upLimitID <= lowLimitID 不变式
// 违反意味着可见性判断可能返回错误数据，按不可恢复内部错误上报
func (rv *ReadView) checkLimits() error {
	if rv.upLimitID > rv.lowLimitID {
		return errors.Wrapf(ErrInternalError,
			"read view limits out of order: up_limit_id=%d low_limit_id=%d",
			rv.upLimitID, rv.lowLimitID)
	}
	return nil
}

// le 本视图是否不比other新，用于视图列表有序性校验
func (rv *ReadView) le(other *ReadView) bool {
	return rv.lowLimitNo <= other.lowLimitNo
}

// IsOpen 视图是否正被活跃事务使用
func (rv *ReadView) IsOpen() bool {
	return rv.open.Load()
}

func (rv *ReadView) setOpen(open bool) {
	rv.open.Store(open)
}

// IsRegistered 视图是否已挂入全局视图列表
func (rv *ReadView) IsRegistered() bool {
	return rv.registered
}

func (rv *ReadView) setRegistered(registered bool) {
	rv.registered = registered
}

// Empty 活跃事务列表是否为空
func (rv *ReadView) Empty() bool {
	return rv.ids.Empty()
}

// GetActiveIDs 获取活跃事务ID列表，调用方不得修改
func (rv *ReadView) GetActiveIDs() []TrxID {
	return rv.ids.IDs()
}

// GetUpLimitID 获取最小活跃事务ID下界
func (rv *ReadView) GetUpLimitID() TrxID {
	return rv.upLimitID
}

// GetLowLimitID 获取下一个要分配的事务ID上界
func (rv *ReadView) GetLowLimitID() TrxID {
	return rv.lowLimitID
}

// GetLowLimitNo 获取purge序列化边界
func (rv *ReadView) GetLowLimitNo() TrxID {
	return rv.lowLimitNo
}

// GetCreatorTrxID 获取创建该ReadView的事务ID
func (rv *ReadView) GetCreatorTrxID() TrxID {
	return rv.creatorTrxID
}
