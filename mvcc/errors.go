package mvcc

import "errors"

// 可见性子系统相关错误
var (
	ErrInternalError        = errors.New("internal error")
	ErrTrxSysNotInitialized = errors.New("transaction system not initialized")
	ErrViewListCorrupted    = errors.New("read view list corrupted")
)
