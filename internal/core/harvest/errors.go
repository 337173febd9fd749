package harvest

import "errors"

// Sentinel errors
var (
	// ErrNotInitialized 在集合构造前读取状态
	ErrNotInitialized = errors.New("harvest: harvester set not initialized")

	// ErrNoUDPHarvesters 没有创建任何单端口 UDP 采集器
	ErrNoUDPHarvesters = errors.New("harvest: no single-port UDP harvesters")
)
