// Package harvest 管理进程级的 ICE 候选采集器集合
//
// Manager 在第一次访问时构造一次采集器集合：若干单端口 UDP 采集器，
// 以及按配置可选的一个共享 TCP 采集器。集合构造后不可变，
// 由 ICE Agent 在进程生命周期内读取，关闭时统一释放所有 socket。
//
// # 降级
//
// 构造过程不会返回错误，两类失败都转为降级状态：
//
//   - ResourceUnavailable：没有创建任何 UDP 采集器，Healthy 为 false
//   - BindFailure：TCP 采集器绑定失败，集合中没有 TCP 采集器
//
// 降级只通过日志、指标与 Healthy 体现，没有重试。
//
// # 并发
//
// Init / Set 可并发调用，所有调用方看到同一个完整构造的集合。
// 构造完成后的读取不加锁。Close 可重复调用，只有第一次生效；
// 调用方需保证 Close 时已没有会话在使用采集器。
package harvest
