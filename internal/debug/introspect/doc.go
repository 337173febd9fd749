// Package introspect 提供本地自省 HTTP 服务
//
// 端点：
//   - GET /health                      集合健康状态（未构造或无 UDP 采集器时 503）
//   - GET /debug/introspect/harvesters 采集器集合快照（JSON）
//   - GET /metrics                     Prometheus 指标（启用指标时）
//   - GET /debug/pprof/*               Go 运行时分析
//
// 服务只读取已构造的集合，从不触发构造。
//
// 默认只监听 127.0.0.1:6060，由 diagnostics.enable_introspect 启用。
package introspect
