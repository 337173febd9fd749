// Package metrics 导出采集器集合的 Prometheus 指标
//
// 指标：
//
//   - harvest_udp_harvesters：单端口 UDP 采集器数量
//   - harvest_tcp_harvester_present：是否存在 TCP 采集器（0/1）
//   - harvest_healthy：健康状态（0/1）
//   - harvest_degradations_total{kind}：构造时记录的降级次数
//
// 集合构造后不可变，因此指标只在构造后更新一次。
package metrics
