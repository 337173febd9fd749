// Package interfaces 定义 go-harvest 的公共接口
//
// 一个接口文件对应一个实现目录：
//   - harvest.go   - UDP / TCP 采集器与工厂（internal/core/harvest/）
//   - portmap.go   - 网关端口映射与 STUN 地址发现（internal/core/nat/）
//
// 接口供 ICE agent 与测试替换使用，实现位于 internal/ 下。
package interfaces
