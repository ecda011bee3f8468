// Package router 提供建立在 actor 包之上的路由 Actor
//
// 路由器本身是一个普通 Actor：管理消息（[AddRoutee]、[RemoveRoutee]、[GetRoutees]）
// 由它自己处理，其余消息按 [Logic] 选出目标后转发，发送者保持不变。
//
// # 两种模式
//
//	NewGroup - 路由到已有的 Actor
//	NewPool  - 创建 n 个子 Actor 作为 routee，由路由器监督
//
// # 内置逻辑
//
//   - [RoundRobin]: 轮询
//   - [Random]: 随机
//   - [Broadcast]: 发送给全部 routee
//
// 用法示例:
//
//	pool, _ := sys.ActorOf(router.NewPool(workerProps, 4, router.NewRoundRobin()), "workers")
//	pool.Tell(&Job{ID: 1}, nil)
//	pool.Tell(&router.BroadcastMessage{Message: &Flush{}}, nil)
package router
