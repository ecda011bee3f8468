// Package actor 提供进程内 Actor 运行时
//
// Actor 模式是一种并发计算模型，每个 Actor 是独立的计算单元：
// • 拥有私有状态（无需锁保护）
// • 通过优先级邮箱（mailbox）接收消息
// • 消息处理串行化（同一 Actor 同一时刻只处理一条）
// • 组织成监督树，通过重启、停止或上报从失败中恢复
//
// # 核心组件
//
// [System] 是 Actor 系统的入口，持有注册表、监控表、定时器和调度器：
//
//	sys := actor.NewSystem("my-system")
//	defer sys.Shutdown()
//
//	pid, err := sys.ActorOf(actor.PropsFromFunc(handle), "worker")
//
// [Actor] 接口定义消息处理行为，[ActorFunc] 提供函数式快捷方式。
// 生命周期回调是可选接口：[PreStarter]、[PostStopper]、[PreRestarter]、[PostRestarter]。
//
// [ActorRef] 是位置透明的引用，本地实现为 [PID]。[PID.Tell] 异步发送（fire-and-forget），
// [PID.Ask] 返回 [Future]，[PID.Request] 同步等待响应，泛型 [Ask] 直接得到类型化的回复。
//
// [Context] 是 Actor 的运行时上下文，支持回复消息、创建子 Actor、监控、定时器等操作。
//
// # 路径
//
// 根 Actor 为 "/"，用户 Actor 位于 "/user" 下，例如 /user/parent/child。
// 死信 Actor 位于 /system/deadLetters，Ask 的应答地址形如 /temp/<uuid>。
//
// # 邮箱与调度
//
// 信封按类别排序：System(High) > System > Signal(High) > Signal > Normal > Normal(Low)，
// 同类别内 FIFO。容量满时按 [OverflowPolicy] 处理，被丢弃的消息进入死信。
// [DispatcherDefault] 每次排空邮箱使用一个 goroutine，[DispatcherShared] 使用固定大小的 worker 池。
//
// # 监督策略
//
// 监督策略由父 Actor 持有，决定子 Actor 失败时的处理方式。[OneForOneStrategy] 只处理失败的 Actor，
// [AllForOneStrategy] 重启同一父 Actor 下的所有子 Actor。超出 MaxRetries 后改为停止。
//
// 监督指令 [Directive]：DirectiveResume 恢复运行，DirectiveRestart 重启 Actor，
// DirectiveRestartAll 重启所有兄弟，DirectiveStop 停止 Actor，DirectiveEscalate 上报给父 Actor。
//
// # 系统消息
//
// [Kill] 立即停止，[PoisonPill] 处理完已排队消息后停止，[Terminated] 表示被监控的 Actor 已终止，
// [ChildTerminated] 通知父 Actor 子 Actor 已终止，[DeadLetter] 是死信订阅者收到的消息。
//
// # 最佳实践
//
// 1. 消息不可变，发送后不要修改消息内容
// 2. 避免阻塞，Receive 方法中不要执行长时间操作
// 3. 使用监督，为关键 Actor 配置监督策略
// 4. 合理设置邮箱，根据负载调整容量和溢出策略
//
// 完整使用示例请参考 example_test.go 或运行 go doc -all。
package actor
