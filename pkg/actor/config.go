package actor

import (
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// SystemConfig 系统配置
type SystemConfig struct {
	// MailboxCapacity 默认邮箱容量，负数表示无界
	MailboxCapacity int `koanf:"mailbox_capacity"`
	// OverflowPolicy 默认溢出策略，配置文件中写名称，如 drop_oldest
	OverflowPolicy OverflowPolicy `koanf:"overflow_policy"`
	// BlockTimeout Block 策略的默认等待时间
	BlockTimeout time.Duration `koanf:"block_timeout"`
	// Throughput 一次排空任务最多处理的消息数
	Throughput int `koanf:"throughput"`
	// SharedPoolSize 共享调度器的 worker 数量，0 表示 GOMAXPROCS
	SharedPoolSize int `koanf:"shared_pool_size"`
	// StopTimeout 停止子 Actor 的默认超时
	StopTimeout time.Duration `koanf:"stop_timeout"`
	// AskTimeout Request 未指定超时时使用
	AskTimeout time.Duration `koanf:"ask_timeout"`
	// ShutdownTimeout Shutdown 等待的最长时间
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// EnableDeadLetterLogging 是否记录死信
	EnableDeadLetterLogging bool `koanf:"dead_letter_logging"`

	// PanicHandler panic 处理函数，为 nil 时记录日志
	PanicHandler func(actor *PID, msg Message, err any) `koanf:"-"`
	// Logger 自定义日志器
	Logger *slog.Logger `koanf:"-"`
	// GuardianStrategy 顶层 Actor（/user 的子 Actor）的监督策略
	GuardianStrategy SupervisorStrategy `koanf:"-"`
}

// DefaultSystemConfig 默认系统配置
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		MailboxCapacity:         1000,
		OverflowPolicy:          OverflowDropNew,
		BlockTimeout:            time.Second,
		Throughput:              100,
		SharedPoolSize:          runtime.GOMAXPROCS(0),
		StopTimeout:             5 * time.Second,
		AskTimeout:              5 * time.Second,
		ShutdownTimeout:         10 * time.Second,
		EnableDeadLetterLogging: true,
		PanicHandler:            nil, // 使用默认处理
		Logger:                  nil, // 使用默认 logger
	}
}

// LoadConfig 从文件加载配置，未出现的字段取默认值
// 按扩展名选择解析器：.json 使用 JSON，其余按 YAML 处理
func LoadConfig(path string) (*SystemConfig, error) {
	k, err := defaultsKoanf()
	if err != nil {
		return nil, err
	}

	parser := koanf.Parser(yaml.Parser())
	if strings.EqualFold(filepath.Ext(path), ".json") {
		parser = json.Parser()
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, errors.Wrapf(err, "load config %s", path)
	}
	return unmarshalConfig(k)
}

// LoadConfigBytes 从内存中的 YAML 加载配置
func LoadConfigBytes(data []byte) (*SystemConfig, error) {
	k, err := defaultsKoanf()
	if err != nil {
		return nil, err
	}
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	return unmarshalConfig(k)
}

func defaultsKoanf() (*koanf.Koanf, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(DefaultSystemConfig(), "koanf"), nil); err != nil {
		return nil, errors.Wrap(err, "load default config")
	}
	return k, nil
}

func unmarshalConfig(k *koanf.Koanf) (*SystemConfig, error) {
	cfg := DefaultSystemConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置取值
func (c *SystemConfig) Validate() error {
	switch {
	case c.Throughput < 0:
		return &ValidationError{Field: "throughput", Reason: "must not be negative"}
	case c.SharedPoolSize < 0:
		return &ValidationError{Field: "shared_pool_size", Reason: "must not be negative"}
	case c.StopTimeout < 0:
		return &ValidationError{Field: "stop_timeout", Reason: "must not be negative"}
	case c.AskTimeout < 0:
		return &ValidationError{Field: "ask_timeout", Reason: "must not be negative"}
	case c.OverflowPolicy < OverflowDefault || c.OverflowPolicy > OverflowReject:
		return &ValidationError{Field: "overflow_policy", Reason: "unknown policy"}
	}
	return nil
}

// withDefaults 补全零值字段
func (c *SystemConfig) withDefaults() *SystemConfig {
	def := DefaultSystemConfig()
	out := *c
	if out.MailboxCapacity == 0 {
		out.MailboxCapacity = def.MailboxCapacity
	}
	if out.OverflowPolicy == OverflowDefault {
		out.OverflowPolicy = def.OverflowPolicy
	}
	if out.BlockTimeout <= 0 {
		out.BlockTimeout = def.BlockTimeout
	}
	if out.Throughput <= 0 {
		out.Throughput = def.Throughput
	}
	if out.SharedPoolSize <= 0 {
		out.SharedPoolSize = def.SharedPoolSize
	}
	if out.StopTimeout <= 0 {
		out.StopTimeout = def.StopTimeout
	}
	if out.AskTimeout <= 0 {
		out.AskTimeout = def.AskTimeout
	}
	if out.ShutdownTimeout <= 0 {
		out.ShutdownTimeout = def.ShutdownTimeout
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return &out
}
