package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/execbot/gotrade/pkg/logger"
)

// Wire YAML 配置的落盘形态；这里只做解码，类型化和校验在 Build 里
type Wire struct {
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSize    int    `yaml:"maxSize"`
		MaxBackups int    `yaml:"maxBackups"`
		MaxAge     int    `yaml:"maxAge"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"log"`

	Gateway struct {
		BaseURL string `yaml:"baseURL"`
	} `yaml:"gateway"`

	RefPrice struct {
		BaseURL string `yaml:"baseURL"`
	} `yaml:"refPrice"`

	Push struct {
		URL string `yaml:"url"`
	} `yaml:"push"`

	Persistence struct {
		Backend string `yaml:"backend"` // json | badger
		Dir     string `yaml:"dir"`
	} `yaml:"persistence"`

	Journal struct {
		Path string `yaml:"path"`
	} `yaml:"journal"`

	API struct {
		Addr string `yaml:"addr"`
	} `yaml:"api"`

	Engine struct {
		CycleIntervalMs int `yaml:"cycleIntervalMs"`
	} `yaml:"engine"`

	Listener struct {
		Command string   `yaml:"command"`
		Args    []string `yaml:"args"`
	} `yaml:"listener"`

	Bots []BotWire `yaml:"bots"`
}

// BotWire 单个 bot 的 YAML 形态
type BotWire struct {
	ID   string    `yaml:"id"`
	Kind string    `yaml:"kind"` // single | dual
	Legs []LegWire `yaml:"legs"`

	Target struct {
		Kind  string  `yaml:"kind"` // amount | notional | net_position
		Value float64 `yaml:"value"`
	} `yaml:"target"`

	MinWaitSec float64 `yaml:"minWaitSec"`
	MaxWaitSec float64 `yaml:"maxWaitSec"`

	Trigger string `yaml:"trigger"` // "exchange:pair:op:threshold"
	Stop    string `yaml:"stop"`    // "asset:op:threshold"

	ReserveBase  *float64 `yaml:"reserveBase"`  // 缺省 -1（关闭）
	ReserveQuote *float64 `yaml:"reserveQuote"` // 缺省 -1（关闭）
	MaxBookAgeMs int      `yaml:"maxBookAgeMs"`

	DryRun bool `yaml:"dryRun"`
}

// LegWire 单腿的 YAML 形态
type LegWire struct {
	Pair    string `yaml:"pair"`
	Account string `yaml:"account"`
	Side    string `yaml:"side"` // buy | sell | auto

	Strategy       string  `yaml:"strategy"` // vanilla | depth | aggressive
	Increment      float64 `yaml:"increment"`
	BenchmarkTicks float64 `yaml:"benchmarkTicks"`
	Aggressiveness string  `yaml:"aggressiveness"`
	OffsetTicks    float64 `yaml:"offsetTicks"`
	MinPrice       float64 `yaml:"minPrice"`
	MaxPrice       float64 `yaml:"maxPrice"`

	SliceAmount float64 `yaml:"sliceAmount"` // 0 时按等待窗口自动推导

	Primary      bool   `yaml:"primary"`
	SpreadStart  string `yaml:"spreadStart"`  // "kind:threshold"
	SpreadStop   string `yaml:"spreadStop"`   // "kind:threshold"
	OrderType    string `yaml:"orderType"`    // limit | market
}

// Load 读取 .env（存在时）和 YAML 配置
func Load(path string) (*Wire, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warnf("[config] .env 加载失败: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: read %s", path)
	}
	// 支持 ${ENV_VAR} 引用，密钥不落明文配置
	expanded := os.ExpandEnv(string(raw))

	var w Wire
	if err := yaml.Unmarshal([]byte(expanded), &w); err != nil {
		return nil, errors.Wrapf(err, "config: parse %s", path)
	}
	return &w, nil
}

// LogConfig 转成 logger 的配置
func (w *Wire) LogConfig() logger.Config {
	return logger.Config{
		Level:      w.Log.Level,
		OutputFile: w.Log.File,
		MaxSize:    w.Log.MaxSize,
		MaxBackups: w.Log.MaxBackups,
		MaxAge:     w.Log.MaxAge,
		Compress:   w.Log.Compress,
	}
}

// CycleInterval 决策周期间隔
func (w *Wire) CycleInterval() time.Duration {
	if w.Engine.CycleIntervalMs <= 0 {
		return 0
	}
	return time.Duration(w.Engine.CycleIntervalMs) * time.Millisecond
}

// Validate 顶层字段的硬校验（这些错误确实应该拒绝启动）
func (w *Wire) Validate() error {
	if w.Gateway.BaseURL == "" {
		return fmt.Errorf("config: gateway.baseURL is required")
	}
	if len(w.Bots) == 0 {
		return fmt.Errorf("config: no bots configured")
	}
	return nil
}
