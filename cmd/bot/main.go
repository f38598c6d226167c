package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/execbot/gotrade/internal/engine"
	"github.com/execbot/gotrade/internal/exchange"
	"github.com/execbot/gotrade/internal/journal"
	"github.com/execbot/gotrade/internal/listener"
	"github.com/execbot/gotrade/internal/push"
	"github.com/execbot/gotrade/internal/refprice"
	"github.com/execbot/gotrade/internal/setup"
	"github.com/execbot/gotrade/internal/statusapi"
	"github.com/execbot/gotrade/pkg/config"
	"github.com/execbot/gotrade/pkg/logger"
	"github.com/execbot/gotrade/pkg/persistence"
	"github.com/execbot/gotrade/pkg/shutdown"
)

const gracefulShutdownPeriod = 10 * time.Second

func main() {
	configPath := flag.String("config", "yml/config.yaml", "配置文件路径")
	flag.Parse()

	wire, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(wire.LogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	if err := wire.Validate(); err != nil {
		logrus.Errorf("配置验证失败: %v", err)
		os.Exit(1)
	}

	logrus.Info("🚀 启动执行机器人...")

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// 持久化：暖重启状态落盘后端按配置选择
	var persist persistence.Service
	var badgerSvc *persistence.BadgerService
	switch wire.Persistence.Backend {
	case "", "json":
		dir := wire.Persistence.Dir
		if dir == "" {
			dir = "data/persistence"
		}
		persist = persistence.NewJSONFileService(dir)
	case "badger":
		badgerSvc, err = persistence.OpenBadger(wire.Persistence.Dir)
		if err != nil {
			logrus.Errorf("打开 badger 持久化失败: %v", err)
			os.Exit(1)
		}
		persist = badgerSvc
	default:
		logrus.Errorf("未知持久化后端: %q", wire.Persistence.Backend)
		os.Exit(1)
	}

	deps := setup.Deps{
		Base: exchange.NewRestGateway(wire.Gateway.BaseURL),
	}
	if wire.RefPrice.BaseURL != "" {
		deps.Ref = refprice.NewClient(wire.RefPrice.BaseURL)
	}
	if wire.Journal.Path != "" {
		jnl, err := journal.Open(wire.Journal.Path)
		if err != nil {
			logrus.Errorf("打开成交流水库失败: %v", err)
			os.Exit(1)
		}
		deps.Journal = jnl
		defer jnl.Close()
	}

	feed := push.NewFeed(wire.Push.URL)
	deps.Feed = feed

	var provisioner listener.Provisioner = listener.Noop{}
	if wire.Listener.Command != "" {
		provisioner = listener.NewExecProvisioner(wire.Listener.Command, wire.Listener.Args...)
	}

	// 组装：配置错误只禁用对应 bot，不让进程崩溃
	result := setup.Build(rootCtx, wire, deps)
	for _, d := range result.Disabled {
		logrus.Warnf("⚠️ bot %s 已禁用: %s", d.ID, d.Reason)
	}
	if len(result.Bots) == 0 {
		logrus.Error("❌ 没有可运行的 bot，退出")
		os.Exit(1)
	}

	eng := engine.New(persist, provisioner, wire.CycleInterval())
	for _, built := range result.Bots {
		if err := eng.Register(rootCtx, built.Bot, built.Listeners...); err != nil {
			logrus.Errorf("注册 bot %s 失败: %v", built.Bot.ID(), err)
		}
	}

	feed.Start(rootCtx)
	eng.Run(rootCtx)

	var api *statusapi.Server
	if wire.API.Addr != "" {
		api = statusapi.NewServer(eng, deps.Journal, wire.API.Addr)
		api.Start()
	}

	mgr := shutdown.NewManager()
	eng.RegisterShutdown(mgr)

	logrus.Info("✅ 执行机器人已启动，按 Ctrl+C 停止")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logrus.Info("收到停止信号，正在关闭...")
	rootCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownPeriod)
	defer shutdownCancel()

	// 1. 先停状态 API（不再接受外部查询）
	if api != nil {
		api.Stop(shutdownCtx)
	}

	// 2. 引擎关停：停调度、撤挂单、保存快照、回收监听进程
	mgr.Shutdown(shutdownCtx)

	// 3. 停推送源
	feed.Stop()

	if badgerSvc != nil {
		if err := badgerSvc.Close(); err != nil {
			logrus.Errorf("关闭 badger 失败: %v", err)
		}
	}

	logrus.Info("🏁 执行机器人已停止")
}
