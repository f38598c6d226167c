package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/execbot/gotrade/internal/bot"
	"github.com/execbot/gotrade/internal/listener"
	"github.com/execbot/gotrade/pkg/persistence"
	"github.com/execbot/gotrade/pkg/shutdown"
	"github.com/execbot/gotrade/pkg/syncgroup"
)

var log = logrus.WithField("module", "engine")

const (
	// DefaultCycleInterval 决策周期间隔
	DefaultCycleInterval = 3 * time.Second
	// snapshotEvery 每 N 个周期持久化一次 tracker 快照
	snapshotEvery = 10
)

// ListenerSpec bot 需要的行情监听
type ListenerSpec struct {
	Exchange string
	Pair     string
}

// Engine bot 注册表与调度器
// 每个 bot 一个独立的调度 goroutine，周期内串行调用 Cycle（不可重入由
// 调度结构保证）；tracker 快照定期落盘支撑暖重启
type Engine struct {
	persist     persistence.Service
	provisioner listener.Provisioner
	interval    time.Duration

	mu    sync.Mutex
	bots  map[string]bot.Bot
	stopC chan struct{}
	sg    *syncgroup.SyncGroup
}

// New 创建引擎
func New(persist persistence.Service, provisioner listener.Provisioner, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = DefaultCycleInterval
	}
	if provisioner == nil {
		provisioner = listener.Noop{}
	}
	return &Engine{
		persist:     persist,
		provisioner: provisioner,
		interval:    interval,
		bots:        make(map[string]bot.Bot),
		stopC:       make(chan struct{}),
		sg:          syncgroup.NewSyncGroup(),
	}
}

// Register 注册 bot：恢复暖重启快照、拉起行情监听、登记调度
func (e *Engine) Register(ctx context.Context, b bot.Bot, listeners ...ListenerSpec) error {
	e.mu.Lock()
	if _, dup := e.bots[b.ID()]; dup {
		e.mu.Unlock()
		log.Warnf("⚠️ bot 重复注册，忽略: %s", b.ID())
		return nil
	}
	e.bots[b.ID()] = b
	e.mu.Unlock()

	if e.persist != nil {
		for _, trk := range b.Trackers() {
			if err := trk.LoadFrom(e.persist); err != nil {
				log.Warnf("⚠️ [%s] 暖重启快照恢复失败，从空状态开始: %v", b.ID(), err)
			}
		}
	}
	for _, spec := range listeners {
		if err := e.provisioner.Provision(ctx, spec.Exchange, spec.Pair); err != nil {
			// 监听拉不起来不阻塞交易，轮询路径仍然可用
			log.Warnf("⚠️ [%s] 行情监听拉起失败: %s:%s err=%v", b.ID(), spec.Exchange, spec.Pair, err)
		}
	}
	log.Infof("✅ bot 已注册: %s", b.ID())
	return nil
}

// Bots 返回已注册的 bot 列表
func (e *Engine) Bots() []bot.Bot {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]bot.Bot, 0, len(e.bots))
	for _, b := range e.bots {
		out = append(out, b)
	}
	return out
}

// Bot 按 id 查找
func (e *Engine) Bot(id string) (bot.Bot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.bots[id]
	return b, ok
}

// Run 启动所有 bot 的 tracker 循环和调度循环
func (e *Engine) Run(ctx context.Context) {
	for _, b := range e.Bots() {
		for _, trk := range b.Trackers() {
			trk.Start(ctx)
		}
		theBot := b
		e.sg.Add(func() { e.schedule(ctx, theBot) })
	}
	e.sg.Run()
	log.Infof("🚀 引擎已启动，bot 数=%d 周期=%s", len(e.Bots()), e.interval)
}

// schedule 单个 bot 的调度循环
func (e *Engine) schedule(ctx context.Context, b bot.Bot) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	cycles := 0
	for {
		select {
		case <-e.stopC:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := b.Cycle(ctx); err != nil {
			log.Errorf("❌ [%s] 决策周期异常: %v", b.ID(), err)
		}
		cycles++
		if e.persist != nil && cycles%snapshotEvery == 0 {
			e.saveSnapshots(b)
		}
		if b.Status() != bot.StatusRunning {
			log.Infof("🏁 [%s] 已终结（%s），调度退出", b.ID(), b.Status())
			e.saveSnapshots(b)
			return
		}
	}
}

func (e *Engine) saveSnapshots(b bot.Bot) {
	for _, trk := range b.Trackers() {
		if err := trk.SaveTo(e.persist); err != nil {
			log.Warnf("⚠️ [%s] 快照保存失败: %v", b.ID(), err)
		}
	}
}

// RegisterShutdown 把引擎清场挂到关闭管理器
func (e *Engine) RegisterShutdown(mgr *shutdown.Manager) {
	mgr.OnShutdown(func(ctx context.Context, _ *sync.WaitGroup) {
		e.Stop(ctx)
	})
}

// Stop 停调度、关停全部 bot、保存最终快照、回收行情监听
func (e *Engine) Stop(ctx context.Context) {
	select {
	case <-e.stopC:
		return
	default:
		close(e.stopC)
	}
	e.sg.Wait()

	for _, b := range e.Bots() {
		b.Shutdown(ctx)
		if e.persist != nil {
			e.saveSnapshots(b)
		}
	}
	if err := e.provisioner.Teardown(); err != nil {
		log.Warnf("⚠️ 行情监听回收失败: %v", err)
	}
	log.Infof("🛑 引擎已停止")
}
