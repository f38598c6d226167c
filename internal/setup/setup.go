package setup

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/execbot/gotrade/internal/bot"
	"github.com/execbot/gotrade/internal/coordinator"
	"github.com/execbot/gotrade/internal/domain"
	"github.com/execbot/gotrade/internal/engine"
	"github.com/execbot/gotrade/internal/exchange"
	"github.com/execbot/gotrade/internal/gate"
	"github.com/execbot/gotrade/internal/journal"
	"github.com/execbot/gotrade/internal/pricing"
	"github.com/execbot/gotrade/internal/push"
	"github.com/execbot/gotrade/internal/refprice"
	"github.com/execbot/gotrade/internal/tracker"
	"github.com/execbot/gotrade/pkg/config"
)

var log = logrus.WithField("module", "setup")

// Deps 组装 bot 所需的共享外设
type Deps struct {
	Base    exchange.Gateway
	Ref     *refprice.Client
	Journal *journal.Journal
	Feed    *push.Feed
}

// Disabled 因配置错误被禁用的 bot
// 配置错误只禁用该 bot，绝不让进程崩溃
type Disabled struct {
	ID     string
	Reason string
}

// Built 一个组装完成的 bot 及其行情监听规格
type Built struct {
	Bot       bot.Bot
	Listeners []engine.ListenerSpec
}

// Result 组装结果
type Result struct {
	Bots     []Built
	Disabled []Disabled
}

// Build 把配置里的每个 bot 组装成可调度实体
func Build(ctx context.Context, wire *config.Wire, deps Deps) Result {
	var res Result
	for i := range wire.Bots {
		bw := &wire.Bots[i]
		b, specs, err := buildBot(ctx, bw, deps)
		if err != nil {
			log.Errorf("❌ bot %s 配置无效，已禁用: %v", bw.ID, err)
			res.Disabled = append(res.Disabled, Disabled{ID: bw.ID, Reason: err.Error()})
			continue
		}
		res.Bots = append(res.Bots, Built{Bot: b, Listeners: specs})
	}
	return res
}

func buildBot(ctx context.Context, bw *config.BotWire, deps Deps) (bot.Bot, []engine.ListenerSpec, error) {
	if bw.ID == "" {
		return nil, nil, fmt.Errorf("missing bot id")
	}

	base := deps.Base
	if bw.DryRun {
		base = exchange.NewDryRunGateway(base)
	}
	gw := exchange.NewCachedGateway(base)

	target, err := parseTarget(bw)
	if err != nil {
		return nil, nil, err
	}

	switch bw.Kind {
	case "", "single":
		if len(bw.Legs) != 1 {
			return nil, nil, fmt.Errorf("single bot needs exactly 1 leg, got %d", len(bw.Legs))
		}
		coord, spec, err := buildLeg(ctx, bw, &bw.Legs[0], gw, deps, target, 0)
		if err != nil {
			return nil, nil, err
		}
		return bot.NewSingleLeg(bw.ID, gw, coord), []engine.ListenerSpec{spec}, nil

	case "dual":
		if len(bw.Legs) != 2 {
			return nil, nil, fmt.Errorf("dual bot needs exactly 2 legs, got %d", len(bw.Legs))
		}
		primaryIdx := 0
		if bw.Legs[1].Primary && !bw.Legs[0].Primary {
			primaryIdx = 1
		}
		primary, pSpec, err := buildLeg(ctx, bw, &bw.Legs[primaryIdx], gw, deps, target, primaryIdx)
		if err != nil {
			return nil, nil, err
		}
		secondary, sSpec, err := buildLeg(ctx, bw, &bw.Legs[1-primaryIdx], gw, deps, gate.Target{}, 1-primaryIdx)
		if err != nil {
			return nil, nil, err
		}
		// 不能把 nil 指针直接塞进接口，否则 nil 判断失效
		var bridge bot.BridgeRater
		if deps.Ref != nil {
			bridge = deps.Ref
		}
		return bot.NewDualLeg(bw.ID, gw, primary, secondary, bridge),
			[]engine.ListenerSpec{pSpec, sSpec}, nil
	}
	return nil, nil, fmt.Errorf("unknown bot kind %q", bw.Kind)
}

func buildLeg(ctx context.Context, bw *config.BotWire, lw *config.LegWire, gw *exchange.CachedGateway, deps Deps, target gate.Target, idx int) (*coordinator.Coordinator, engine.ListenerSpec, error) {
	var spec engine.ListenerSpec
	if lw.Pair == "" || lw.Account == "" {
		return nil, spec, fmt.Errorf("leg %d: pair and account are required", idx)
	}

	side, autoSide, err := parseSide(lw.Side)
	if err != nil {
		return nil, spec, fmt.Errorf("leg %d: %w", idx, err)
	}
	if autoSide && bw.Kind != "dual" {
		// 方向推导依赖对手腿盘口
		return nil, spec, fmt.Errorf("leg %d: side=auto requires a dual bot", idx)
	}

	inst, err := gw.GetInstrumentInfo(ctx, lw.Pair)
	if err != nil {
		return nil, spec, fmt.Errorf("leg %d: instrument lookup: %w", idx, err)
	}
	account, err := gw.GetAccountConfig(ctx, lw.Account)
	if err != nil {
		return nil, spec, fmt.Errorf("leg %d: account lookup: %w", idx, err)
	}

	slice := lw.SliceAmount
	if slice <= 0 && target.Kind == gate.TargetAmount {
		slice = pricing.SliceFromWindow(target.Value, bw.MinWaitSec, bw.MaxWaitSec)
	}
	if slice <= 0 && !lw.Primary && bw.Kind == "dual" {
		// 从腿切片由名义 gap 推导，不需要静态切片
		slice = inst.MinOrderAmount
	}
	if slice <= 0 {
		return nil, spec, fmt.Errorf("leg %d: cannot derive slice amount (set sliceAmount or wait window)", idx)
	}

	strategy, err := buildStrategy(lw, inst)
	if err != nil {
		return nil, spec, fmt.Errorf("leg %d: %w", idx, err)
	}

	gateCfg := gate.Config{
		MaxBookAge:   time.Duration(bw.MaxBookAgeMs) * time.Millisecond,
		ReserveBase:  gate.ReserveDisabled,
		ReserveQuote: gate.ReserveDisabled,
		Target:       target,
	}
	if bw.ReserveBase != nil {
		gateCfg.ReserveBase = *bw.ReserveBase
	}
	if bw.ReserveQuote != nil {
		gateCfg.ReserveQuote = *bw.ReserveQuote
	}
	if bw.Trigger != "" {
		if gateCfg.Trigger = domain.ParseTriggerCondition(bw.Trigger); gateCfg.Trigger == nil {
			log.Warnf("⚠️ [%s] 触发条件字符串无效，按缺省处理: %q", bw.ID, bw.Trigger)
		}
	}
	if bw.Stop != "" {
		if gateCfg.Stop = domain.ParseStopCondition(bw.Stop); gateCfg.Stop == nil {
			log.Warnf("⚠️ [%s] 停止条件字符串无效，按缺省处理: %q", bw.ID, bw.Stop)
		}
	}

	coordCfg := coordinator.Config{
		ClientIDPrefix: bw.ID,
		IsPrimary:      lw.Primary || bw.Kind != "dual",
		AutoSide:       autoSide,
	}
	if lw.SpreadStart != "" {
		g, err := parseSpreadGuard(lw.SpreadStart)
		if err != nil {
			return nil, spec, fmt.Errorf("leg %d: spreadStart: %w", idx, err)
		}
		coordCfg.StartGuard = g
	}
	if lw.SpreadStop != "" {
		g, err := parseSpreadGuard(lw.SpreadStop)
		if err != nil {
			return nil, spec, fmt.Errorf("leg %d: spreadStop: %w", idx, err)
		}
		coordCfg.SuspendGuard = g
	}

	orderType := domain.OrderTypeLimit
	if lw.OrderType == string(domain.OrderTypeMarket) {
		orderType = domain.OrderTypeMarket
	}

	// 数量目标以外的口径由 gate 把关，腿本身不设剩余量上限
	legTarget := 1e18
	if target.Kind == gate.TargetAmount && target.Value > 0 {
		legTarget = target.Value
	}
	leg := &domain.Leg{
		Pair:         lw.Pair,
		Account:      lw.Account,
		Side:         side,
		TargetAmount: legTarget,
		SliceAmount:  slice,
		OrderType:    orderType,
		Status:       domain.LegWaiting,
	}

	trkID := fmt.Sprintf("%s-leg%d", bw.ID, idx)
	var opts []tracker.Option
	if deps.Journal != nil {
		opts = append(opts, tracker.WithCompletedCallback(deps.Journal.RecordFunc(bw.ID)))
	}
	trk := tracker.New(trkID, lw.Account, lw.Pair, gw, opts...)
	if deps.Feed != nil {
		deps.Feed.Subscribe(lw.Account, lw.Pair, trk.Notify)
	}

	var ref gate.RefPricer
	if deps.Ref != nil {
		ref = deps.Ref
	}
	coord := coordinator.New(leg, gw, trk, gate.New(gateCfg, ref), strategy, coordCfg)
	spec = engine.ListenerSpec{Exchange: account.Exchange, Pair: lw.Pair}
	return coord, spec, nil
}

func buildStrategy(lw *config.LegWire, inst *domain.InstrumentInfo) (pricing.Strategy, error) {
	bounds := pricing.Bounds{MinPrice: lw.MinPrice, MaxPrice: lw.MaxPrice}
	increment := lw.Increment
	if increment <= 0 {
		increment = inst.TickSize
	}

	switch lw.Strategy {
	case "", "vanilla":
		return pricing.NewVanilla(increment, bounds), nil
	case "depth":
		benchmark := lw.BenchmarkTicks
		if benchmark <= 0 {
			benchmark = 3
		}
		return pricing.NewDepthAware(increment, inst.TickSize, benchmark, bounds), nil
	case "aggressive":
		level, err := parseAggressiveness(lw.Aggressiveness)
		if err != nil {
			return nil, err
		}
		return pricing.NewAggressive(level, inst.TickSize, lw.OffsetTicks, bounds), nil
	}
	return nil, fmt.Errorf("unknown strategy %q", lw.Strategy)
}

func parseTarget(bw *config.BotWire) (gate.Target, error) {
	switch bw.Target.Kind {
	case "", "amount":
		if bw.Target.Value <= 0 {
			return gate.Target{}, fmt.Errorf("target.value must be positive for amount target")
		}
		return gate.Target{Kind: gate.TargetAmount, Value: bw.Target.Value}, nil
	case "notional":
		if bw.Target.Value <= 0 {
			return gate.Target{}, fmt.Errorf("target.value must be positive for notional target")
		}
		return gate.Target{Kind: gate.TargetNotional, Value: bw.Target.Value}, nil
	case "net_position":
		return gate.Target{Kind: gate.TargetNetPosition, Value: bw.Target.Value}, nil
	}
	return gate.Target{}, fmt.Errorf("unknown target kind %q", bw.Target.Kind)
}

func parseSide(s string) (domain.Side, bool, error) {
	switch s {
	case "buy":
		return domain.SideBuy, false, nil
	case "sell":
		return domain.SideSell, false, nil
	case "auto":
		return domain.SideBuy, true, nil
	}
	return "", false, fmt.Errorf("unknown side %q", s)
}

func parseAggressiveness(s string) (domain.Aggressiveness, error) {
	switch s {
	case "limit_at_best":
		return domain.AggLimitAtBest, nil
	case "tick_worse":
		return domain.AggTickWorse, nil
	case "", "on_top":
		return domain.AggOnTop, nil
	case "on_top_spread":
		return domain.AggOnTopSpread, nil
	case "manual_offset":
		return domain.AggManualOffset, nil
	case "super_cross":
		return domain.AggSuperCross, nil
	case "take_all":
		return domain.AggTakeAll, nil
	}
	return 0, fmt.Errorf("unknown aggressiveness %q", s)
}

// parseSpreadGuard 解析 "kind:threshold"，例如 "abs_gt:0.5"
func parseSpreadGuard(s string) (*coordinator.SpreadGuard, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed spread guard %q", s)
	}
	kind, ok := coordinator.ParseSpreadGuardKind(strings.TrimSpace(parts[0]))
	if !ok {
		return nil, fmt.Errorf("unknown spread guard kind %q", parts[0])
	}
	threshold, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("malformed spread guard threshold %q", parts[1])
	}
	return &coordinator.SpreadGuard{Kind: kind, Threshold: threshold}, nil
}
