package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/execbot/gotrade/internal/domain"
	"github.com/execbot/gotrade/internal/exchange"
	"github.com/execbot/gotrade/pkg/sigchan"
	"github.com/execbot/gotrade/pkg/syncgroup"
)

var log = logrus.WithField("module", "tracker")

const (
	// DefaultPollInterval 对账轮询间隔
	DefaultPollInterval = 200 * time.Millisecond
	// DefaultMaxWait 订单最长未决时间，超过按 Failed 处理
	DefaultMaxWait = 300 * time.Second
	// DefaultCancelRetryInterval 重复撤单的最小间隔
	DefaultCancelRetryInterval = 10 * time.Second
	// DefaultMaxCancelAttempts 撤单尝试预算，超过按 Failed 处理
	DefaultMaxCancelAttempts = 10
	// errorBackoff 单次迭代异常后的休眠时间
	errorBackoff = 5 * time.Second
)

// trackedOrder 在管订单及其对账簿记
type trackedOrder struct {
	Order          *domain.Order `json:"order"`
	AddedAt        time.Time     `json:"addedAt"`
	LastCancelAt   time.Time     `json:"lastCancelAt"`
	CancelAttempts int           `json:"cancelAttempts"`
}

// sideTotals 单侧成交累计
type sideTotals struct {
	Amount   float64 `json:"amount"`
	Notional float64 `json:"notional"`
}

// Tracker 订单生命周期追踪器
// 本进程提交过的订单的权威台账：后台循环按固定间隔对账交易所状态，
// 终态订单移入完成/失败集合并累计成交量。所有状态变更和聚合读取都在
// 同一把互斥锁下，读方看到的永远是一致快照
type Tracker struct {
	id string // bot/leg 标识，用于日志与持久化 key

	account string
	pair    string
	gw      exchange.Gateway

	mu        sync.Mutex
	open      map[string]*trackedOrder
	completed []*domain.Order
	failed    []*domain.Order
	dealt     map[domain.Side]*sideTotals // 终态订单的按侧累计
	preload   map[domain.Side]*sideTotals // 暖重启带入的起始成交量

	pollInterval        time.Duration
	maxWait             time.Duration
	cancelRetryInterval time.Duration
	maxCancelAttempts   int

	// onCompleted 订单进入终态（completed/failed）时回调（锁外执行）
	onCompleted func(order *domain.Order, failed bool)

	kick  *sigchan.Chan // 推送通道可触发立即对账
	stopC chan struct{}
	sg    *syncgroup.SyncGroup
}

// Option 构造选项
type Option func(*Tracker)

// WithPollInterval 覆盖轮询间隔
func WithPollInterval(d time.Duration) Option {
	return func(t *Tracker) { t.pollInterval = d }
}

// WithMaxWait 覆盖最长未决时间
func WithMaxWait(d time.Duration) Option {
	return func(t *Tracker) { t.maxWait = d }
}

// WithCancelRetryInterval 覆盖撤单重试间隔
func WithCancelRetryInterval(d time.Duration) Option {
	return func(t *Tracker) { t.cancelRetryInterval = d }
}

// WithMaxCancelAttempts 覆盖撤单预算
func WithMaxCancelAttempts(n int) Option {
	return func(t *Tracker) { t.maxCancelAttempts = n }
}

// WithCompletedCallback 注册终态回调（journal 落库、推送等挂这里）
func WithCompletedCallback(fn func(order *domain.Order, failed bool)) Option {
	return func(t *Tracker) { t.onCompleted = fn }
}

// New 创建 tracker
func New(id, account, pair string, gw exchange.Gateway, opts ...Option) *Tracker {
	t := &Tracker{
		id:                  id,
		account:             account,
		pair:                pair,
		gw:                  gw,
		open:                make(map[string]*trackedOrder),
		dealt:               newSideTotals(),
		preload:             newSideTotals(),
		pollInterval:        DefaultPollInterval,
		maxWait:             DefaultMaxWait,
		cancelRetryInterval: DefaultCancelRetryInterval,
		maxCancelAttempts:   DefaultMaxCancelAttempts,
		kick:                sigchan.New(1),
		stopC:               make(chan struct{}),
		sg:                  syncgroup.NewSyncGroup(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func newSideTotals() map[domain.Side]*sideTotals {
	return map[domain.Side]*sideTotals{
		domain.SideBuy:  {},
		domain.SideSell: {},
	}
}

// SetPreload 设置暖重启起始成交量（参与 Dealt/DealtPrice 聚合）
func (t *Tracker) SetPreload(side domain.Side, amount, notional float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.preload[side] = &sideTotals{Amount: amount, Notional: notional}
}

// Add 注册一个刚提交的订单：拉一次权威快照作为起点
func (t *Tracker) Add(ctx context.Context, orderID string) error {
	order, err := t.gw.GetOrderDetail(ctx, t.account, t.pair, orderID)
	if err != nil {
		// 拉不到快照也要登记，否则订单会脱管；状态先按 sending 占位
		log.Warnf("⚠️ [tracker:%s] 新订单快照获取失败，先按 sending 登记: orderID=%s err=%v", t.id, orderID, err)
		order = &domain.Order{
			OrderID:   orderID,
			Pair:      t.pair,
			Account:   t.account,
			Status:    domain.OrderStatusSending,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.open[orderID]; exists {
		return nil
	}
	t.open[orderID] = &trackedOrder{
		Order:   order,
		AddedAt: time.Now(),
	}
	log.Debugf("📝 [tracker:%s] 订单已登记: orderID=%s status=%s", t.id, orderID, order.Status)
	return nil
}

// Notify 外部（推送 feed）通知订单可能有更新，触发一次立即对账
// 轮询仍是正确性基线，推送只是加速器
func (t *Tracker) Notify() {
	t.kick.Emit()
}

// Start 启动后台对账循环
func (t *Tracker) Start(ctx context.Context) {
	t.sg.Add(func() { t.loop(ctx) })
	t.sg.Run()
}

// Stop 通知循环在下一个轮询边界退出并等待
func (t *Tracker) Stop() {
	close(t.stopC)
	t.sg.Wait()
}

// loop 固定间隔对账循环；单次迭代的任何异常都被吞掉并退避，循环本身
// 只在显式 Stop 时退出
func (t *Tracker) loop(ctx context.Context) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopC:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-t.kick.C():
		}

		if err := t.safeReconcile(ctx); err != nil {
			log.Errorf("❌ [tracker:%s] 对账迭代异常: %v", t.id, err)
			select {
			case <-t.stopC:
				return
			case <-ctx.Done():
				return
			case <-time.After(errorBackoff):
			}
		}
	}
}

// safeReconcile 带 recover 的单次对账
func (t *Tracker) safeReconcile(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errPanic{r}
		}
	}()
	t.reconcileOnce(ctx)
	return nil
}

type errPanic struct{ v interface{} }

func (e errPanic) Error() string { return "panic in reconcile" }

// reconcileOnce 对每个在管订单强制刷新一次权威状态并收敛
func (t *Tracker) reconcileOnce(ctx context.Context) {
	t.mu.Lock()
	ids := make([]string, 0, len(t.open))
	for id := range t.open {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	now := time.Now()
	for _, id := range ids {
		detail, err := t.gw.GetOrderDetail(ctx, t.account, t.pair, id)
		t.reconcileOrder(ctx, id, detail, err, now)
	}
}

// reconcileOrder 收敛单个订单；detail 为 nil 表示本轮查询失败
func (t *Tracker) reconcileOrder(ctx context.Context, orderID string, detail *domain.Order, detailErr error, now time.Time) {
	var completedOrder *domain.Order
	var completedFailed bool
	var cancelReq bool

	t.mu.Lock()
	tr, ok := t.open[orderID]
	if !ok {
		t.mu.Unlock()
		return
	}

	if detailErr == nil && detail != nil {
		// dealt 单调不减：交易所偶发回退的快照不采纳
		if detail.DealtAmount >= tr.Order.DealtAmount {
			tr.Order = detail
		} else {
			log.Warnf("⚠️ [tracker:%s] 忽略 dealt 回退快照: orderID=%s %.8f -> %.8f",
				t.id, orderID, tr.Order.DealtAmount, detail.DealtAmount)
		}
	} else if detailErr != nil {
		log.Warnf("⚠️ [tracker:%s] 订单详情查询失败: orderID=%s err=%v", t.id, orderID, detailErr)
	}

	order := tr.Order
	switch {
	case order.Status == domain.OrderStatusCompleted || order.Status == domain.OrderStatusCancelled:
		// 终态：折入按侧累计后移入完成集合
		if order.DealtAmount > 0 {
			t.dealt[order.Side].Amount += order.DealtAmount
			t.dealt[order.Side].Notional += order.DealtAmount * order.Price
		}
		t.completed = append(t.completed, order)
		delete(t.open, orderID)
		completedOrder = order
		log.Infof("✅ [tracker:%s] 订单终结: orderID=%s status=%s dealt=%.4f", t.id, orderID, order.Status, order.DealtAmount)

	case now.Sub(tr.AddedAt) > t.maxWait || tr.CancelAttempts >= t.maxCancelAttempts:
		// 超时未决或撤单预算耗尽：按 Failed 处理，部分成交照样折入
		order.Status = domain.OrderStatusFailed
		if order.DealtAmount > 0 {
			t.dealt[order.Side].Amount += order.DealtAmount
			t.dealt[order.Side].Notional += order.DealtAmount * order.Price
		}
		t.failed = append(t.failed, order)
		delete(t.open, orderID)
		completedOrder = order
		completedFailed = true
		log.Warnf("🚨 [tracker:%s] 订单按失败处理: orderID=%s age=%s cancelAttempts=%d dealt=%.4f",
			t.id, orderID, now.Sub(tr.AddedAt), tr.CancelAttempts, order.DealtAmount)

	default:
		// 仍未决：预算内且距上次动作超过重试间隔时补一次防御性撤单
		// 刚提交（sending）的订单不撤，交易所可能还没建立订单
		last := tr.AddedAt
		if tr.LastCancelAt.After(last) {
			last = tr.LastCancelAt
		}
		if tr.CancelAttempts < t.maxCancelAttempts &&
			now.Sub(last) >= t.cancelRetryInterval &&
			!order.IsSending() {
			tr.CancelAttempts++
			tr.LastCancelAt = now
			cancelReq = true
		}
	}
	t.mu.Unlock()

	if cancelReq {
		// 撤单 fire-and-forget：确认由下一轮对账给出，
		// “已请求撤销但仍 open”的瞬态窗口是预期行为
		if err := t.gw.CancelOrder(ctx, t.account, t.pair, orderID); err != nil {
			log.Warnf("⚠️ [tracker:%s] 防御性撤单失败: orderID=%s err=%v", t.id, orderID, err)
		} else {
			log.Debugf("🔄 [tracker:%s] 已发防御性撤单: orderID=%s", t.id, orderID)
		}
	}

	if completedOrder != nil && t.onCompleted != nil {
		// 回调在锁外执行，避免回调里再读聚合造成死锁
		t.onCompleted(completedOrder, completedFailed)
	}
}

// CancelAllOpenOrders 关停前的尽力撤单清场
func (t *Tracker) CancelAllOpenOrders(ctx context.Context) {
	t.mu.Lock()
	ids := make([]string, 0, len(t.open))
	for id := range t.open {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	for _, id := range ids {
		if err := t.gw.CancelOrder(ctx, t.account, t.pair, id); err != nil {
			log.Warnf("⚠️ [tracker:%s] 清场撤单失败: orderID=%s err=%v", t.id, id, err)
		}
	}
	if len(ids) > 0 {
		log.Infof("🧹 [tracker:%s] 清场撤单已发出，共 %d 笔", t.id, len(ids))
	}
}

// Dealt 总成交数量 = 终态累计 + 在管订单的实时部分成交 + 暖重启预载
func (t *Tracker) Dealt() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dealtLocked()
}

func (t *Tracker) dealtLocked() float64 {
	total := t.preload[domain.SideBuy].Amount + t.preload[domain.SideSell].Amount
	total += t.dealt[domain.SideBuy].Amount + t.dealt[domain.SideSell].Amount
	for _, tr := range t.open {
		total += tr.Order.DealtAmount
	}
	return total
}

// DealtPrice 全部成交（含预载）的加权平均价；无成交时返回 0
func (t *Tracker) DealtPrice() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	amount := t.dealtLocked()
	if amount <= 0 {
		return 0
	}
	notional := t.preload[domain.SideBuy].Notional + t.preload[domain.SideSell].Notional
	notional += t.dealt[domain.SideBuy].Notional + t.dealt[domain.SideSell].Notional
	for _, tr := range t.open {
		notional += tr.Order.DealtAmount * tr.Order.Price
	}
	return notional / amount
}

// Pending 在管订单的未成交数量之和
func (t *Tracker) Pending() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var sum float64
	for _, tr := range t.open {
		sum += tr.Order.Remaining()
	}
	return sum
}

// SideDealt 单侧成交数量（含该侧预载与在管部分成交）
func (t *Tracker) SideDealt(side domain.Side) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := t.preload[side].Amount + t.dealt[side].Amount
	for _, tr := range t.open {
		if tr.Order.Side == side {
			total += tr.Order.DealtAmount
		}
	}
	return total
}

// SideDealtPrice 单侧加权平均成交价
func (t *Tracker) SideDealtPrice(side domain.Side) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	amount := t.preload[side].Amount + t.dealt[side].Amount
	notional := t.preload[side].Notional + t.dealt[side].Notional
	for _, tr := range t.open {
		if tr.Order.Side == side {
			amount += tr.Order.DealtAmount
			notional += tr.Order.DealtAmount * tr.Order.Price
		}
	}
	if amount <= 0 {
		return 0
	}
	return notional / amount
}

// SideDealtNotional 单侧成交名义金额（含预载与在管部分成交）
func (t *Tracker) SideDealtNotional(side domain.Side) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	notional := t.preload[side].Notional + t.dealt[side].Notional
	for _, tr := range t.open {
		if tr.Order.Side == side {
			notional += tr.Order.DealtAmount * tr.Order.Price
		}
	}
	return notional
}

// DealtNotional 全部成交名义金额（含预载与在管部分成交）
func (t *Tracker) DealtNotional() float64 {
	return t.SideDealtNotional(domain.SideBuy) + t.SideDealtNotional(domain.SideSell)
}

// NetPosition 净头寸 = 买入成交 − 卖出成交（含预载）
func (t *Tracker) NetPosition() float64 {
	return t.SideDealt(domain.SideBuy) - t.SideDealt(domain.SideSell)
}

// OpenCount 在管订单数
func (t *Tracker) OpenCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}

// OpenOrder 返回唯一在管订单的快照（single-flight 下最多一笔）
func (t *Tracker) OpenOrder() (*domain.Order, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tr := range t.open {
		cp := *tr.Order
		return &cp, true
	}
	return nil, false
}

// LastOrderUpdate 返回全部在管订单中最新的交易所更新时间
// 盘口新鲜度检查用它判断快照是否晚于自家订单的最后变动
func (t *Tracker) LastOrderUpdate() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	var latest time.Time
	for _, tr := range t.open {
		if tr.Order.UpdatedAt.After(latest) {
			latest = tr.Order.UpdatedAt
		}
	}
	return latest
}

// CompletedOrders 返回完成集合的副本
func (t *Tracker) CompletedOrders() []*domain.Order {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*domain.Order, len(t.completed))
	copy(out, t.completed)
	return out
}

// Report 从完成集合重算汇总报表
func (t *Tracker) Report() domain.ExecutionReport {
	return domain.BuildReport(t.CompletedOrders())
}
