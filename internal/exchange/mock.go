package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/execbot/gotrade/internal/domain"
)

// MockGateway 内存撮合桩，用于测试与 dry-run 演练
// 不做真实撮合：订单提交后状态由测试方通过 FillOrder/SetOrderStatus 驱动
type MockGateway struct {
	mu sync.Mutex

	books    map[string]*domain.OrderBook
	balances map[string]domain.AccountBalances
	accounts map[string]*domain.AccountConfig
	insts    map[string]*domain.InstrumentInfo
	orders   map[string]*domain.Order

	nextID      int
	CancelCalls []string // 记录被撤销的订单 ID
	SubmitErr   error    // 注入提交错误
	CancelErr   error    // 注入撤销错误
	DetailErr   error    // 注入查询错误
}

// NewMockGateway 创建 mock 网关
func NewMockGateway() *MockGateway {
	return &MockGateway{
		books:    make(map[string]*domain.OrderBook),
		balances: make(map[string]domain.AccountBalances),
		accounts: make(map[string]*domain.AccountConfig),
		insts:    make(map[string]*domain.InstrumentInfo),
		orders:   make(map[string]*domain.Order),
	}
}

// SetOrderBook 设置某交易对的盘口快照；传 nil 表示该交易对行情不可用
func (m *MockGateway) SetOrderBook(pair string, book *domain.OrderBook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if book == nil {
		delete(m.books, pair)
		return
	}
	m.books[pair] = book
}

// SetBalances 设置账户余额
func (m *MockGateway) SetBalances(account string, balances domain.AccountBalances) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] = balances
}

// SetAccountConfig 设置账户配置
func (m *MockGateway) SetAccountConfig(account string, cfg *domain.AccountConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account] = cfg
}

// SetInstrumentInfo 设置交易对元信息
func (m *MockGateway) SetInstrumentInfo(pair string, info *domain.InstrumentInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insts[pair] = info
}

// SubmitOrder 记录订单，初始状态 open
func (m *MockGateway) SubmitOrder(ctx context.Context, req OrderRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubmitErr != nil {
		return "", m.SubmitErr
	}
	m.nextID++
	id := fmt.Sprintf("mock-%d", m.nextID)
	now := time.Now()
	m.orders[id] = &domain.Order{
		OrderID:   id,
		Pair:      req.Pair,
		Account:   req.Account,
		Side:      req.Side,
		Price:     req.Price,
		Amount:    req.Amount,
		Status:    domain.OrderStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return id, nil
}

// CancelOrder 记录撤销请求并把订单置为 cancelled
func (m *MockGateway) CancelOrder(ctx context.Context, account, pair, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CancelCalls = append(m.CancelCalls, orderID)
	if m.CancelErr != nil {
		return m.CancelErr
	}
	if o, ok := m.orders[orderID]; ok && !o.IsTerminal() {
		o.Status = domain.OrderStatusCancelled
		o.UpdatedAt = time.Now()
	}
	return nil
}

// GetOrderDetail 返回订单快照副本
func (m *MockGateway) GetOrderDetail(ctx context.Context, account, pair, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DetailErr != nil {
		return nil, m.DetailErr
	}
	o, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("mock: order %s not found", orderID)
	}
	cp := *o
	return &cp, nil
}

// GetOrderBook 返回盘口快照
func (m *MockGateway) GetOrderBook(ctx context.Context, pair, account string) (*domain.OrderBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	book, ok := m.books[pair]
	if !ok {
		return nil, fmt.Errorf("mock: no book for %s", pair)
	}
	return book, nil
}

// GetBalances 返回账户余额
func (m *MockGateway) GetBalances(ctx context.Context, account string) (domain.AccountBalances, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[account]
	if !ok {
		return nil, fmt.Errorf("mock: no balances for %s", account)
	}
	return b, nil
}

// GetAccountConfig 返回账户配置（未设置时给现货默认值）
func (m *MockGateway) GetAccountConfig(ctx context.Context, account string) (*domain.AccountConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.accounts[account]; ok {
		return cfg, nil
	}
	return &domain.AccountConfig{Account: account, Exchange: "mock", Leverage: 1}, nil
}

// GetInstrumentInfo 返回交易对元信息（未设置时给常用默认值）
func (m *MockGateway) GetInstrumentInfo(ctx context.Context, pair string) (*domain.InstrumentInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.insts[pair]; ok {
		return info, nil
	}
	return &domain.InstrumentInfo{
		Pair:       pair,
		TickSize:   0.01,
		AmountPrec: 4,
		Multiplier: 1,
	}, nil
}

// FillOrder 模拟（部分）成交
func (m *MockGateway) FillOrder(orderID string, amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.IsTerminal() {
		return
	}
	o.DealtAmount += amount
	o.UpdatedAt = time.Now()
	if o.DealtAmount >= o.Amount {
		o.DealtAmount = o.Amount
		o.Status = domain.OrderStatusCompleted
	} else {
		o.Status = domain.OrderStatusPartiallyFilled
	}
}

// SetOrderStatus 直接改写订单状态
func (m *MockGateway) SetOrderStatus(orderID string, status domain.OrderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[orderID]; ok {
		o.Status = status
		o.UpdatedAt = time.Now()
	}
}

// OpenOrderCount 返回非终态订单数
func (m *MockGateway) OpenOrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.orders {
		if !o.IsTerminal() {
			n++
		}
	}
	return n
}
