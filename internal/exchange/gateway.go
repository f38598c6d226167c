package exchange

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/execbot/gotrade/internal/domain"
)

// OrderRequest 下单请求
type OrderRequest struct {
	Account       string
	Pair          string
	Side          domain.Side
	Price         float64
	Amount        float64
	OrderType     domain.OrderType
	ClientOrderID string
}

// Gateway 交易所网关
// 订单提交/撤销、盘口、余额、账户配置都经由它；协议实现在网关进程一侧，
// 这里只消费其 RPC 面
type Gateway interface {
	// SubmitOrder 提交订单，返回交易所订单 ID
	SubmitOrder(ctx context.Context, req OrderRequest) (string, error)
	// CancelOrder 撤销订单（尽力而为，确认以后续对账为准）
	CancelOrder(ctx context.Context, account, pair, orderID string) error
	// GetOrderDetail 获取订单权威状态
	GetOrderDetail(ctx context.Context, account, pair, orderID string) (*domain.Order, error)
	// GetOrderBook 获取盘口快照
	GetOrderBook(ctx context.Context, pair, account string) (*domain.OrderBook, error)
	// GetBalances 获取账户余额（衍生品含多/空子余额）
	GetBalances(ctx context.Context, account string) (domain.AccountBalances, error)
	// GetAccountConfig 获取账户配置（交易所名、持仓模式、杠杆等）
	GetAccountConfig(ctx context.Context, account string) (*domain.AccountConfig, error)
	// GetInstrumentInfo 获取交易对元信息
	GetInstrumentInfo(ctx context.Context, pair string) (*domain.InstrumentInfo, error)
}

// NewClientOrderID 生成客户端订单 ID
func NewClientOrderID(prefix string) string {
	if prefix == "" {
		prefix = "gotrade"
	}
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return prefix + "-" + id[:20]
}
