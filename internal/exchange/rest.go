package exchange

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/execbot/gotrade/internal/domain"
)

var log = logrus.WithField("module", "exchange")

const (
	defaultTimeout   = 10 * time.Second
	defaultRetry     = 2
	defaultRetryWait = 200 * time.Millisecond
)

// RestGateway 网关服务的 HTTP 客户端
// 交易所协议细节在网关进程一侧实现，这里只打它暴露的 RPC 面
type RestGateway struct {
	http *resty.Client
}

// NewRestGateway 创建网关客户端
func NewRestGateway(baseURL string) *RestGateway {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetRetryCount(defaultRetry).
		SetRetryWaitTime(defaultRetryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// 下单/撤单不自动重试，重试可能导致重复订单
			if r != nil && r.Request.Method != resty.MethodGet {
				return false
			}
			return err != nil || (r != nil && r.StatusCode() >= 500)
		})
	return &RestGateway{http: httpClient}
}

type submitResponse struct {
	OrderID string `json:"orderID"`
}

// SubmitOrder 提交订单
func (g *RestGateway) SubmitOrder(ctx context.Context, req OrderRequest) (string, error) {
	var body submitResponse
	resp, err := g.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"account":       req.Account,
			"pair":          req.Pair,
			"side":          string(req.Side),
			"price":         req.Price,
			"amount":        req.Amount,
			"orderType":     string(req.OrderType),
			"clientOrderID": req.ClientOrderID,
		}).
		SetResult(&body).
		Post("/api/v1/orders")
	if err != nil {
		return "", errors.Wrap(err, "gateway: submit order")
	}
	if resp.IsError() {
		return "", errors.Errorf("gateway: submit order status %d: %s", resp.StatusCode(), resp.String())
	}
	if body.OrderID == "" {
		return "", errors.New("gateway: submit order returned empty orderID")
	}
	return body.OrderID, nil
}

// CancelOrder 撤销订单
func (g *RestGateway) CancelOrder(ctx context.Context, account, pair, orderID string) error {
	resp, err := g.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"account": account, "pair": pair}).
		Delete("/api/v1/orders/" + orderID)
	if err != nil {
		return errors.Wrapf(err, "gateway: cancel order %s", orderID)
	}
	if resp.IsError() {
		return errors.Errorf("gateway: cancel order %s status %d", orderID, resp.StatusCode())
	}
	return nil
}

type orderDetail struct {
	OrderID     string  `json:"orderID"`
	Pair        string  `json:"pair"`
	Account     string  `json:"account"`
	Side        string  `json:"side"`
	Price       float64 `json:"price"`
	Amount      float64 `json:"amount"`
	DealtAmount float64 `json:"dealtAmount"`
	Status      string  `json:"status"`
	CreatedAt   int64   `json:"createdAt"` // 毫秒
	UpdatedAt   int64   `json:"updatedAt"`
}

// GetOrderDetail 获取订单权威状态
func (g *RestGateway) GetOrderDetail(ctx context.Context, account, pair, orderID string) (*domain.Order, error) {
	var body orderDetail
	resp, err := g.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"account": account, "pair": pair}).
		SetResult(&body).
		Get("/api/v1/orders/" + orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "gateway: order detail %s", orderID)
	}
	if resp.IsError() {
		return nil, errors.Errorf("gateway: order detail %s status %d", orderID, resp.StatusCode())
	}
	return &domain.Order{
		OrderID:     body.OrderID,
		Pair:        body.Pair,
		Account:     body.Account,
		Side:        domain.Side(body.Side),
		Price:       body.Price,
		Amount:      body.Amount,
		DealtAmount: body.DealtAmount,
		Status:      domain.OrderStatus(body.Status),
		CreatedAt:   time.UnixMilli(body.CreatedAt),
		UpdatedAt:   time.UnixMilli(body.UpdatedAt),
	}, nil
}

type bookResponse struct {
	Bids      [][]float64 `json:"bids"`
	Asks      [][]float64 `json:"asks"`
	Source    string      `json:"source"`
	Timestamp int64       `json:"timestamp"`
}

// GetOrderBook 获取盘口快照
func (g *RestGateway) GetOrderBook(ctx context.Context, pair, account string) (*domain.OrderBook, error) {
	var body bookResponse
	resp, err := g.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"pair": pair, "account": account}).
		SetResult(&body).
		Get("/api/v1/orderbook")
	if err != nil {
		return nil, errors.Wrapf(err, "gateway: order book %s", pair)
	}
	if resp.IsError() {
		return nil, errors.Errorf("gateway: order book %s status %d", pair, resp.StatusCode())
	}
	return &domain.OrderBook{
		Pair:      pair,
		Source:    body.Source,
		Timestamp: time.UnixMilli(body.Timestamp),
		Bids:      toLevels(body.Bids),
		Asks:      toLevels(body.Asks),
	}, nil
}

type balanceResponse struct {
	Balances []struct {
		Asset          string  `json:"asset"`
		Available      float64 `json:"available"`
		LongAvailable  float64 `json:"longAvailable"`
		ShortAvailable float64 `json:"shortAvailable"`
	} `json:"balances"`
}

// GetBalances 获取账户余额
func (g *RestGateway) GetBalances(ctx context.Context, account string) (domain.AccountBalances, error) {
	var body balanceResponse
	resp, err := g.http.R().
		SetContext(ctx).
		SetQueryParam("account", account).
		SetResult(&body).
		Get("/api/v1/balances")
	if err != nil {
		return nil, errors.Wrapf(err, "gateway: balances of %s", account)
	}
	if resp.IsError() {
		return nil, errors.Errorf("gateway: balances of %s status %d", account, resp.StatusCode())
	}
	out := make(domain.AccountBalances, len(body.Balances))
	for _, b := range body.Balances {
		out[b.Asset] = domain.Balance{
			Asset:          b.Asset,
			Available:      b.Available,
			LongAvailable:  b.LongAvailable,
			ShortAvailable: b.ShortAvailable,
		}
	}
	return out, nil
}

// GetAccountConfig 获取账户配置
func (g *RestGateway) GetAccountConfig(ctx context.Context, account string) (*domain.AccountConfig, error) {
	var body domain.AccountConfig
	resp, err := g.http.R().
		SetContext(ctx).
		SetQueryParam("account", account).
		SetResult(&body).
		Get("/api/v1/account")
	if err != nil {
		return nil, errors.Wrapf(err, "gateway: account config of %s", account)
	}
	if resp.IsError() {
		return nil, errors.Errorf("gateway: account config of %s status %d", account, resp.StatusCode())
	}
	return &body, nil
}

// GetInstrumentInfo 获取交易对元信息
func (g *RestGateway) GetInstrumentInfo(ctx context.Context, pair string) (*domain.InstrumentInfo, error) {
	var body domain.InstrumentInfo
	resp, err := g.http.R().
		SetContext(ctx).
		SetQueryParam("pair", pair).
		SetResult(&body).
		Get("/api/v1/instrument")
	if err != nil {
		return nil, errors.Wrapf(err, "gateway: instrument %s", pair)
	}
	if resp.IsError() {
		return nil, errors.Errorf("gateway: instrument %s status %d", pair, resp.StatusCode())
	}
	return &body, nil
}

func toLevels(raw [][]float64) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(raw))
	var sum float64
	for _, r := range raw {
		if len(r) < 2 {
			continue
		}
		sum += r[1]
		levels = append(levels, domain.PriceLevel{Price: r[0], Amount: r[1], Sum: sum})
	}
	return levels
}
