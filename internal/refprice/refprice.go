package refprice

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/execbot/gotrade/internal/domain"
	"github.com/execbot/gotrade/pkg/cache"
)

var log = logrus.WithField("module", "refprice")

const (
	defaultTimeout   = 5 * time.Second
	defaultRetry     = 2
	defaultRetryWait = 300 * time.Millisecond
	// 参考价快照的短缓存，触发条件每周期评估一次，不需要逐次打网络
	defaultCacheTTL = time.Second
)

// bookResponse 参考价服务的盘口应答
type bookResponse struct {
	Bids      [][]float64 `json:"bids"` // [price, amount]
	Asks      [][]float64 `json:"asks"`
	Timestamp int64       `json:"timestamp"` // 毫秒
}

// Client 参考价服务客户端
// 触发条件需要另一个交易所的价格，经由独立的参考价 HTTP 服务读取
type Client struct {
	base  string
	http  *resty.Client
	books *cache.InMemoryCache[string, *domain.OrderBook]
}

// NewClient 创建参考价客户端
func NewClient(baseURL string) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetRetryCount(defaultRetry).
		SetRetryWaitTime(defaultRetryWait)

	return &Client{
		base:  baseURL,
		http:  httpClient,
		books: cache.NewInMemoryCache[string, *domain.OrderBook](defaultCacheTTL),
	}
}

// OrderBook 获取参考交易所某交易对的盘口快照
func (c *Client) OrderBook(ctx context.Context, exchange, pair string) (*domain.OrderBook, error) {
	key := exchange + ":" + pair
	if book, ok := c.books.Get(key); ok {
		return book, nil
	}

	var body bookResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"exchange": exchange,
			"pair":     pair,
		}).
		SetResult(&body).
		Get("/api/v1/orderbook")
	if err != nil {
		return nil, errors.Wrapf(err, "refprice: fetch book %s:%s", exchange, pair)
	}
	if resp.IsError() {
		return nil, errors.Errorf("refprice: fetch book %s:%s status %d", exchange, pair, resp.StatusCode())
	}
	if len(body.Bids) == 0 || len(body.Asks) == 0 {
		return nil, errors.Errorf("refprice: empty book %s:%s", exchange, pair)
	}

	book := &domain.OrderBook{
		Pair:      pair,
		Source:    exchange,
		Timestamp: time.UnixMilli(body.Timestamp),
		Bids:      toLevels(body.Bids),
		Asks:      toLevels(body.Asks),
	}
	c.books.Set(key, book, 0)
	log.Debugf("📡 参考盘口已更新: %s:%s bid=%v ask=%v", exchange, pair, book.Bids[0].Price, book.Asks[0].Price)
	return book, nil
}

// Mid 参考交易所的中间价（gate 触发条件用）
func (c *Client) Mid(ctx context.Context, exchange, pair string) (float64, error) {
	book, err := c.OrderBook(ctx, exchange, pair)
	if err != nil {
		return 0, err
	}
	mid, ok := book.Mid()
	if !ok {
		return 0, fmt.Errorf("refprice: no mid for %s:%s", exchange, pair)
	}
	return mid, nil
}

// BridgeRate 资产 → USDT 的桥汇率；USDT/USD 直接视为 1
func (c *Client) BridgeRate(ctx context.Context, exchange, asset string) (float64, error) {
	switch asset {
	case "", "USDT", "usdt", "USD", "usd":
		return 1, nil
	}
	return c.Mid(ctx, exchange, asset+"_usdt")
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
