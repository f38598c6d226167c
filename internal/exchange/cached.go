package exchange

import (
	"context"
	"time"

	"github.com/execbot/gotrade/internal/domain"
	"github.com/execbot/gotrade/pkg/cache"
)

const (
	// DefaultAccountConfigTTL 账户配置缓存时长
	// 账户配置（持仓模式/杠杆）运行期可能被人工改动，不能缓存到死
	DefaultAccountConfigTTL = 5 * time.Minute
	// DefaultInstrumentTTL 交易对元信息缓存时长
	DefaultInstrumentTTL = 30 * time.Minute
)

// CachedGateway 在 Gateway 之上加 read-through 缓存
// 只缓存低频变化的配置类查询；盘口/余额/订单永远直连
type CachedGateway struct {
	Gateway

	accounts    *cache.ReadThrough[string, *domain.AccountConfig]
	instruments *cache.ReadThrough[string, *domain.InstrumentInfo]
}

// NewCachedGateway 包装网关
func NewCachedGateway(gw Gateway) *CachedGateway {
	c := &CachedGateway{Gateway: gw}
	c.accounts = cache.NewReadThrough(DefaultAccountConfigTTL, func(account string) (*domain.AccountConfig, error) {
		return gw.GetAccountConfig(context.Background(), account)
	})
	c.instruments = cache.NewReadThrough(DefaultInstrumentTTL, func(pair string) (*domain.InstrumentInfo, error) {
		return gw.GetInstrumentInfo(context.Background(), pair)
	})
	return c
}

// GetAccountConfig 读穿缓存版本
func (c *CachedGateway) GetAccountConfig(ctx context.Context, account string) (*domain.AccountConfig, error) {
	_ = ctx
	return c.accounts.Get(account)
}

// GetInstrumentInfo 读穿缓存版本
func (c *CachedGateway) GetInstrumentInfo(ctx context.Context, pair string) (*domain.InstrumentInfo, error) {
	_ = ctx
	return c.instruments.Get(pair)
}

// InvalidateAccount 账户配置变更后手动失效
func (c *CachedGateway) InvalidateAccount(account string) {
	c.accounts.Invalidate(account)
}
