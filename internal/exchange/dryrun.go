package exchange

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/execbot/gotrade/internal/domain"
)

var dryLog = logrus.WithField("module", "exchange.dryrun")

// DryRunGateway 纸交易网关：读操作透传真实网关，写操作只打日志
// 订单落到内嵌的 MockGateway 上，tracker/决策循环可以照常走完整流程
type DryRunGateway struct {
	Gateway

	sim *MockGateway
}

// NewDryRunGateway 包装网关为纸交易模式
func NewDryRunGateway(real Gateway) *DryRunGateway {
	return &DryRunGateway{
		Gateway: real,
		sim:     NewMockGateway(),
	}
}

// SubmitOrder 不提交真实订单，只记录到内存
func (d *DryRunGateway) SubmitOrder(ctx context.Context, req OrderRequest) (string, error) {
	id, err := d.sim.SubmitOrder(ctx, req)
	dryLog.Infof("📝 [dry-run] 下单: pair=%s side=%s price=%.8f amount=%.4f -> %s",
		req.Pair, req.Side, req.Price, req.Amount, id)
	return id, err
}

// CancelOrder 撤内存订单
func (d *DryRunGateway) CancelOrder(ctx context.Context, account, pair, orderID string) error {
	dryLog.Infof("📝 [dry-run] 撤单: orderID=%s", orderID)
	return d.sim.CancelOrder(ctx, account, pair, orderID)
}

// GetOrderDetail 查内存订单
func (d *DryRunGateway) GetOrderDetail(ctx context.Context, account, pair, orderID string) (*domain.Order, error) {
	return d.sim.GetOrderDetail(ctx, account, pair, orderID)
}
