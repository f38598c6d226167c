package journal

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/execbot/gotrade/internal/domain"
)

var log = logrus.WithField("module", "journal")

// Journal 终态订单流水库
// tracker 的终态回调把每笔完成/失败订单落进 SQLite，进程重启后
// 历史成交仍可审计；它不参与执行决策，写失败只记日志
type Journal struct {
	db *sql.DB
}

// Open 打开（必要时创建）流水库
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "journal: open db")
	}
	// SQLite 写并发受限，单连接串行化所有写入
	db.SetMaxOpenConns(1)

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS orders (
	order_id     TEXT PRIMARY KEY,
	bot_id       TEXT NOT NULL,
	account      TEXT NOT NULL,
	pair         TEXT NOT NULL,
	side         TEXT NOT NULL,
	price        REAL NOT NULL,
	amount       REAL NOT NULL,
	dealt_amount REAL NOT NULL,
	status       TEXT NOT NULL,
	failed       INTEGER NOT NULL DEFAULT 0,
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL,
	recorded_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_bot ON orders(bot_id, recorded_at);
`
	if _, err := j.db.Exec(schema); err != nil {
		return errors.Wrap(err, "journal: migrate")
	}
	return nil
}

// Record 落一笔终态订单（幂等：同 orderID 重复写会被忽略）
func (j *Journal) Record(botID string, order *domain.Order, failed bool) error {
	const q = `
INSERT OR IGNORE INTO orders
(order_id, bot_id, account, pair, side, price, amount, dealt_amount, status, failed, created_at, updated_at, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	failedInt := 0
	if failed {
		failedInt = 1
	}
	_, err := j.db.Exec(q,
		order.OrderID, botID, order.Account, order.Pair, string(order.Side),
		order.Price, order.Amount, order.DealtAmount, string(order.Status), failedInt,
		order.CreatedAt.UnixMilli(), order.UpdatedAt.UnixMilli(), time.Now().UnixMilli(),
	)
	if err != nil {
		return errors.Wrapf(err, "journal: record %s", order.OrderID)
	}
	return nil
}

// RecordFunc 返回可直接挂到 tracker 终态回调上的函数
func (j *Journal) RecordFunc(botID string) func(order *domain.Order, failed bool) {
	return func(order *domain.Order, failed bool) {
		if err := j.Record(botID, order, failed); err != nil {
			log.Errorf("❌ 订单流水落库失败: orderID=%s err=%v", order.OrderID, err)
		}
	}
}

// Orders 按 bot 读取流水（recorded_at 升序）
func (j *Journal) Orders(botID string) ([]*domain.Order, error) {
	const q = `
SELECT order_id, account, pair, side, price, amount, dealt_amount, status, created_at, updated_at
FROM orders WHERE bot_id = ? ORDER BY recorded_at ASC`
	rows, err := j.db.Query(q, botID)
	if err != nil {
		return nil, errors.Wrapf(err, "journal: query orders of %s", botID)
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		var o domain.Order
		var side, status string
		var createdMs, updatedMs int64
		if err := rows.Scan(&o.OrderID, &o.Account, &o.Pair, &side, &o.Price,
			&o.Amount, &o.DealtAmount, &status, &createdMs, &updatedMs); err != nil {
			return nil, errors.Wrap(err, "journal: scan order")
		}
		o.Side = domain.Side(side)
		o.Status = domain.OrderStatus(status)
		o.CreatedAt = time.UnixMilli(createdMs)
		o.UpdatedAt = time.UnixMilli(updatedMs)
		out = append(out, &o)
	}
	return out, rows.Err()
}

// Close 关闭流水库
func (j *Journal) Close() error {
	return j.db.Close()
}
