package push

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/execbot/gotrade/pkg/syncgroup"
)

var log = logrus.WithField("module", "push")

const (
	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second
	readTimeout   = 90 * time.Second
)

// Update 网关推送的订单更新事件
type Update struct {
	Account string `json:"account"`
	Pair    string `json:"pair"`
	OrderID string `json:"orderID"`
	Status  string `json:"status"`
}

// Feed 订单更新推送通道
// 只是轮询的加速器：收到事件就踢对应 tracker 立即对一轮账，
// 连不上、断线、丢事件都不影响正确性（轮询兜底）
type Feed struct {
	url    string
	dialer *websocket.Dialer

	mu   sync.Mutex
	subs map[string][]func()

	stopC chan struct{}
	sg    *syncgroup.SyncGroup
}

// NewFeed 创建推送通道
func NewFeed(url string) *Feed {
	return &Feed{
		url:    url,
		dialer: websocket.DefaultDialer,
		subs:   make(map[string][]func()),
		stopC:  make(chan struct{}),
		sg:     syncgroup.NewSyncGroup(),
	}
}

// Subscribe 订阅某账户+交易对的订单更新，事件到达时回调 notify
func (f *Feed) Subscribe(account, pair string, notify func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := account + ":" + pair
	f.subs[key] = append(f.subs[key], notify)
}

// Start 启动接收循环（断线自动重连，线性退避封顶 30s）
func (f *Feed) Start(ctx context.Context) {
	if f.url == "" {
		log.Infof("📴 未配置推送地址，仅靠轮询对账")
		return
	}
	f.sg.Add(func() { f.run(ctx) })
	f.sg.Run()
}

// Stop 关闭接收循环
func (f *Feed) Stop() {
	close(f.stopC)
	f.sg.Wait()
}

func (f *Feed) run(ctx context.Context) {
	attempt := 0
	for {
		select {
		case <-f.stopC:
			return
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
		if err != nil {
			attempt++
			wait := time.Duration(attempt) * reconnectBase
			if wait > reconnectMax {
				wait = reconnectMax
			}
			log.Warnf("⚠️ 推送连接失败（第 %d 次），%s 后重连: %v", attempt, wait, err)
			select {
			case <-f.stopC:
				return
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		attempt = 0
		log.Infof("🔌 推送通道已连接: %s", f.url)
		f.readLoop(conn)
		_ = conn.Close()
	}
}

// readLoop 读消息直到连接断开
func (f *Feed) readLoop(conn *websocket.Conn) {
	for {
		select {
		case <-f.stopC:
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("⚠️ 推送通道断开: %v", err)
			return
		}

		var u Update
		if err := json.Unmarshal(raw, &u); err != nil {
			log.Warnf("⚠️ 推送消息解析失败: %v", err)
			continue
		}
		f.dispatch(u)
	}
}

func (f *Feed) dispatch(u Update) {
	f.mu.Lock()
	notifies := append([]func(){}, f.subs[u.Account+":"+u.Pair]...)
	f.mu.Unlock()

	if len(notifies) == 0 {
		return
	}
	log.Debugf("📬 订单更新推送: %s:%s orderID=%s status=%s", u.Account, u.Pair, u.OrderID, u.Status)
	for _, fn := range notifies {
		fn()
	}
}
