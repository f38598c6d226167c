package statusapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/execbot/gotrade/internal/engine"
	"github.com/execbot/gotrade/internal/journal"
)

var log = logrus.WithField("module", "statusapi")

// Server 只读状态接口
// 运维用来看 bot 进度和成交报表；不提供任何改写执行状态的入口
type Server struct {
	eng  *engine.Engine
	jnl  *journal.Journal
	http *http.Server
}

// NewServer 创建状态服务；jnl 可以为 nil（未配置流水库时订单历史接口返回 404）
func NewServer(eng *engine.Engine, jnl *journal.Journal, addr string) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{eng: eng, jnl: jnl}
	router.GET("/healthz", s.health)
	router.GET("/api/v1/bots", s.listBots)
	router.GET("/api/v1/bots/:id/report", s.botReport)
	router.GET("/api/v1/bots/:id/orders", s.botOrders)

	s.http = &http.Server{Addr: addr, Handler: router}
	return s
}

// Start 启动 HTTP 服务（非阻塞）
func (s *Server) Start() {
	go func() {
		log.Infof("🌐 状态接口监听: %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("❌ 状态接口退出: %v", err)
		}
	}()
}

// Stop 关闭 HTTP 服务
func (s *Server) Stop(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_ = s.http.Shutdown(shutdownCtx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listBots(c *gin.Context) {
	type botView struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Reason string `json:"reason,omitempty"`
	}
	bots := s.eng.Bots()
	out := make([]botView, 0, len(bots))
	for _, b := range bots {
		out = append(out, botView{
			ID:     b.ID(),
			Status: string(b.Status()),
			Reason: b.StatusReason(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"bots": out})
}

func (s *Server) botReport(c *gin.Context) {
	b, ok := s.eng.Bot(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "bot not found"})
		return
	}
	report := b.Report()
	c.JSON(http.StatusOK, gin.H{
		"id":     b.ID(),
		"status": string(b.Status()),
		// 报表对外仍是 string-keyed 形态，和落盘格式保持一致
		"report": report.ToWire(),
	})
}

// botOrders 从成交流水库读 bot 的历史订单（含失败单）
func (s *Server) botOrders(c *gin.Context) {
	if s.jnl == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "journal not configured"})
		return
	}
	id := c.Param("id")
	if _, ok := s.eng.Bot(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "bot not found"})
		return
	}
	orders, err := s.jnl.Orders(id)
	if err != nil {
		log.Errorf("❌ 流水查询失败: bot=%s err=%v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "journal query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "orders": orders})
}
