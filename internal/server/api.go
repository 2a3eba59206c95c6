package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/betbot/astergate/internal/domain"
	"github.com/betbot/astergate/internal/services"
)

func (s *Server) handlePositionsList(c *gin.Context) {
	positions, err := s.positions.GetPositions(c.Request.Context(), c.Query("symbol"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	c.JSON(http.StatusOK, positions)
}

func (s *Server) handlePositionGet(c *gin.Context) {
	symbol := c.Param("symbol")
	pos, err := s.positions.GetPosition(c.Request.Context(), symbol)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if pos == nil {
		s.writeError(c, domain.NotFound("No open position found for symbol %s", symbol))
		return
	}
	c.JSON(http.StatusOK, pos)
}

func (s *Server) handleLeverageUpdate(c *gin.Context) {
	symbol := c.Param("symbol")
	var req leverageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, badRequest("invalid JSON body: %v", err))
		return
	}
	res, err := s.positions.UpdateLeverage(c.Request.Context(), symbol, req.Leverage)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Leverage updated to " + strconv.Itoa(req.Leverage) + "x for " + symbol,
		"symbol":   symbol,
		"leverage": req.Leverage,
		"result":   res,
	})
}

func (s *Server) handleMarginTypeUpdate(c *gin.Context) {
	symbol := c.Param("symbol")
	var req marginTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, badRequest("invalid JSON body: %v", err))
		return
	}
	res, err := s.positions.UpdateMarginType(c.Request.Context(), symbol, req.MarginType)
	if err != nil {
		s.writeError(c, err)
		return
	}
	mt := strings.ToUpper(strings.TrimSpace(req.MarginType))
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "Margin type updated to " + mt + " for " + symbol,
		"symbol":      symbol,
		"margin_type": mt,
		"result":      res,
	})
}

func (s *Server) handleBalance(c *gin.Context) {
	useCache := true
	if v := c.Query("use_cache"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(c, badRequest("use_cache must be a boolean"))
			return
		}
		useCache = b
	}
	balances, err := s.account.GetBalance(c.Request.Context(), useCache)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBalanceViews(balances))
}

func (s *Server) handleAccountInfo(c *gin.Context) {
	info, err := s.account.GetAccountInfo(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// queryMillis 解析毫秒时间戳查询参数
func queryMillis(c *gin.Context, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms < 0 {
		return nil, badRequest("%s must be a non-negative integer (milliseconds)", key)
	}
	t := time.UnixMilli(ms)
	return &t, nil
}

func (s *Server) handleOrdersList(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		s.writeError(c, badRequest("Symbol parameter is required"))
		return
	}
	start, err := queryMillis(c, "start_time")
	if err != nil {
		s.writeError(c, err)
		return
	}
	end, err := queryMillis(c, "end_time")
	if err != nil {
		s.writeError(c, err)
		return
	}
	limit := services.DefaultOrderLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > services.MaxOrderLimit {
			s.writeError(c, badRequest("limit must be between 1 and %d", services.MaxOrderLimit))
			return
		}
		limit = n
	}

	orders, err := s.orders.GetOrders(c.Request.Context(), services.OrderQuery{
		Symbol:    symbol,
		StartTime: start,
		EndTime:   end,
		Limit:     limit,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderViews(orders))
}

func (s *Server) handleOpenOrders(c *gin.Context) {
	orders, err := s.orders.GetOpenOrders(c.Request.Context(), c.Query("symbol"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderViews(orders))
}

// pathOrderID 解析路径中的交易所订单号
func pathOrderID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("order id must be a positive integer")
	}
	return id, nil
}

func (s *Server) handleOrderGet(c *gin.Context) {
	id, err := pathOrderID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	o, err := s.orders.GetOrder(c.Request.Context(), c.Param("symbol"), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderView(o))
}

func (s *Server) handleOrderCancel(c *gin.Context) {
	id, err := pathOrderID(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	o, err := s.orders.CancelOrder(c.Request.Context(), c.Param("symbol"), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderView(o))
}

func (s *Server) handleHealth(c *gin.Context) {
	if !s.cfg.Health.Ready {
		cause := s.cfg.Health.NotReadyCause
		if cause == "" {
			cause = "Configuration error: credentials not configured"
		}
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorResponse{
			Error:     "ServiceUnavailable",
			Detail:    cause,
			Code:      "SERVICE_UNAVAILABLE",
			Timestamp: s.now().UnixMilli(),
			RequestID: requestIDFrom(c),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"timestamp":     s.now().UnixMilli(),
		"version":       s.cfg.Version,
		"service":       ServiceName,
		"configuration": s.cfg.Health.Configuration,
	})
}
