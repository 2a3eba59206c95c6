package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/betbot/astergate/aster/types"
	"github.com/betbot/astergate/internal/metrics"
	"github.com/betbot/astergate/internal/services"
	"github.com/betbot/astergate/pkg/logger"
)

// checkWebhookSecret body 中的 secret 优先于 header
func (s *Server) checkWebhookSecret(c *gin.Context, bodySecret, symbol string) error {
	if s.cfg.WebhookSecret == "" {
		return nil
	}
	provided := bodySecret
	if provided == "" {
		provided = c.GetHeader(HeaderWebhookSecret)
	}
	log := logger.WithFields(logrus.Fields{"request_id": requestIDFrom(c), "symbol": symbol})
	if provided == "" {
		log.Warn("webhook secret missing")
		return unauthorized("Webhook secret required but not provided")
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.WebhookSecret)) != 1 {
		log.Warn("webhook secret mismatch")
		return unauthorized("Invalid webhook secret")
	}
	return nil
}

func (s *Server) handleWebhook(c *gin.Context) {
	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, badRequest("invalid JSON body: %v", err))
		return
	}
	if err := s.checkWebhookSecret(c, req.WebhookSecret, req.Symbol); err != nil {
		s.writeError(c, err)
		return
	}
	if err := req.normalize(); err != nil {
		s.writeError(c, err)
		return
	}

	logger.WithFields(logrus.Fields{
		"request_id": requestIDFrom(c),
		"action":     req.Action,
		"symbol":     req.Symbol,
	}).Info("webhook received")

	ctx := c.Request.Context()
	ot := types.OrderType(req.OrderType)
	var resp webhookResponse

	switch req.Action {
	case "open":
		if req.Side == "" {
			s.writeError(c, badRequest("Side (BUY/SELL) is required for open action"))
			return
		}
		if req.Quantity == nil {
			s.writeError(c, badRequest("Quantity is required for open action"))
			return
		}
		order, err := s.trading.Open(ctx, services.OpenRequest{
			Symbol:   req.Symbol,
			Side:     types.Side(req.Side),
			Quantity: *req.Quantity,
			Type:     ot,
			Price:    req.Price,
		})
		if err != nil {
			s.writeError(c, err)
			return
		}
		resp.Order = newOrderView(order)
		// 订单已提交，持仓读取失败不影响响应
		if pos, err := s.positions.GetPosition(ctx, req.Symbol); err != nil {
			logger.WithField("symbol", req.Symbol).WithError(err).Warn("failed to fetch position after open")
		} else {
			resp.Position = pos
		}
		resp.Message = fmt.Sprintf("Position opened successfully for %s", req.Symbol)

	case "increase", "decrease":
		if req.Quantity == nil {
			s.writeError(c, badRequest("Quantity is required for %s action", req.Action))
			return
		}
		adj := services.AdjustRequest{Symbol: req.Symbol, Quantity: *req.Quantity, Type: ot, Price: req.Price}
		var (
			tr  *services.TradeResult
			err error
		)
		if req.Action == "increase" {
			tr, err = s.trading.Increase(ctx, adj)
		} else {
			tr, err = s.trading.Decrease(ctx, adj)
		}
		if err != nil {
			s.writeError(c, err)
			return
		}
		resp.Order, resp.Position = newOrderView(tr.Order), tr.Position
		resp.Message = fmt.Sprintf("Position %sd successfully for %s", req.Action, req.Symbol)

	case "close":
		tr, err := s.trading.Close(ctx, req.Symbol)
		if err != nil {
			s.writeError(c, err)
			return
		}
		resp.Order, resp.Position = newOrderView(tr.Order), tr.Position
		resp.Message = fmt.Sprintf("Position closed successfully for %s", req.Symbol)
	}

	resp.Success = true
	metrics.WebhookOutcomes.Add("signal."+req.Action, 1)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStrategyWebhook(c *gin.Context) {
	var req strategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, badRequest("invalid JSON body: %v", err))
		return
	}
	if err := s.checkWebhookSecret(c, req.WebhookSecret, req.Symbol); err != nil {
		s.writeError(c, err)
		return
	}
	if err := req.normalize(); err != nil {
		s.writeError(c, err)
		return
	}

	logger.WithFields(logrus.Fields{
		"request_id":    requestIDFrom(c),
		"order_action":  req.OrderAction,
		"symbol":        req.Symbol,
		"contracts":     req.Contracts.String(),
		"position_size": req.PositionSize.String(),
	}).Info("strategy webhook received")

	res, err := s.trading.ExecuteStrategy(c.Request.Context(), services.StrategySignal{
		Symbol:      req.Symbol,
		OrderAction: req.OrderAction,
		Contracts:   *req.Contracts,
		TargetSize:  *req.PositionSize,
		OrderType:   types.OrderType(req.OrderType),
		Price:       req.Price,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	metrics.WebhookOutcomes.Add("strategy."+string(res.Action.Kind), 1)
	c.JSON(http.StatusOK, webhookResponse{
		Success:    true,
		Message:    res.Message,
		Order:      newOrderView(res.Order),
		CloseOrder: newOrderView(res.CloseOrder),
		Position:   res.Position,
		Action:     &res.Action,
	})
}
