package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/astergate/aster/types"
	"github.com/betbot/astergate/internal/domain"
	"github.com/betbot/astergate/internal/metrics"
	"github.com/betbot/astergate/pkg/logger"
)

// StrategySignal 策略告警：只给出目标持仓，由当前持仓推导动作
type StrategySignal struct {
	Symbol      string
	OrderAction string          // buy / sell，仅用于日志
	Contracts   decimal.Decimal // 本次成交数量，仅用于日志
	TargetSize  decimal.Decimal // 告警后的带符号持仓
	OrderType   types.OrderType
	Price       *decimal.Decimal
}

// StrategyResult 策略执行结果；反手时 Order 为开仓腿，CloseOrder 为平仓腿
type StrategyResult struct {
	Action     domain.Action    `json:"action"`
	Order      *types.Order     `json:"order"`
	CloseOrder *types.Order     `json:"close_order,omitempty"`
	Position   *domain.Position `json:"position"`
	Message    string           `json:"message"`
}

// ExecuteStrategy 读取当前持仓，按目标持仓推导并执行动作
func (s *TradingService) ExecuteStrategy(ctx context.Context, sig StrategySignal) (*StrategyResult, error) {
	if err := validateSymbol(sig.Symbol); err != nil {
		return nil, err
	}
	cur, err := s.positions.snapshot(ctx, sig.Symbol)
	if err != nil {
		return nil, err
	}
	curSize := decimal.Zero
	if cur != nil {
		curSize = cur.Amount
	}

	log := logger.WithFields(logrus.Fields{
		"symbol":       sig.Symbol,
		"order_action": sig.OrderAction,
		"contracts":    sig.Contracts.String(),
		"current_size": curSize.String(),
		"target_size":  sig.TargetSize.String(),
	})

	action, err := domain.ResolveDelta(curSize, sig.TargetSize)
	if err != nil {
		log.WithError(err).Error("unable to resolve strategy action")
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"action":   action.Kind,
		"side":     action.Side,
		"quantity": action.Quantity.String(),
	}).Info("strategy action determined")

	res := &StrategyResult{Action: action}
	switch action.Kind {
	case domain.ActionOpen:
		order, err := s.Open(ctx, OpenRequest{
			Symbol:   sig.Symbol,
			Side:     action.Side,
			Quantity: action.Quantity,
			Type:     sig.OrderType,
			Price:    sig.Price,
		})
		if err != nil {
			return nil, err
		}
		res.Order = order
		res.Position = s.refresh(ctx, sig.Symbol)
		res.Message = fmt.Sprintf("Position opened successfully for %s", sig.Symbol)

	case domain.ActionClose:
		tr, err := s.Close(ctx, sig.Symbol)
		if err != nil {
			return nil, err
		}
		res.Order, res.Position = tr.Order, tr.Position
		res.Message = fmt.Sprintf("Position closed successfully for %s", sig.Symbol)

	case domain.ActionFlip:
		return s.flip(ctx, sig, res, log)

	case domain.ActionIncrease:
		tr, err := s.Increase(ctx, AdjustRequest{Symbol: sig.Symbol, Quantity: action.Quantity, Type: sig.OrderType, Price: sig.Price})
		if err != nil {
			return nil, err
		}
		res.Order, res.Position = tr.Order, tr.Position
		res.Message = fmt.Sprintf("Position increased successfully for %s", sig.Symbol)

	case domain.ActionDecrease:
		tr, err := s.Decrease(ctx, AdjustRequest{Symbol: sig.Symbol, Quantity: action.Quantity, Type: sig.OrderType, Price: sig.Price})
		if err != nil {
			return nil, err
		}
		res.Order, res.Position = tr.Order, tr.Position
		res.Message = fmt.Sprintf("Position decreased successfully for %s", sig.Symbol)
	}
	return res, nil
}

// flip 先全平再反向开仓；第二腿失败时账户为空仓，返回 FlipIncomplete
func (s *TradingService) flip(ctx context.Context, sig StrategySignal, res *StrategyResult, log *logrus.Entry) (*StrategyResult, error) {
	// 开仓腿参数先校验，避免平仓后才发现无法开仓
	if _, err := buildOrder(sig.Symbol, res.Action.Side, res.Action.Quantity, sig.OrderType, sig.Price, ""); err != nil {
		return nil, err
	}
	log.Info("position flip detected, closing before reopening")

	closed, err := s.Close(ctx, sig.Symbol)
	if err != nil {
		return nil, err
	}
	res.CloseOrder = closed.Order

	order, err := s.Open(ctx, OpenRequest{
		Symbol:   sig.Symbol,
		Side:     res.Action.Side,
		Quantity: res.Action.Quantity,
		Type:     sig.OrderType,
		Price:    sig.Price,
	})
	if err != nil {
		metrics.FlipIncomplete.Add(1)
		log.WithError(err).Error("flip incomplete: position closed but reopen failed, account is flat")
		return nil, domain.FlipIncomplete(err,
			"position for %s was closed but opening %s %s failed; account is flat",
			sig.Symbol, res.Action.Side, res.Action.Quantity.String())
	}
	res.Order = order
	res.Position = s.refresh(ctx, sig.Symbol)
	res.Message = fmt.Sprintf("Position flipped successfully for %s", sig.Symbol)
	return res, nil
}
