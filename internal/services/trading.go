package services

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/astergate/aster/types"
	"github.com/betbot/astergate/internal/domain"
	"github.com/betbot/astergate/pkg/logger"
)

// OpenRequest 开仓参数
type OpenRequest struct {
	Symbol       string
	Side         types.Side
	Quantity     decimal.Decimal
	Type         types.OrderType // 空值视为 MARKET
	Price        *decimal.Decimal
	PositionSide types.PositionSide // 空值视为 BOTH
}

// AdjustRequest 加/减仓参数
type AdjustRequest struct {
	Symbol   string
	Quantity decimal.Decimal
	Type     types.OrderType
	Price    *decimal.Decimal
}

// TradeResult 下单结果及下单后的持仓
type TradeResult struct {
	Order    *types.Order     `json:"order"`
	Position *domain.Position `json:"position"`
	Closed   bool             `json:"closed,omitempty"`
}

// TradingService 开仓/加仓/减仓/平仓
// 每个变更操作下单前都会重新读取持仓，下单后再读一次
type TradingService struct {
	ex        Exchange
	positions *PositionService
}

// NewTradingService 创建交易服务
func NewTradingService(ex Exchange, positions *PositionService) *TradingService {
	if positions == nil {
		positions = NewPositionService(ex)
	}
	return &TradingService{ex: ex, positions: positions}
}

func normalizeType(t types.OrderType) types.OrderType {
	if t == "" {
		return types.OrderTypeMarket
	}
	return t
}

func buildOrder(symbol string, side types.Side, qty decimal.Decimal, t types.OrderType, price *decimal.Decimal, ps types.PositionSide) (types.OrderRequest, error) {
	t = normalizeType(t)
	if err := validateOrderType(t); err != nil {
		return types.OrderRequest{}, err
	}
	if err := validatePrice(t, price); err != nil {
		return types.OrderRequest{}, err
	}
	req := types.OrderRequest{
		Symbol:       symbol,
		Side:         side,
		Type:         t,
		Quantity:     qty,
		PositionSide: ps,
	}
	if req.PositionSide == "" {
		req.PositionSide = types.PositionSideBoth
	}
	if t == types.OrderTypeLimit {
		req.Price = price
		req.TimeInForce = types.TimeInForceGTC
	}
	return req, nil
}

// Open 开新仓
func (s *TradingService) Open(ctx context.Context, r OpenRequest) (*types.Order, error) {
	if err := validateSymbol(r.Symbol); err != nil {
		return nil, err
	}
	if err := validateSide(r.Side); err != nil {
		return nil, err
	}
	if err := validateQuantity(r.Quantity); err != nil {
		return nil, err
	}
	req, err := buildOrder(r.Symbol, r.Side, r.Quantity, r.Type, r.Price, r.PositionSide)
	if err != nil {
		return nil, err
	}

	log := logger.WithFields(logrus.Fields{
		"symbol":   r.Symbol,
		"side":     r.Side,
		"quantity": r.Quantity.String(),
		"type":     req.Type,
	})
	log.Info("opening position")

	order, err := s.ex.CreateOrder(ctx, req)
	if err != nil {
		log.WithError(err).Error("open position failed")
		return nil, errors.Wrapf(err, "open %s %s", r.Side, r.Symbol)
	}
	log.WithFields(logrus.Fields{"order_id": order.OrderID, "status": order.Status}).Info("position opened")
	return order, nil
}

// currentPosition 读取非零持仓，空仓返回 NotFound
func (s *TradingService) currentPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	pos, err := s.positions.snapshot(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if pos == nil || pos.IsFlat() {
		return nil, domain.NotFound("no open position found for symbol %s", symbol)
	}
	return pos, nil
}

// refresh 下单后重新读取持仓；订单已经提交，读取失败只记录日志
func (s *TradingService) refresh(ctx context.Context, symbol string) *domain.Position {
	pos, err := s.positions.snapshot(ctx, symbol)
	if err != nil {
		logger.WithField("symbol", symbol).WithError(err).Warn("re-read position after order failed")
		return nil
	}
	return pos
}

func (s *TradingService) validateAdjust(r AdjustRequest) error {
	if err := validateSymbol(r.Symbol); err != nil {
		return err
	}
	if err := validateQuantity(r.Quantity); err != nil {
		return err
	}
	if r.Price != nil && !r.Price.IsPositive() {
		return domain.InvalidParameter("price must be positive")
	}
	return nil
}

// Increase 同方向加仓
func (s *TradingService) Increase(ctx context.Context, r AdjustRequest) (*TradeResult, error) {
	if err := s.validateAdjust(r); err != nil {
		return nil, err
	}
	pos, err := s.currentPosition(ctx, r.Symbol)
	if err != nil {
		return nil, err
	}

	order, err := s.Open(ctx, OpenRequest{
		Symbol:       r.Symbol,
		Side:         pos.OpenSide(),
		Quantity:     r.Quantity,
		Type:         r.Type,
		Price:        r.Price,
		PositionSide: pos.PositionSide,
	})
	if err != nil {
		return nil, err
	}

	return &TradeResult{Order: order, Position: s.refresh(ctx, r.Symbol)}, nil
}

// Decrease 反方向 reduceOnly 减仓，数量不能超过当前持仓
func (s *TradingService) Decrease(ctx context.Context, r AdjustRequest) (*TradeResult, error) {
	if err := s.validateAdjust(r); err != nil {
		return nil, err
	}
	pos, err := s.currentPosition(ctx, r.Symbol)
	if err != nil {
		return nil, err
	}
	if r.Quantity.GreaterThan(pos.Size()) {
		return nil, domain.InvalidParameter("decrease quantity %s exceeds position size %s", r.Quantity.String(), pos.Size().String())
	}

	req, err := buildOrder(r.Symbol, pos.CloseSide(), r.Quantity, r.Type, r.Price, pos.PositionSide)
	if err != nil {
		return nil, err
	}
	req.ReduceOnly = true

	log := logger.WithFields(logrus.Fields{
		"symbol":   r.Symbol,
		"side":     req.Side,
		"quantity": r.Quantity.String(),
	})
	log.Info("placing reduce-only order")

	order, err := s.ex.CreateOrder(ctx, req)
	if err != nil {
		log.WithError(err).Error("decrease position failed")
		return nil, errors.Wrapf(err, "decrease %s", r.Symbol)
	}
	log.WithField("order_id", order.OrderID).Info("position decreased")

	return &TradeResult{Order: order, Position: s.refresh(ctx, r.Symbol)}, nil
}

// Close 市价 closePosition 全平
func (s *TradingService) Close(ctx context.Context, symbol string) (*TradeResult, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	pos, err := s.currentPosition(ctx, symbol)
	if err != nil {
		return nil, err
	}

	req := types.OrderRequest{
		Symbol:        symbol,
		Side:          pos.CloseSide(),
		Type:          types.OrderTypeMarket,
		PositionSide:  pos.PositionSide,
		ClosePosition: true,
	}
	if req.PositionSide == "" {
		req.PositionSide = types.PositionSideBoth
	}

	log := logger.WithFields(logrus.Fields{
		"symbol":       symbol,
		"position_amt": pos.Amount.String(),
		"side":         req.Side,
	})
	log.Info("closing position")

	order, err := s.ex.CreateOrder(ctx, req)
	if err != nil {
		log.WithError(err).Error("close position failed")
		return nil, errors.Wrapf(err, "close %s", symbol)
	}
	log.WithField("order_id", order.OrderID).Info("position closed")

	return &TradeResult{Order: order, Position: s.refresh(ctx, symbol), Closed: true}, nil
}
