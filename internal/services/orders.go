package services

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/astergate/aster/client"
	"github.com/betbot/astergate/aster/types"
	"github.com/betbot/astergate/internal/domain"
)

const (
	DefaultOrderLimit = 50
	MaxOrderLimit     = 1000
)

// OrderQuery 历史订单查询
type OrderQuery struct {
	Symbol    string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int // 0 表示默认 50
}

// OrderService 订单查询与撤单
type OrderService struct {
	ex Exchange
}

// NewOrderService 创建订单服务
func NewOrderService(ex Exchange) *OrderService {
	return &OrderService{ex: ex}
}

// GetOrders 历史订单
func (s *OrderService) GetOrders(ctx context.Context, q OrderQuery) ([]types.Order, error) {
	if err := validateSymbol(q.Symbol); err != nil {
		return nil, err
	}
	if q.Limit == 0 {
		q.Limit = DefaultOrderLimit
	}
	if q.Limit < 1 || q.Limit > MaxOrderLimit {
		return nil, domain.InvalidParameter("limit must be between 1 and %d", MaxOrderLimit)
	}
	if q.StartTime != nil && q.EndTime != nil && q.EndTime.Before(*q.StartTime) {
		return nil, domain.InvalidParameter("end_time must not be before start_time")
	}
	orders, err := s.ex.GetAllOrders(ctx, client.AllOrdersQuery{
		Symbol:    q.Symbol,
		StartTime: q.StartTime,
		EndTime:   q.EndTime,
		Limit:     q.Limit,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get orders for %s", q.Symbol)
	}
	return orders, nil
}

// GetOpenOrders 当前挂单，symbol 可为空
func (s *OrderService) GetOpenOrders(ctx context.Context, symbol string) ([]types.Order, error) {
	if symbol != "" {
		if err := validateSymbol(symbol); err != nil {
			return nil, err
		}
	}
	orders, err := s.ex.GetOpenOrders(ctx, symbol)
	if err != nil {
		return nil, errors.Wrap(err, "get open orders")
	}
	return orders, nil
}

// GetOrder 查询单个订单
func (s *OrderService) GetOrder(ctx context.Context, symbol string, orderID int64) (*types.Order, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	o, err := s.ex.GetOrder(ctx, symbol, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %d", orderID)
	}
	return o, nil
}

// CancelOrder 撤单
func (s *OrderService) CancelOrder(ctx context.Context, symbol string, orderID int64) (*types.Order, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	o, err := s.ex.CancelOrder(ctx, symbol, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "cancel order %d", orderID)
	}
	return o, nil
}
