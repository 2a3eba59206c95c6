package client

import (
	"context"
	"net/http"
	"time"

	"github.com/betbot/astergate/aster/signing"
	"github.com/betbot/astergate/aster/types"
)

// REST 路径
const (
	PathOrder        = "/fapi/v3/order"
	PathOpenOrders   = "/fapi/v3/openOrders"
	PathAllOrders    = "/fapi/v3/allOrders"
	PathPositionRisk = "/fapi/v3/positionRisk"
	PathLeverage     = "/fapi/v3/leverage"
	PathMarginType   = "/fapi/v3/marginType"
	PathBalance      = "/fapi/v3/balance"
	PathAccount      = "/fapi/v3/account"
	PathExchangeInfo = "/fapi/v3/exchangeInfo"
	PathTickerPrice  = "/fapi/v3/ticker/price"
)

// OrderParams 把下单请求转换为交易所参数
func OrderParams(req types.OrderRequest) *signing.Params {
	p := signing.NewParams().
		Set("symbol", req.Symbol).
		Set("side", string(req.Side)).
		Set("type", string(req.Type))

	if !req.ClosePosition {
		p.Set("quantity", req.Quantity)
	}
	if req.Price != nil {
		p.Set("price", *req.Price)
	}
	if req.TimeInForce != "" {
		p.Set("timeInForce", string(req.TimeInForce))
	}
	positionSide := req.PositionSide
	if positionSide == "" {
		positionSide = types.PositionSideBoth
	}
	p.Set("positionSide", string(positionSide))
	if req.ReduceOnly {
		p.Set("reduceOnly", "true")
	}
	if req.ClosePosition {
		p.Set("closePosition", "true")
	}
	return p
}

// CreateOrder 下单
func (c *Client) CreateOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error) {
	var out types.Order
	if err := c.Request(ctx, http.MethodPost, PathOrder, OrderParams(req), true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelOrder 撤单
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) (*types.Order, error) {
	p := signing.NewParams().Set("symbol", symbol).Set("orderId", orderID)
	var out types.Order
	if err := c.Request(ctx, http.MethodDelete, PathOrder, p, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrder 查询订单
func (c *Client) GetOrder(ctx context.Context, symbol string, orderID int64) (*types.Order, error) {
	p := signing.NewParams().Set("symbol", symbol).Set("orderId", orderID)
	var out types.Order
	if err := c.Request(ctx, http.MethodGet, PathOrder, p, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOpenOrders 当前挂单，symbol 为空时返回全部
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]types.Order, error) {
	p := signing.NewParams().SetIf(symbol != "", "symbol", symbol)
	var out []types.Order
	if err := c.Request(ctx, http.MethodGet, PathOpenOrders, p, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AllOrdersQuery 历史订单查询条件
type AllOrdersQuery struct {
	Symbol    string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
}

// GetAllOrders 历史订单
func (c *Client) GetAllOrders(ctx context.Context, q AllOrdersQuery) ([]types.Order, error) {
	p := signing.NewParams().
		Set("symbol", q.Symbol).
		SetIf(q.Limit > 0, "limit", q.Limit).
		Set("startTime", q.StartTime).
		Set("endTime", q.EndTime)
	var out []types.Order
	if err := c.Request(ctx, http.MethodGet, PathAllOrders, p, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetPositionRisk 持仓风险，包含零仓位
func (c *Client) GetPositionRisk(ctx context.Context, symbol string) ([]types.PositionRisk, error) {
	p := signing.NewParams().SetIf(symbol != "", "symbol", symbol)
	var out []types.PositionRisk
	if err := c.Request(ctx, http.MethodGet, PathPositionRisk, p, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ChangeLeverage 调整杠杆
func (c *Client) ChangeLeverage(ctx context.Context, symbol string, leverage int) (*types.LeverageResult, error) {
	p := signing.NewParams().Set("symbol", symbol).Set("leverage", leverage)
	var out types.LeverageResult
	if err := c.Request(ctx, http.MethodPost, PathLeverage, p, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangeMarginType 切换保证金模式
func (c *Client) ChangeMarginType(ctx context.Context, symbol string, marginType types.MarginType) (*types.StatusResult, error) {
	p := signing.NewParams().Set("symbol", symbol).Set("marginType", string(marginType))
	var out types.StatusResult
	if err := c.Request(ctx, http.MethodPost, PathMarginType, p, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBalance 账户余额
func (c *Client) GetBalance(ctx context.Context) ([]types.Balance, error) {
	var out []types.Balance
	if err := c.Request(ctx, http.MethodGet, PathBalance, nil, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAccountInfo 账户信息
func (c *Client) GetAccountInfo(ctx context.Context) (*types.AccountInfo, error) {
	var out types.AccountInfo
	if err := c.Request(ctx, http.MethodGet, PathAccount, nil, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetExchangeInfo 交易规则（公开接口）
func (c *Client) GetExchangeInfo(ctx context.Context) (*types.ExchangeInfo, error) {
	var out types.ExchangeInfo
	if err := c.Request(ctx, http.MethodGet, PathExchangeInfo, nil, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTickerPrice 最新价（公开接口）
func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (*types.TickerPrice, error) {
	p := signing.NewParams().Set("symbol", symbol)
	var out types.TickerPrice
	if err := c.Request(ctx, http.MethodGet, PathTickerPrice, p, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
