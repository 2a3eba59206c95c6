package services

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/betbot/astergate/aster/client"
	"github.com/betbot/astergate/aster/types"
)

// fakeExchange 按调用顺序返回预设持仓，记录所有下单请求
type fakeExchange struct {
	mu sync.Mutex

	riskQueue  [][]types.PositionRisk
	riskCalls  int
	riskErr    error
	orderErrs  []error
	orders     []types.OrderRequest
	nextID     int64
	balances   []types.Balance
	balanceN   int
	allOrdersQ []client.AllOrdersQuery
	leverage   []int
	margin     []types.MarginType
}

func risk(symbol, amt string) types.PositionRisk {
	return types.PositionRisk{
		Symbol:       symbol,
		PositionAmt:  decimal.RequireFromString(amt),
		PositionSide: types.PositionSideBoth,
		Leverage:     10,
		MarginType:   "cross",
	}
}

// withPositions 依次设置每次 GetPositionRisk 的返回；最后一个重复使用
func (f *fakeExchange) withPositions(symbol string, amts ...string) *fakeExchange {
	for _, a := range amts {
		f.riskQueue = append(f.riskQueue, []types.PositionRisk{risk(symbol, a)})
	}
	return f
}

func (f *fakeExchange) CreateOrder(_ context.Context, req types.OrderRequest) (*types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := len(f.orders)
	f.orders = append(f.orders, req)
	if idx < len(f.orderErrs) && f.orderErrs[idx] != nil {
		return nil, f.orderErrs[idx]
	}
	f.nextID++
	return &types.Order{
		OrderID:       f.nextID,
		Symbol:        req.Symbol,
		Status:        "NEW",
		Side:          req.Side,
		Type:          req.Type,
		OrigQty:       req.Quantity,
		PositionSide:  req.PositionSide,
		ReduceOnly:    types.FlexBool(req.ReduceOnly),
		ClosePosition: types.FlexBool(req.ClosePosition),
	}, nil
}

func (f *fakeExchange) CancelOrder(_ context.Context, symbol string, orderID int64) (*types.Order, error) {
	return &types.Order{OrderID: orderID, Symbol: symbol, Status: "CANCELED"}, nil
}

func (f *fakeExchange) GetOrder(_ context.Context, symbol string, orderID int64) (*types.Order, error) {
	return &types.Order{OrderID: orderID, Symbol: symbol, Status: "FILLED"}, nil
}

func (f *fakeExchange) GetOpenOrders(_ context.Context, symbol string) ([]types.Order, error) {
	return []types.Order{{OrderID: 1, Symbol: symbol}}, nil
}

func (f *fakeExchange) GetAllOrders(_ context.Context, q client.AllOrdersQuery) ([]types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allOrdersQ = append(f.allOrdersQ, q)
	return []types.Order{{OrderID: 1, Symbol: q.Symbol}}, nil
}

func (f *fakeExchange) GetPositionRisk(_ context.Context, symbol string) ([]types.PositionRisk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.riskCalls++
	if f.riskErr != nil {
		return nil, f.riskErr
	}
	if len(f.riskQueue) == 0 {
		return nil, nil
	}
	out := f.riskQueue[0]
	if len(f.riskQueue) > 1 {
		f.riskQueue = f.riskQueue[1:]
	}
	return out, nil
}

func (f *fakeExchange) ChangeLeverage(_ context.Context, symbol string, leverage int) (*types.LeverageResult, error) {
	f.leverage = append(f.leverage, leverage)
	return &types.LeverageResult{Symbol: symbol, Leverage: types.FlexInt(leverage)}, nil
}

func (f *fakeExchange) ChangeMarginType(_ context.Context, symbol string, mt types.MarginType) (*types.StatusResult, error) {
	f.margin = append(f.margin, mt)
	return &types.StatusResult{Code: 200, Msg: "success"}, nil
}

func (f *fakeExchange) GetBalance(_ context.Context) ([]types.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceN++
	out := make([]types.Balance, len(f.balances))
	copy(out, f.balances)
	return out, nil
}

func (f *fakeExchange) GetAccountInfo(_ context.Context) (*types.AccountInfo, error) {
	return &types.AccountInfo{CanTrade: true}, nil
}

var _ Exchange = (*fakeExchange)(nil)
