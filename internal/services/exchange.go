package services

import (
	"context"

	"github.com/betbot/astergate/aster/client"
	"github.com/betbot/astergate/aster/types"
)

// Exchange 业务层依赖的交易所能力，*client.Client 实现了它
type Exchange interface {
	CreateOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) (*types.Order, error)
	GetOrder(ctx context.Context, symbol string, orderID int64) (*types.Order, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]types.Order, error)
	GetAllOrders(ctx context.Context, q client.AllOrdersQuery) ([]types.Order, error)

	GetPositionRisk(ctx context.Context, symbol string) ([]types.PositionRisk, error)
	ChangeLeverage(ctx context.Context, symbol string, leverage int) (*types.LeverageResult, error)
	ChangeMarginType(ctx context.Context, symbol string, marginType types.MarginType) (*types.StatusResult, error)

	GetBalance(ctx context.Context) ([]types.Balance, error)
	GetAccountInfo(ctx context.Context) (*types.AccountInfo, error)
}

var _ Exchange = (*client.Client)(nil)
