package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Side 下单方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite 反方向
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Valid 是否为合法方向
func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// OrderType 订单类型
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

func (t OrderType) Valid() bool { return t == OrderTypeMarket || t == OrderTypeLimit }

// TimeInForce 订单有效方式
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
)

// PositionSide 持仓方向（单向持仓模式下为 BOTH）
type PositionSide string

const (
	PositionSideBoth  PositionSide = "BOTH"
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

// MarginType 保证金模式
type MarginType string

const (
	MarginTypeIsolated MarginType = "ISOLATED"
	MarginTypeCrossed  MarginType = "CROSSED"
)

// ParseMarginType 不区分大小写解析保证金模式
func ParseMarginType(s string) (MarginType, error) {
	switch MarginType(strings.ToUpper(strings.TrimSpace(s))) {
	case MarginTypeIsolated:
		return MarginTypeIsolated, nil
	case MarginTypeCrossed:
		return MarginTypeCrossed, nil
	}
	return "", fmt.Errorf("invalid margin type %q: must be ISOLATED or CROSSED", s)
}

// FlexInt 兼容 "20" 与 20 两种 JSON 表示
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		d, derr := decimal.NewFromString(s)
		if derr != nil {
			return fmt.Errorf("flexint: %w", err)
		}
		n = d.IntPart()
	}
	*f = FlexInt(n)
	return nil
}

func (f FlexInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(int64(f))
}

// FlexBool 兼容 "true" 与 true
type FlexBool bool

func (f *FlexBool) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	switch strings.ToLower(s) {
	case "true", "1":
		*f = true
	case "false", "0", "", "null":
		*f = false
	default:
		return fmt.Errorf("flexbool: invalid value %s", b)
	}
	return nil
}

func (f FlexBool) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(f))
}

// Order /fapi/v3/order 返回结构
type Order struct {
	OrderID       int64           `json:"orderId"`
	ClientOrderID string          `json:"clientOrderId,omitempty"`
	Symbol        string          `json:"symbol"`
	Status        string          `json:"status"`
	Side          Side            `json:"side"`
	PositionSide  PositionSide    `json:"positionSide,omitempty"`
	Type          OrderType       `json:"type"`
	OrigType      string          `json:"origType,omitempty"`
	TimeInForce   TimeInForce     `json:"timeInForce,omitempty"`
	Price         decimal.Decimal `json:"price"`
	AvgPrice      decimal.Decimal `json:"avgPrice"`
	StopPrice     decimal.Decimal `json:"stopPrice"`
	OrigQty       decimal.Decimal `json:"origQty"`
	ExecutedQty   decimal.Decimal `json:"executedQty"`
	CumQuote      decimal.Decimal `json:"cumQuote"`
	ReduceOnly    FlexBool        `json:"reduceOnly"`
	ClosePosition FlexBool        `json:"closePosition"`
	WorkingType   string          `json:"workingType,omitempty"`
	Time          int64           `json:"time,omitempty"`
	UpdateTime    int64           `json:"updateTime,omitempty"`
}

// OrderRequest 下单参数
type OrderRequest struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Quantity      decimal.Decimal
	Price         *decimal.Decimal
	TimeInForce   TimeInForce
	PositionSide  PositionSide
	ReduceOnly    bool
	ClosePosition bool
}

// PositionRisk /fapi/v3/positionRisk 单条持仓
type PositionRisk struct {
	Symbol           string          `json:"symbol"`
	PositionSide     PositionSide    `json:"positionSide"`
	PositionAmt      decimal.Decimal `json:"positionAmt"`
	EntryPrice       decimal.Decimal `json:"entryPrice"`
	MarkPrice        decimal.Decimal `json:"markPrice"`
	UnRealizedProfit decimal.Decimal `json:"unRealizedProfit"`
	LiquidationPrice decimal.Decimal `json:"liquidationPrice"`
	Leverage         FlexInt         `json:"leverage"`
	MaxNotionalValue decimal.Decimal `json:"maxNotionalValue"`
	MarginType       string          `json:"marginType"`
	IsolatedMargin   decimal.Decimal `json:"isolatedMargin"`
	IsAutoAddMargin  FlexBool        `json:"isAutoAddMargin"`
	Notional         decimal.Decimal `json:"notional"`
	IsolatedWallet   decimal.Decimal `json:"isolatedWallet"`
	UpdateTime       int64           `json:"updateTime"`
}

// Balance /fapi/v3/balance 单个资产余额
type Balance struct {
	AccountAlias       string          `json:"accountAlias,omitempty"`
	Asset              string          `json:"asset"`
	Balance            decimal.Decimal `json:"balance"`
	CrossWalletBalance decimal.Decimal `json:"crossWalletBalance"`
	CrossUnPnl         decimal.Decimal `json:"crossUnPnl"`
	AvailableBalance   decimal.Decimal `json:"availableBalance"`
	MaxWithdrawAmount  decimal.Decimal `json:"maxWithdrawAmount"`
	MarginAvailable    FlexBool        `json:"marginAvailable"`
	UpdateTime         int64           `json:"updateTime"`
}

// AccountAsset 账户信息中的资产
type AccountAsset struct {
	Asset                  string          `json:"asset"`
	WalletBalance          decimal.Decimal `json:"walletBalance"`
	UnrealizedProfit       decimal.Decimal `json:"unrealizedProfit"`
	MarginBalance          decimal.Decimal `json:"marginBalance"`
	MaintMargin            decimal.Decimal `json:"maintMargin"`
	InitialMargin          decimal.Decimal `json:"initialMargin"`
	PositionInitialMargin  decimal.Decimal `json:"positionInitialMargin"`
	OpenOrderInitialMargin decimal.Decimal `json:"openOrderInitialMargin"`
	AvailableBalance       decimal.Decimal `json:"availableBalance"`
	MaxWithdrawAmount      decimal.Decimal `json:"maxWithdrawAmount"`
	UpdateTime             int64           `json:"updateTime"`
}

// AccountPosition 账户信息中的持仓摘要
type AccountPosition struct {
	Symbol           string          `json:"symbol"`
	PositionSide     PositionSide    `json:"positionSide"`
	PositionAmt      decimal.Decimal `json:"positionAmt"`
	EntryPrice       decimal.Decimal `json:"entryPrice"`
	UnrealizedProfit decimal.Decimal `json:"unrealizedProfit"`
	Leverage         FlexInt         `json:"leverage"`
	Isolated         FlexBool        `json:"isolated"`
	Notional         decimal.Decimal `json:"notional"`
	UpdateTime       int64           `json:"updateTime"`
}

// AccountInfo /fapi/v3/account
type AccountInfo struct {
	FeeTier                     int               `json:"feeTier"`
	CanTrade                    bool              `json:"canTrade"`
	CanDeposit                  bool              `json:"canDeposit"`
	CanWithdraw                 bool              `json:"canWithdraw"`
	UpdateTime                  int64             `json:"updateTime"`
	TotalInitialMargin          decimal.Decimal   `json:"totalInitialMargin"`
	TotalMaintMargin            decimal.Decimal   `json:"totalMaintMargin"`
	TotalWalletBalance          decimal.Decimal   `json:"totalWalletBalance"`
	TotalUnrealizedProfit       decimal.Decimal   `json:"totalUnrealizedProfit"`
	TotalMarginBalance          decimal.Decimal   `json:"totalMarginBalance"`
	TotalPositionInitialMargin  decimal.Decimal   `json:"totalPositionInitialMargin"`
	TotalOpenOrderInitialMargin decimal.Decimal   `json:"totalOpenOrderInitialMargin"`
	TotalCrossWalletBalance     decimal.Decimal   `json:"totalCrossWalletBalance"`
	TotalCrossUnPnl             decimal.Decimal   `json:"totalCrossUnPnl"`
	AvailableBalance            decimal.Decimal   `json:"availableBalance"`
	MaxWithdrawAmount           decimal.Decimal   `json:"maxWithdrawAmount"`
	Assets                      []AccountAsset    `json:"assets"`
	Positions                   []AccountPosition `json:"positions"`
}

// LeverageResult /fapi/v3/leverage
type LeverageResult struct {
	Symbol           string          `json:"symbol"`
	Leverage         FlexInt         `json:"leverage"`
	MaxNotionalValue decimal.Decimal `json:"maxNotionalValue"`
}

// StatusResult 只有 code/msg 的成功响应（如 marginType）
type StatusResult struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// SymbolInfo exchangeInfo 中的交易对
type SymbolInfo struct {
	Symbol            string           `json:"symbol"`
	Pair              string           `json:"pair,omitempty"`
	ContractType      string           `json:"contractType,omitempty"`
	Status            string           `json:"status"`
	BaseAsset         string           `json:"baseAsset"`
	QuoteAsset        string           `json:"quoteAsset"`
	MarginAsset       string           `json:"marginAsset,omitempty"`
	PricePrecision    int              `json:"pricePrecision"`
	QuantityPrecision int              `json:"quantityPrecision"`
	OrderTypes        []string         `json:"orderTypes,omitempty"`
	TimeInForce       []string         `json:"timeInForce,omitempty"`
	Filters           []map[string]any `json:"filters,omitempty"`
}

// ExchangeInfo /fapi/v3/exchangeInfo
type ExchangeInfo struct {
	Timezone   string       `json:"timezone"`
	ServerTime int64        `json:"serverTime"`
	Symbols    []SymbolInfo `json:"symbols"`
}

// TickerPrice /fapi/v3/ticker/price
type TickerPrice struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Time   int64           `json:"time,omitempty"`
}
