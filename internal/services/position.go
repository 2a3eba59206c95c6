package services

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/astergate/aster/types"
	"github.com/betbot/astergate/internal/domain"
	"github.com/betbot/astergate/pkg/logger"
)

// PositionService 持仓查询与杠杆/保证金模式设置
type PositionService struct {
	ex Exchange
}

// NewPositionService 创建持仓服务
func NewPositionService(ex Exchange) *PositionService {
	return &PositionService{ex: ex}
}

// GetPositions 返回非零持仓，symbol 为空时返回全部交易对
func (s *PositionService) GetPositions(ctx context.Context, symbol string) ([]domain.Position, error) {
	risks, err := s.ex.GetPositionRisk(ctx, symbol)
	if err != nil {
		return nil, errors.Wrap(err, "get position risk")
	}
	out := make([]domain.Position, 0, len(risks))
	for _, r := range risks {
		if r.PositionAmt.IsZero() {
			continue
		}
		out = append(out, domain.PositionFromRisk(r))
	}
	return out, nil
}

// GetPosition 返回 symbol 的非零持仓，空仓时返回 nil
func (s *PositionService) GetPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	positions, err := s.GetPositions(ctx, symbol)
	if err != nil {
		return nil, err
	}
	for i := range positions {
		if positions[i].Symbol == symbol {
			return &positions[i], nil
		}
	}
	return nil, nil
}

// snapshot 读取 symbol 的最新持仓（包含零仓位），交易所没有返回该 symbol 时为 nil
func (s *PositionService) snapshot(ctx context.Context, symbol string) (*domain.Position, error) {
	risks, err := s.ex.GetPositionRisk(ctx, symbol)
	if err != nil {
		return nil, errors.Wrap(err, "get position risk")
	}
	var found *domain.Position
	for _, r := range risks {
		if r.Symbol != symbol {
			continue
		}
		p := domain.PositionFromRisk(r)
		if !p.IsFlat() {
			return &p, nil
		}
		if found == nil {
			found = &p
		}
	}
	return found, nil
}

// UpdateLeverage 调整杠杆（1..125）
func (s *PositionService) UpdateLeverage(ctx context.Context, symbol string, leverage int) (*types.LeverageResult, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	if err := validateLeverage(leverage); err != nil {
		return nil, err
	}
	res, err := s.ex.ChangeLeverage(ctx, symbol, leverage)
	if err != nil {
		return nil, errors.Wrapf(err, "change leverage for %s", symbol)
	}
	logger.WithFields(logrus.Fields{"symbol": symbol, "leverage": leverage}).Info("leverage updated")
	return res, nil
}

// UpdateMarginType 切换保证金模式（ISOLATED / CROSSED，不区分大小写）
func (s *PositionService) UpdateMarginType(ctx context.Context, symbol, marginType string) (*types.StatusResult, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	mt, err := types.ParseMarginType(marginType)
	if err != nil {
		return nil, domain.InvalidMarginType("margin type must be ISOLATED or CROSSED, got %q", marginType)
	}
	res, err := s.ex.ChangeMarginType(ctx, symbol, mt)
	if err != nil {
		return nil, errors.Wrapf(err, "change margin type for %s", symbol)
	}
	logger.WithFields(logrus.Fields{"symbol": symbol, "margin_type": mt}).Info("margin type updated")
	return res, nil
}
