package services

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/astergate/aster/types"
	"github.com/betbot/astergate/pkg/cache"
	"github.com/betbot/astergate/pkg/logger"
)

const (
	DefaultBalanceTTL = 5 * time.Second
	balanceCacheKey   = "balance"
)

// AccountService 余额（短缓存）与账户信息
type AccountService struct {
	ex       Exchange
	balances *cache.InMemoryCache[string, []types.Balance]
}

// NewAccountService 创建账户服务；ttl <= 0 时使用 5s
func NewAccountService(ex Exchange, ttl time.Duration, opts ...cache.Option) *AccountService {
	if ttl <= 0 {
		ttl = DefaultBalanceTTL
	}
	return &AccountService{
		ex:       ex,
		balances: cache.NewInMemoryCache[string, []types.Balance](ttl, opts...),
	}
}

// GetBalance 读取余额；useCache 为 true 且缓存未过期时不访问交易所
// 缓存整体替换，不做部分失效
func (s *AccountService) GetBalance(ctx context.Context, useCache bool) ([]types.Balance, error) {
	if useCache {
		if b, ok := s.balances.Get(balanceCacheKey); ok {
			logger.Debugf("balance served from cache (%d assets)", len(b))
			return b, nil
		}
	}
	b, err := s.ex.GetBalance(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get balance")
	}
	s.balances.Set(balanceCacheKey, b, 0)
	return b, nil
}

// GetAccountInfo 账户信息，不缓存
func (s *AccountService) GetAccountInfo(ctx context.Context) (*types.AccountInfo, error) {
	info, err := s.ex.GetAccountInfo(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get account info")
	}
	return info, nil
}

// ClearCache 主动失效余额缓存
func (s *AccountService) ClearCache() {
	s.balances.Clear()
}
