package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/betbot/astergate/pkg/logger"
)

// Handler 关闭回调，ctx 带超时
type Handler func(ctx context.Context) error

type entry struct {
	name string
	fn   Handler
}

// Manager 优雅关闭管理器
// 回调按注册的逆序分批执行：同一 stage 内并发，stage 之间串行
type Manager struct {
	mu     sync.Mutex
	stages [][]entry
	done   bool
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册一个独立 stage 的关闭回调
func (m *Manager) OnShutdown(name string, fn Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, []entry{{name: name, fn: fn}})
}

// OnShutdownParallel 注册到最近一个 stage，与其并发执行
func (m *Manager) OnShutdownParallel(name string, fn Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stages) == 0 {
		m.stages = append(m.stages, nil)
	}
	last := len(m.stages) - 1
	m.stages[last] = append(m.stages[last], entry{name: name, fn: fn})
}

// Shutdown 执行所有关闭回调（阻塞调用），只执行一次
// 先注册的资源最后关闭：HTTP server 应该最后注册
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return nil
	}
	m.done = true
	stages := m.stages
	m.mu.Unlock()

	if len(stages) == 0 {
		logger.Info("没有注册的关闭回调")
		return nil
	}

	logger.Infof("开始优雅关闭，共 %d 个阶段", len(stages))

	var errs []error
	for i := len(stages) - 1; i >= 0; i-- {
		if err := runStage(ctx, stages[i]); err != nil {
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			logger.Warnf("关闭超时: %v", ctx.Err())
			errs = append(errs, ctx.Err())
			break
		}
	}
	if len(errs) == 0 {
		logger.Info("所有关闭回调已完成")
	}
	return errors.Join(errs...)
}

func runStage(ctx context.Context, entries []entry) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, e := range entries {
		wg.Add(1)
		go func(e entry) {
			defer wg.Done()
			if err := e.fn(ctx); err != nil {
				logger.Errorf("关闭 %s 失败: %v", e.name, err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
				mu.Unlock()
				return
			}
			logger.Debugf("已关闭 %s", e.name)
		}(e)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	mu.Lock()
	defer mu.Unlock()
	return errors.Join(errs...)
}
