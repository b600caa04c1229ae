// Package lifecycle 提供一个小型的后台服务生命周期协调器：
// 统一广播停机信号，并带超时地等待所有已注册服务退出。
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Manager 由进程入口创建和持有，向各个后台服务分发句柄。
type Manager struct {
	wg       sync.WaitGroup
	mu       sync.Mutex
	services map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager 创建一个新的生命周期管理器。
func NewManager() *Manager {
	m := &Manager{services: make(map[string]bool)}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// Register 为一个后台服务注册生命周期句柄。
// 服务的Goroutine退出前必须通过defer调用返回句柄的Close。
func (m *Manager) Register(name string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.services[name] {
		return nil, fmt.Errorf("服务'%s'已被注册", name)
	}
	m.services[name] = true
	m.wg.Add(1)

	return &Handle{
		ctx: m.ctx,
		Close: func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.services[name] {
				delete(m.services, name)
				m.wg.Done()
			}
		},
	}, nil
}

// Shutdown 向所有句柄广播停机信号。
func (m *Manager) Shutdown() {
	m.cancel()
}

// Wait 等待所有已注册的服务退出，超时后返回仍未退出的服务名。
func (m *Manager) Wait(timeout time.Duration) []string {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		m.mu.Lock()
		defer m.mu.Unlock()
		stragglers := make([]string, 0, len(m.services))
		for name := range m.services {
			stragglers = append(stragglers, name)
		}
		return stragglers
	}
}

// Handle 是分发给单个后台服务的生命周期控制器。
type Handle struct {
	ctx context.Context
	// Close 通知管理器该服务已经完成关闭。
	Close func()
}

// Done 返回一个channel，停机信号广播时该channel关闭。
func (h *Handle) Done() <-chan struct{} {
	return h.ctx.Done()
}

// Sleep 暂停指定时长；若期间收到停机信号则提前返回false。
// 后台定期循环应使用它代替裸的time.Sleep。
func (h *Handle) Sleep(duration time.Duration) bool {
	timer := time.NewTimer(duration)
	select {
	case <-h.Done():
		if !timer.Stop() {
			<-timer.C
		}
		return false
	case <-timer.C:
		return true
	}
}
