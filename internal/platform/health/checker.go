package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ivanfit-health/kbju-bot-backend/internal/platform/database"
	"github.com/ivanfit-health/kbju-bot-backend/pkg/lifecycle"
)

const (
	checkInterval = 5 * time.Second
	pingTimeout   = 2 * time.Second
)

// statusManager 负责线程安全地管理和提供系统的健康状态。
type statusManager struct {
	mu             sync.RWMutex
	isDBHealthy    bool
	isRedisHealthy bool
}

var globalStatus = &statusManager{
	isDBHealthy:    true,
	isRedisHealthy: true,
}

func (sm *statusManager) update(db, rdb bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.isDBHealthy = db
	sm.isRedisHealthy = rdb
}

func (sm *statusManager) snapshot() (db, rdb bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.isDBHealthy, sm.isRedisHealthy
}

// PerformCheck 执行一次完整的健康检查。
func PerformCheck() {
	dbOK := false
	if database.DB != nil {
		if sqlDB, err := database.DB.DB(); err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
			dbOK = sqlDB.PingContext(ctx) == nil
			cancel()
		}
	}

	// Redis未启用时不计入健康状态
	rdbOK := true
	if database.RDB != nil {
		ctx, cancel := context.WithTimeout(database.Ctx, pingTimeout)
		rdbOK = database.RDB.Ping(ctx).Err() == nil
		cancel()
	}

	globalStatus.update(dbOK, rdbOK)
}

// StartChecker 在后台定期、阻塞式地执行健康检查，收到停机信号后退出。
func StartChecker(handle *lifecycle.Handle) {
	defer handle.Close()

	for handle.Sleep(checkInterval) {
		PerformCheck()
	}
}

// Handler 返回/healthz的gin处理函数。
// 数据库不可用时返回503，Redis降级只体现在响应体里。
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		dbOK, rdbOK := globalStatus.snapshot()
		status := http.StatusOK
		if !dbOK {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"database": dbOK,
			"redis":    rdbOK,
		})
	}
}
