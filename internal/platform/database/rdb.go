package database

import (
	"context"
	"fmt"

	"github.com/ivanfit-health/kbju-bot-backend/internal/platform/config"
	"github.com/redis/go-redis/v9"
)

// RDB 是一个全局的Redis客户端实例，供项目其他部分使用。
// Redis在本项目中只承担尽力而为的缓存角色，未启用时RDB保持为nil。
var RDB *redis.Client

// Ctx 是一个全局的上下文，用于Redis操作
var Ctx = context.Background()

// InitRedis 初始化与Redis数据库的连接
func InitRedis(cfg config.RedisConfig) {
	if !cfg.Enabled {
		fmt.Println("Redis未启用，订阅检查将不使用缓存。")
		return
	}

	// 创建一个新的Redis客户端
	// 使用从配置文件加载的参数
	RDB = redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 使用Ping命令来测试连接是否成功
	_, err := RDB.Ping(Ctx).Result()
	if err != nil {
		// 缓存不可用不阻塞核心流程，降级为直连检查
		fmt.Println("无法连接到Redis，已降级运行:", err)
		RDB = nil
		return
	}

	fmt.Println("Redis 连接成功！")
}
