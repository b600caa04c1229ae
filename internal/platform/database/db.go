package database

import (
	"fmt"
	"log"
	"os"

	"github.com/ivanfit-health/kbju-bot-backend/internal/platform/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB 初始化数据库连接
func InitDB(cfg config.DatabaseConfig) {
	var err error

	// GORM日志配置
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 0,
			LogLevel:      logger.Silent, // 在生产环境中可以设为Silent
			Colorful:      true,
		},
	)

	gormCfg := &gorm.Config{Logger: newLogger}

	// 根据配置选择数据库驱动，默认使用SQLite
	switch cfg.Driver {
	case "postgres":
		DB, err = gorm.Open(postgres.Open(cfg.Postgres.DSN), gormCfg)
	default:
		DB, err = gorm.Open(sqlite.Open(cfg.Sqlite.Path), gormCfg)
	}

	if err != nil {
		fmt.Println("连接数据库失败", err)
		panic(err)
	}

	fmt.Println("数据库连接成功！")
}

// Migrate 自动迁移：GORM会自动创建或更新表结构以匹配传入的模型。
// 模型由调用方显式传入，本包不持有任何全局的模型注册表。
func Migrate(models ...interface{}) {
	if err := DB.AutoMigrate(models...); err != nil {
		fmt.Println("数据库迁移失败", err)
		panic(err)
	}
	fmt.Println("数据库迁移成功！")
}
