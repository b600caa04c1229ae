package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ivanfit-health/kbju-bot-backend/api"
	"github.com/ivanfit-health/kbju-bot-backend/internal/dialog"
	"github.com/ivanfit-health/kbju-bot-backend/internal/narrative"
	"github.com/ivanfit-health/kbju-bot-backend/internal/platform/config"
	"github.com/ivanfit-health/kbju-bot-backend/internal/platform/database"
	"github.com/ivanfit-health/kbju-bot-backend/internal/platform/health"
	"github.com/ivanfit-health/kbju-bot-backend/internal/session"
	"github.com/ivanfit-health/kbju-bot-backend/internal/subscription"
	"github.com/ivanfit-health/kbju-bot-backend/internal/user"
	"github.com/ivanfit-health/kbju-bot-backend/pkg/fieldcrypt"
	"github.com/ivanfit-health/kbju-bot-backend/pkg/lifecycle"
)

func main() {
	// .env仅用于本地开发，缺失时静默忽略
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("加载配置失败，无法启动: %v", err))
	}

	// 1. 初始化数据库与Redis
	database.InitDB(cfg.Database)
	database.Migrate(&user.User{})
	database.InitRedis(cfg.Database.Redis)

	// 2. 进程启动时派生一次字段加密密钥
	key := fieldcrypt.DeriveKey(cfg.Security.Secret)

	// 3. 组装核心组件
	repo := user.NewRepository(database.DB, key)
	manager := session.NewManager(repo)

	var checker subscription.Checker = subscription.NewTelegramChecker(cfg.Bot.Token, cfg.Bot.RequiredChannel)
	checker = subscription.NewCachedChecker(checker, database.RDB)

	var generator narrative.Generator = narrative.Disabled{}
	if cfg.Bot.OpenAIKey != "" {
		generator = narrative.NewOpenAIGenerator(cfg.Bot.OpenAIKey)
	}

	handler := dialog.NewHandler(manager, checker, generator, cfg.Bot.RequiredChannel)

	// 4. 阻塞式执行一次启动后健康检查，再转入后台定期检查
	lm := lifecycle.NewManager()
	health.PerformCheck()
	healthHandle, err := lm.Register("health-checker")
	if err != nil {
		panic(err)
	}
	go health.StartChecker(healthHandle)

	// 5. 创建Gin引擎并注册路由
	r := api.NewRouter(cfg.Server)
	api.SetupRoutes(r, handler)

	srv := &http.Server{Addr: cfg.Server.Address, Handler: r}
	go func() {
		fmt.Printf("服务器已准备就绪，开始监听 %s\n", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic("Failed to start server: " + err.Error())
		}
	}()

	// 6. 优雅停机：等待信号，先关HTTP，再停后台服务
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	fmt.Println("收到停机信号，正在关闭……")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		fmt.Println("HTTP服务关闭超时:", err)
	}

	lm.Shutdown()
	if stragglers := lm.Wait(5 * time.Second); len(stragglers) > 0 {
		fmt.Println("以下后台服务未能按时退出:", stragglers)
	}
	fmt.Println("服务已退出。")
}
