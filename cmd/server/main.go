package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qs3c/petvip_server/config"
	"github.com/qs3c/petvip_server/internal/api"
	"github.com/qs3c/petvip_server/internal/api/handler"
	"github.com/qs3c/petvip_server/internal/api/middleware"
	"github.com/qs3c/petvip_server/internal/database"
	"github.com/qs3c/petvip_server/internal/pkg/bankfeed"
	"github.com/qs3c/petvip_server/internal/pkg/lock"
	"github.com/qs3c/petvip_server/internal/pkg/pending"
	"github.com/qs3c/petvip_server/internal/pkg/pubsub"
	"github.com/qs3c/petvip_server/internal/pkg/vietqr"
	"github.com/qs3c/petvip_server/internal/pkg/ws"
	"github.com/qs3c/petvip_server/internal/repository"
	"github.com/qs3c/petvip_server/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	loc, err := cfg.Payment.Location()
	if err != nil {
		log.Fatalf("Invalid payment timezone %q: %v", cfg.Payment.Timezone, err)
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// 第三方接口，缺配置时只告警，调用时返回配置错误
	feed := bankfeed.NewClient(&cfg.Payment.BankFeed, loc)
	if err := feed.Validate(); err != nil {
		log.Printf("Warning: bank feed not configured: %v", err)
	}
	issuer := vietqr.NewClient(&cfg.Payment.QR)
	if err := issuer.Validate(); err != nil {
		log.Printf("Warning: QR provider not configured: %v", err)
	}

	// 初始化 WebSocket Hub
	wsHub := ws.NewHub()

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	vipRepo := repository.NewVipRepository(db)

	// 初始化 Service
	clock := service.NewClock(loc)
	publisher := pubsub.NewPublisher(rdb)
	paymentService, err := service.NewPaymentService(
		vipRepo,
		userRepo,
		feed,
		issuer,
		lock.NewRedisLocker(rdb, cfg.Payment.LockPrefix, cfg.Payment.LockTTL()),
		clock,
		&cfg.Payment,
		service.WithIntentStore(pending.NewStore(rdb, cfg.Payment.PendingKey)),
		service.WithEventPublisher(publisher),
	)
	if err != nil {
		log.Fatalf("Failed to init payment service: %v", err)
	}
	vipService, err := service.NewVipService(vipRepo, clock, &cfg.Payment)
	if err != nil {
		log.Fatalf("Failed to init vip service: %v", err)
	}

	// 初始化 Handler
	vipHandler := handler.NewVipHandler(paymentService, vipService)
	websocketHandler := handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret, cfg.CORS.AllowedOrigins)

	// 初始化 Router
	router := api.NewRouter(
		vipHandler,
		websocketHandler,
		middleware.NewUserRateLimiter(cfg.RateLimit),
		cfg,
	)
	engine := router.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 订阅会员事件，推送给在线用户（包括 worker 进程发布的事件）
	subscriber := pubsub.NewSubscriber(rdb)
	go func() {
		if err := subscriber.Subscribe(ctx, wsHub.Forward); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("VIP event subscription stopped: %v", err)
		}
	}()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	go func() {
		log.Printf("Server starting on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Received shutdown signal")

	cancel()
	wsHub.CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	if err := rdb.Close(); err != nil {
		log.Printf("Failed to close redis: %v", err)
	}
	log.Println("Server shutdown complete")
}
