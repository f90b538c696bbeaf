package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/qs3c/petvip_server/config"
	"github.com/qs3c/petvip_server/internal/database"
	"github.com/qs3c/petvip_server/internal/pkg/bankfeed"
	"github.com/qs3c/petvip_server/internal/pkg/cron"
	"github.com/qs3c/petvip_server/internal/pkg/lock"
	"github.com/qs3c/petvip_server/internal/pkg/metrics"
	"github.com/qs3c/petvip_server/internal/pkg/pending"
	"github.com/qs3c/petvip_server/internal/pkg/pubsub"
	"github.com/qs3c/petvip_server/internal/pkg/vietqr"
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

	metrics.InitMetrics()

	feed := bankfeed.NewClient(&cfg.Payment.BankFeed, loc)
	if err := feed.Validate(); err != nil {
		log.Printf("Warning: bank feed not configured, pending intents will not match: %v", err)
	}

	// 初始化 Repository 和 Pub/Sub
	vipRepo := repository.NewVipRepository(db)
	userRepo := repository.NewUserRepository(db)
	publisher := pubsub.NewPublisher(rdb)
	clock := service.NewClock(loc)

	paymentService, err := service.NewPaymentService(
		vipRepo,
		userRepo,
		feed,
		vietqr.NewClient(&cfg.Payment.QR),
		lock.NewRedisLocker(rdb, cfg.Payment.LockPrefix, cfg.Payment.LockTTL()),
		clock,
		&cfg.Payment,
		service.WithIntentStore(pending.NewStore(rdb, cfg.Payment.PendingKey)),
		service.WithEventPublisher(publisher),
	)
	if err != nil {
		log.Fatalf("Failed to init payment service: %v", err)
	}
	vipService, err := service.NewVipService(vipRepo, clock, &cfg.Payment, service.WithExpiryPublisher(publisher))
	if err != nil {
		log.Fatalf("Failed to init vip service: %v", err)
	}

	cronService := cron.NewService(paymentService, vipService, cfg.Payment.PollInterval(), loc)
	cronService.Start()
	log.Printf("Worker started, poll workers: %d", cfg.Payment.PollWorkers)

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Received shutdown signal")

	cronService.Stop()

	if err := rdb.Close(); err != nil {
		log.Printf("Failed to close redis: %v", err)
	}
	log.Println("Worker shutdown complete")
}
