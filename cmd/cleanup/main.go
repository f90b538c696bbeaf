package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/qs3c/petvip_server/config"
	"github.com/qs3c/petvip_server/internal/database"
	"github.com/qs3c/petvip_server/internal/pkg/pending"
	"github.com/qs3c/petvip_server/internal/pkg/pubsub"
	"github.com/qs3c/petvip_server/internal/repository"
	"github.com/qs3c/petvip_server/internal/service"
)

var (
	dryRun       = flag.Bool("dry-run", true, "Dry run mode, only report what would change")
	expireVip    = flag.Bool("expire-vip", true, "Mark active VIP records past their end date as expired")
	cleanIntents = flag.Bool("clean-intents", true, "Drop pending payment intents older than the look-back window")
)

func main() {
	flag.Parse()

	log.Println("🧹 Starting cleanup task...")
	log.Printf("Mode: dry-run=%v", *dryRun)

	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	loc, err := cfg.Payment.Location()
	if err != nil {
		log.Fatalf("Invalid payment timezone %q: %v", cfg.Payment.Timezone, err)
	}

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	clock := service.NewClock(loc)
	vipRepo := repository.NewVipRepository(db)
	expired, dropped := 0, 0

	// 1. 过期 VIP 记录
	if *expireVip {
		log.Printf("\n📅 Scanning VIP records ended before %s...", clock.FormatDate(clock.Today()))
		expired = expireRecords(ctx, cfg, vipRepo, clock, pubsub.NewPublisher(rdb), *dryRun)
	}

	// 2. 过期的待对账意向
	if *cleanIntents {
		log.Printf("\n💳 Scanning pending intents older than %s...", cfg.Payment.Lookback())
		store := pending.NewStore(rdb, cfg.Payment.PendingKey)
		dropped = cleanStaleIntents(ctx, store, clock.Now().Add(-cfg.Payment.Lookback()), *dryRun)
	}

	// 输出统计
	log.Println("\n" + strings.Repeat("=", 60))
	log.Println("📊 Cleanup Summary")
	log.Println(strings.Repeat("=", 60))
	log.Printf("Expired VIP records: %d", expired)
	log.Printf("Dropped pending intents: %d", dropped)
	if *dryRun {
		log.Println("\n⚠️  DRY RUN MODE - Nothing was changed")
		log.Println("   Run with -dry-run=false to apply")
	} else {
		log.Println("\n✅ Cleanup completed!")
	}
	log.Println(strings.Repeat("=", 60))
}

// expireRecords 将已过结束日的生效记录改为 expired
func expireRecords(
	ctx context.Context,
	cfg *config.Config,
	vipRepo *repository.VipRepository,
	clock *service.Clock,
	publisher *pubsub.Publisher,
	dryRun bool,
) int {
	if dryRun {
		due, err := vipRepo.ListActiveEndedBefore(ctx, clock.Today(), 1000)
		if err != nil {
			log.Printf("Failed to query vip histories: %v", err)
			return 0
		}
		for _, h := range due {
			log.Printf("  - history %d (user %d, ended %s)", h.ID, h.UserID, clock.FormatDate(h.EndDate))
		}
		return len(due)
	}

	vipService, err := service.NewVipService(vipRepo, clock, &cfg.Payment, service.WithExpiryPublisher(publisher))
	if err != nil {
		log.Printf("Failed to init vip service: %v", err)
		return 0
	}
	n, err := vipService.ExpireDue(ctx)
	if err != nil {
		log.Printf("    ❌ Failed to expire vip histories: %v", err)
	}
	return n
}

// cleanStaleIntents 删除创建时间早于 cutoff 的意向，它们已无法匹配到回溯窗口内的交易
func cleanStaleIntents(ctx context.Context, store *pending.Store, cutoff time.Time, dryRun bool) int {
	intents, err := store.List(ctx)
	if err != nil {
		log.Printf("Failed to list pending intents: %v", err)
		return 0
	}

	count := 0
	for _, intent := range intents {
		if !intent.CreatedAt.Before(cutoff) {
			continue
		}

		log.Printf("  - user %d, %s (%s old)", intent.UserID, intent.Memo,
			time.Since(intent.CreatedAt).Round(time.Minute))

		if !dryRun {
			if err := store.Remove(ctx, intent.UserID); err != nil {
				log.Printf("    ❌ Failed to remove: %v", err)
				continue
			}
		}
		count++
	}

	log.Printf("Found %d stale intents out of %d", count, len(intents))
	return count
}
