package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/qs3c/petvip_server/config"
	"github.com/qs3c/petvip_server/internal/model"
	"github.com/qs3c/petvip_server/internal/pkg/bankfeed"
	"github.com/qs3c/petvip_server/internal/pkg/lock"
	"github.com/qs3c/petvip_server/internal/pkg/memo"
	"github.com/qs3c/petvip_server/internal/pkg/metrics"
	"github.com/qs3c/petvip_server/internal/pkg/pending"
	"github.com/qs3c/petvip_server/internal/pkg/pubsub"
	"github.com/qs3c/petvip_server/internal/pkg/vietqr"
	"github.com/qs3c/petvip_server/internal/repository"
)

// 对账结果
const (
	OutcomeActivated = "activated"
	OutcomeUnmatched = "unmatched"
)

// 指标来源
const (
	SourceAPI    = "api"
	SourceWorker = "worker"
)

// TransactionFeed 银行流水
type TransactionFeed interface {
	Recent(ctx context.Context) ([]bankfeed.Transaction, error)
}

// QRIssuer 收款二维码
type QRIssuer interface {
	Issue(ctx context.Context, amount decimal.Decimal, memo string) ([]byte, error)
}

// IntentStore 待对账意向
type IntentStore interface {
	Put(ctx context.Context, intent *pending.Intent) error
	List(ctx context.Context) ([]*pending.Intent, error)
	Remove(ctx context.Context, userID int64) error
}

// EventPublisher 会员事件
type EventPublisher interface {
	PublishActivated(ctx context.Context, msg *pubsub.VipEventMessage) error
}

// ReconcileResult 一次对账的结果，Record 仅在 activated 时非空
type ReconcileResult struct {
	Outcome string
	Record  *model.VipHistory
}

// PendingStats 一轮后台对账的统计
type PendingStats struct {
	Checked   int
	Activated int
	Dropped   int
	Failed    int
}

type PaymentService struct {
	vipRepo  *repository.VipRepository
	userRepo *repository.UserRepository
	feed     TransactionFeed
	issuer   QRIssuer
	locker   lock.Locker
	intents  IntentStore
	events   EventPublisher
	clock    *Clock

	plans    map[int]decimal.Decimal
	lookback time.Duration
	lockWait time.Duration
	workers  int
	disabled bool
}

// PaymentOption 可选依赖
type PaymentOption func(*PaymentService)

// WithIntentStore 记录待对账意向，供后台对账使用
func WithIntentStore(store IntentStore) PaymentOption {
	return func(s *PaymentService) {
		s.intents = store
	}
}

// WithEventPublisher 开通成功后发布事件
func WithEventPublisher(p EventPublisher) PaymentOption {
	return func(s *PaymentService) {
		s.events = p
	}
}

func NewPaymentService(
	vipRepo *repository.VipRepository,
	userRepo *repository.UserRepository,
	feed TransactionFeed,
	issuer QRIssuer,
	locker lock.Locker,
	clock *Clock,
	cfg *config.PaymentConfig,
	opts ...PaymentOption,
) (*PaymentService, error) {
	plans, err := cfg.PlanPrices()
	if err != nil {
		return nil, fmt.Errorf("invalid plan price: %w", err)
	}

	workers := cfg.PollWorkers
	if workers <= 0 {
		workers = 1
	}

	s := &PaymentService{
		vipRepo:  vipRepo,
		userRepo: userRepo,
		feed:     feed,
		issuer:   issuer,
		locker:   locker,
		clock:    clock,
		plans:    plans,
		lookback: cfg.Lookback(),
		lockWait: cfg.LockTTL(),
		workers:  workers,
		disabled: cfg.ReconcileDisabled,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RequestQR 生成收款二维码，附言为 userId<ID>months<N>
func (s *PaymentService) RequestQR(ctx context.Context, userID int64, months int, amount decimal.Decimal) ([]byte, error) {
	if err := s.validate(userID, months, amount); err != nil {
		return nil, err
	}
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}

	active, err := s.activeRecord(ctx, s.vipRepo, userID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		metrics.QRIssuedTotal.WithLabelValues("already_subscribed").Inc()
		return nil, ErrAlreadySubscribed
	}

	content, err := memo.Encode(userID, months)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	start := time.Now()
	image, err := s.issuer.Issue(ctx, amount, content)
	if err != nil {
		metrics.ExternalRequestDuration.WithLabelValues("qr", "error").Observe(time.Since(start).Seconds())
		metrics.QRIssuedTotal.WithLabelValues("error").Inc()
		switch {
		case errors.Is(err, vietqr.ErrMissingConfig):
			return nil, fmt.Errorf("%w: %w", ErrConfigurationMissing, err)
		case errors.Is(err, vietqr.ErrInvalidAmount):
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		default:
			return nil, fmt.Errorf("%w: %w", ErrExternalService, err)
		}
	}
	metrics.ExternalRequestDuration.WithLabelValues("qr", "ok").Observe(time.Since(start).Seconds())
	metrics.QRIssuedTotal.WithLabelValues("ok").Inc()

	if s.intents != nil {
		intent := &pending.Intent{
			UserID:    userID,
			Months:    months,
			Amount:    amount,
			Memo:      content,
			CreatedAt: s.clock.Now(),
		}
		if err := s.intents.Put(ctx, intent); err != nil {
			log.Printf("Failed to record pending intent for user %d: %v", userID, err)
		}
	}

	return image, nil
}

// TryReconcile 在银行流水中查找匹配的付款，找到则开通 VIP
func (s *PaymentService) TryReconcile(ctx context.Context, userID int64, months int, amount decimal.Decimal) (*ReconcileResult, error) {
	if s.disabled {
		metrics.ReconcileTotal.WithLabelValues(SourceAPI, metrics.OutcomeDisabled).Inc()
		return nil, ErrReconcileDisabled
	}
	if err := s.validate(userID, months, amount); err != nil {
		return nil, err
	}
	if err := s.ensureUser(ctx, userID); err != nil {
		return nil, err
	}

	result, err := s.reconcile(ctx, userID, months, amount, s.fetchRecent)
	s.observe(SourceAPI, result, err)
	return result, err
}

// ReconcilePending 为所有待对账意向尝试对账，流水每轮只拉取一次
func (s *PaymentService) ReconcilePending(ctx context.Context) (*PendingStats, error) {
	stats := &PendingStats{}
	if s.intents == nil {
		return stats, nil
	}
	if s.disabled {
		return stats, ErrReconcileDisabled
	}

	intents, err := s.intents.List(ctx)
	if err != nil {
		return stats, err
	}
	metrics.PendingIntents.Set(float64(len(intents)))
	if len(intents) == 0 {
		return stats, nil
	}

	cutoff := s.clock.Now().Add(-s.lookback)
	live := make([]*pending.Intent, 0, len(intents))
	for _, intent := range intents {
		if s.lookback > 0 && intent.CreatedAt.Before(cutoff) {
			s.dropIntent(ctx, intent.UserID)
			stats.Dropped++
			continue
		}
		live = append(live, intent)
	}
	if len(live) == 0 {
		return stats, nil
	}

	txs, err := s.fetchRecent(ctx)
	if err != nil {
		s.observe(SourceWorker, nil, err)
		return stats, err
	}
	cached := func(context.Context) ([]bankfeed.Transaction, error) {
		return txs, nil
	}

	type outcome struct {
		activated bool
		drop      bool
		failed    bool
	}
	outcomes := make([]outcome, len(live))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, intent := range live {
		g.Go(func() error {
			result, err := s.reconcile(gctx, intent.UserID, intent.Months, intent.Amount, cached)
			s.observe(SourceWorker, result, err)

			switch {
			case err == nil && result.Outcome == OutcomeActivated:
				outcomes[i].activated = true
				outcomes[i].drop = true
			case err == nil:
			case errors.Is(err, ErrAlreadySubscribed), errors.Is(err, ErrInvalidArgument):
				outcomes[i].drop = true
			default:
				outcomes[i].failed = true
				log.Printf("Reconcile pending intent for user %d failed: %v", intent.UserID, err)
			}
			return nil
		})
	}
	g.Wait()

	for i, o := range outcomes {
		stats.Checked++
		if o.activated {
			stats.Activated++
		}
		if o.failed {
			stats.Failed++
		}
		if o.drop {
			s.dropIntent(ctx, live[i].UserID)
			if !o.activated {
				stats.Dropped++
			}
		}
	}

	return stats, nil
}

// reconcile 在用户锁内完成：检查生效记录、匹配流水、写入记录
func (s *PaymentService) reconcile(
	ctx context.Context,
	userID int64,
	months int,
	amount decimal.Decimal,
	fetch func(context.Context) ([]bankfeed.Transaction, error),
) (*ReconcileResult, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	unlock, err := s.locker.Lock(lockCtx, strconv.FormatInt(userID, 10))
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExternalService, err)
	}
	defer unlock()

	content, err := memo.Encode(userID, months)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	active, err := s.activeRecord(ctx, s.vipRepo, userID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, ErrAlreadySubscribed
	}

	txs, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	candidates := s.matchTransactions(txs, memo.Identifier{UserID: userID, Months: months}, amount)
	if len(candidates) == 0 {
		return &ReconcileResult{Outcome: OutcomeUnmatched}, nil
	}

	var record *model.VipHistory
	err = s.vipRepo.Transaction(ctx, func(txRepo *repository.VipRepository) error {
		ids := make([]string, len(candidates))
		for i, t := range candidates {
			ids[i] = t.ID
		}
		consumed, err := txRepo.ConsumedTransactionIDs(ctx, ids)
		if err != nil {
			return err
		}

		for _, t := range candidates {
			if _, used := consumed[t.ID]; used {
				continue
			}

			today := s.clock.Today()
			record = &model.VipHistory{
				UserID:         userID,
				Amount:         amount,
				DurationMonths: months,
				StartDate:      today,
				EndDate:        model.AddMonths(today, months),
				Status:         model.VipStatusActive,
				TransactionID:  t.ID,
				Memo:           content,
			}
			return txRepo.Create(ctx, record)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateVip) {
			return nil, ErrAlreadySubscribed
		}
		return nil, err
	}
	if record == nil {
		return &ReconcileResult{Outcome: OutcomeUnmatched}, nil
	}

	log.Printf("VIP activated: user=%d months=%d transaction=%s history=%d", userID, months, record.TransactionID, record.ID)
	s.afterActivated(ctx, record)

	return &ReconcileResult{Outcome: OutcomeActivated, Record: record}, nil
}

// matchTransactions 附言与金额都完全一致、且在回溯窗口内的流水，按时间升序
func (s *PaymentService) matchTransactions(txs []bankfeed.Transaction, want memo.Identifier, amount decimal.Decimal) []bankfeed.Transaction {
	var cutoff time.Time
	if s.lookback > 0 {
		cutoff = s.clock.Now().Add(-s.lookback)
	}

	matched := make([]bankfeed.Transaction, 0)
	for _, t := range txs {
		if t.ID == "" {
			continue
		}
		if !cutoff.IsZero() && t.OccurredAt.Before(cutoff) {
			continue
		}
		id, ok := memo.Decode(t.Content)
		if !ok || id != want {
			continue
		}
		if !t.AmountIn.Equal(amount) {
			continue
		}
		matched = append(matched, t)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].OccurredAt.Before(matched[j].OccurredAt)
	})
	return matched
}

// activeRecord 返回未过期的生效记录；已过期的就地更正
func (s *PaymentService) activeRecord(ctx context.Context, repo *repository.VipRepository, userID int64) (*model.VipHistory, error) {
	active, err := repo.GetActiveByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if active.ExpiredOn(s.clock.Today()) {
		if err := repo.MarkExpired(ctx, active.ID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return active, nil
}

func (s *PaymentService) fetchRecent(ctx context.Context) ([]bankfeed.Transaction, error) {
	start := time.Now()
	txs, err := s.feed.Recent(ctx)
	if err != nil {
		metrics.ExternalRequestDuration.WithLabelValues("bank_feed", "error").Observe(time.Since(start).Seconds())
		if errors.Is(err, bankfeed.ErrMissingConfig) {
			return nil, fmt.Errorf("%w: %w", ErrConfigurationMissing, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrExternalService, err)
	}
	metrics.ExternalRequestDuration.WithLabelValues("bank_feed", "ok").Observe(time.Since(start).Seconds())
	return txs, nil
}

func (s *PaymentService) afterActivated(ctx context.Context, record *model.VipHistory) {
	s.dropIntent(ctx, record.UserID)

	if s.events == nil {
		return
	}
	msg := &pubsub.VipEventMessage{
		UserID:         record.UserID,
		HistoryID:      record.ID,
		DurationMonths: record.DurationMonths,
		StartDate:      s.clock.FormatDate(record.StartDate),
		EndDate:        s.clock.FormatDate(record.EndDate),
		TransactionID:  record.TransactionID,
	}
	if err := s.events.PublishActivated(ctx, msg); err != nil {
		log.Printf("Failed to publish vip activation for user %d: %v", record.UserID, err)
	}
}

func (s *PaymentService) dropIntent(ctx context.Context, userID int64) {
	if s.intents == nil {
		return
	}
	if err := s.intents.Remove(ctx, userID); err != nil {
		log.Printf("Failed to remove pending intent for user %d: %v", userID, err)
	}
}

func (s *PaymentService) validate(userID int64, months int, amount decimal.Decimal) error {
	if userID <= 0 || months <= 0 || !amount.IsPositive() {
		return ErrInvalidArgument
	}
	if len(s.plans) > 0 {
		price, ok := s.plans[months]
		if !ok || !price.Equal(amount) {
			return fmt.Errorf("%w: no plan for %d months at %s", ErrInvalidArgument, months, amount.String())
		}
	}
	return nil
}

func (s *PaymentService) ensureUser(ctx context.Context, userID int64) error {
	exists, err := s.userRepo.ExistsByID(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrUserNotFound
	}
	return nil
}

func (s *PaymentService) observe(source string, result *ReconcileResult, err error) {
	outcome := metrics.OutcomeError
	switch {
	case err == nil && result != nil:
		outcome = result.Outcome
	case errors.Is(err, ErrAlreadySubscribed):
		outcome = metrics.OutcomeSubscribed
	case errors.Is(err, ErrReconcileDisabled):
		outcome = metrics.OutcomeDisabled
	case errors.Is(err, ErrConfigurationMissing):
		outcome = metrics.OutcomeConfigError
	case errors.Is(err, ErrExternalService):
		outcome = metrics.OutcomeFeedError
	}
	metrics.ReconcileTotal.WithLabelValues(source, outcome).Inc()
}
