package service

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/qs3c/petvip_server/config"
	"github.com/qs3c/petvip_server/internal/model"
	"github.com/qs3c/petvip_server/internal/model/dto"
	"github.com/qs3c/petvip_server/internal/pkg/pubsub"
	"github.com/qs3c/petvip_server/internal/repository"
)

// expireBatchSize 每轮过期扫描处理的记录数
const expireBatchSize = 200

// ExpiryPublisher 过期事件
type ExpiryPublisher interface {
	PublishExpired(ctx context.Context, msg *pubsub.VipEventMessage) error
}

type VipService struct {
	vipRepo   *repository.VipRepository
	clock     *Clock
	plans     map[int]decimal.Decimal
	publisher ExpiryPublisher
}

type VipOption func(*VipService)

// WithExpiryPublisher 过期扫描后推送 vip_expired
func WithExpiryPublisher(p ExpiryPublisher) VipOption {
	return func(s *VipService) {
		s.publisher = p
	}
}

func NewVipService(vipRepo *repository.VipRepository, clock *Clock, cfg *config.PaymentConfig, opts ...VipOption) (*VipService, error) {
	plans, err := cfg.PlanPrices()
	if err != nil {
		return nil, err
	}
	s := &VipService{
		vipRepo: vipRepo,
		clock:   clock,
		plans:   plans,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GetVipStatus 查询用户当前 VIP 状态
func (s *VipService) GetVipStatus(ctx context.Context, userID int64) (*dto.VipStatus, error) {
	if userID <= 0 {
		return nil, ErrInvalidArgument
	}

	history, err := s.vipRepo.GetActiveByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		history, err = s.vipRepo.GetLatestByUserID(ctx, userID)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &dto.VipStatus{IsVip: false}, nil
		}
		return nil, err
	}

	today := s.clock.Today()
	expireIfDue(ctx, s.vipRepo, history, today)

	status := &dto.VipStatus{
		Subscription: toHistoryItem(history, s.clock),
	}
	if history.Status == model.VipStatusActive && history.CoversDay(today) {
		status.IsVip = true
		days := model.DaysBetween(today, model.DateOf(history.EndDate, s.clock.Location()))
		status.DaysRemaining = &days
	}

	return status, nil
}

// ListHistory 用户全部 VIP 记录，新的在前
func (s *VipService) ListHistory(ctx context.Context, userID int64) ([]*dto.VipHistoryItem, error) {
	if userID <= 0 {
		return nil, ErrInvalidArgument
	}

	histories, err := s.vipRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	today := s.clock.Today()
	items := make([]*dto.VipHistoryItem, 0, len(histories))
	for _, h := range histories {
		expireIfDue(ctx, s.vipRepo, h, today)
		items = append(items, toHistoryItem(h, s.clock))
	}

	return items, nil
}

// ListPlans 可购买的套餐，按月数升序
func (s *VipService) ListPlans() []dto.PlanInfo {
	plans := make([]dto.PlanInfo, 0, len(s.plans))
	for months, price := range s.plans {
		plans = append(plans, dto.PlanInfo{Months: months, Price: price})
	}
	sort.Slice(plans, func(i, j int) bool {
		return plans[i].Months < plans[j].Months
	})
	return plans
}

// ExpireDue 批量将已过结束日的生效记录改为 expired，返回处理条数
func (s *VipService) ExpireDue(ctx context.Context) (int, error) {
	today := s.clock.Today()
	expired := 0

	for {
		due, err := s.vipRepo.ListActiveEndedBefore(ctx, today, expireBatchSize)
		if err != nil {
			return expired, err
		}

		progressed := 0
		for _, h := range due {
			if !h.ExpiredOn(today) {
				continue
			}
			if err := s.vipRepo.MarkExpired(ctx, h.ID); err != nil {
				return expired, err
			}
			progressed++
			expired++
			s.publishExpired(ctx, h)
		}

		if len(due) < expireBatchSize || progressed == 0 {
			return expired, nil
		}
	}
}

func (s *VipService) publishExpired(ctx context.Context, h *model.VipHistory) {
	if s.publisher == nil {
		return
	}
	msg := &pubsub.VipEventMessage{
		UserID:         h.UserID,
		HistoryID:      h.ID,
		DurationMonths: h.DurationMonths,
		StartDate:      s.clock.FormatDate(h.StartDate),
		EndDate:        s.clock.FormatDate(h.EndDate),
	}
	if err := s.publisher.PublishExpired(ctx, msg); err != nil {
		log.Printf("Failed to publish vip_expired for user %d: %v", h.UserID, err)
	}
}

// expireIfDue 生效记录已过结束日时改为 expired；写库失败只记日志，不影响本次返回
func expireIfDue(ctx context.Context, repo *repository.VipRepository, h *model.VipHistory, today time.Time) bool {
	if h.Status != model.VipStatusActive || !h.ExpiredOn(today) {
		return false
	}

	if err := repo.MarkExpired(ctx, h.ID); err != nil {
		log.Printf("Failed to mark vip history %d expired: %v", h.ID, err)
	}
	h.Status = model.VipStatusExpired
	h.ActiveUserID = nil
	return true
}

func toHistoryItem(h *model.VipHistory, clock *Clock) *dto.VipHistoryItem {
	return &dto.VipHistoryItem{
		HistoryID:      h.ID,
		UserID:         h.UserID,
		Amount:         h.Amount,
		DurationMonths: h.DurationMonths,
		StartDate:      clock.FormatDate(h.StartDate),
		EndDate:        clock.FormatDate(h.EndDate),
		Status:         h.Status,
		TransactionID:  h.TransactionID,
		CreatedAt:      h.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      h.UpdatedAt.Format(time.RFC3339),
	}
}

// HistoryItem 转换为接口返回结构
func (s *VipService) HistoryItem(h *model.VipHistory) *dto.VipHistoryItem {
	if h == nil {
		return nil
	}
	return toHistoryItem(h, s.clock)
}
