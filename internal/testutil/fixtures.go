package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/qs3c/petvip_server/internal/model"
)

// TestUser 创建测试用户
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	email := fmt.Sprintf("test_%d@example.com", time.Now().UnixNano())
	user := &model.User{
		Username: fmt.Sprintf("testuser_%d", time.Now().UnixNano()),
		Email:    &email,
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithUsername 设置用户名
func WithUsername(username string) func(*model.User) {
	return func(u *model.User) {
		u.Username = username
	}
}

// WithUserID 指定用户 ID
func WithUserID(id int64) func(*model.User) {
	return func(u *model.User) {
		u.ID = id
	}
}

// TestVipHistory 创建测试 VIP 记录，默认从 start 起 1 个月、状态 active
func TestVipHistory(t *testing.T, db *gorm.DB, userID int64, start time.Time, opts ...func(*model.VipHistory)) *model.VipHistory {
	t.Helper()

	history := &model.VipHistory{
		UserID:         userID,
		Amount:         decimal.NewFromInt(50000),
		DurationMonths: 1,
		StartDate:      start,
		EndDate:        model.AddMonths(start, 1),
		Status:         model.VipStatusActive,
		TransactionID:  fmt.Sprintf("fixture_%d", time.Now().UnixNano()),
	}

	for _, opt := range opts {
		opt(history)
	}

	if history.Status == model.VipStatusActive {
		uid := history.UserID
		history.ActiveUserID = &uid
	}

	if err := db.Create(history).Error; err != nil {
		t.Fatalf("Failed to create test vip history: %v", err)
	}

	return history
}

// WithVipPeriod 设置起止日期
func WithVipPeriod(start, end time.Time) func(*model.VipHistory) {
	return func(h *model.VipHistory) {
		h.StartDate = start
		h.EndDate = end
	}
}

// WithVipStatus 设置状态
func WithVipStatus(status string) func(*model.VipHistory) {
	return func(h *model.VipHistory) {
		h.Status = status
	}
}

// WithTransactionID 设置消费的交易号
func WithTransactionID(id string) func(*model.VipHistory) {
	return func(h *model.VipHistory) {
		h.TransactionID = id
	}
}

// WithVipAmount 设置金额与月数
func WithVipAmount(amount int64, months int) func(*model.VipHistory) {
	return func(h *model.VipHistory) {
		h.Amount = decimal.NewFromInt(amount)
		h.DurationMonths = months
	}
}
