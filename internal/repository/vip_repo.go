package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/petvip_server/internal/model"
)

// ErrDuplicateVip 违反唯一约束：交易已被使用，或用户已有生效记录
var ErrDuplicateVip = errors.New("duplicate vip history")

type VipRepository struct {
	db *gorm.DB
}

func NewVipRepository(db *gorm.DB) *VipRepository {
	return &VipRepository{db: db}
}

// Transaction 在同一个数据库事务内执行 fn
func (r *VipRepository) Transaction(ctx context.Context, fn func(txRepo *VipRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&VipRepository{db: tx})
	})
}

func (r *VipRepository) Create(ctx context.Context, history *model.VipHistory) error {
	if history.Status == model.VipStatusActive {
		userID := history.UserID
		history.ActiveUserID = &userID
	}
	err := r.db.WithContext(ctx).Create(history).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateVip
	}
	return err
}

func (r *VipRepository) GetByID(ctx context.Context, id int64) (*model.VipHistory, error) {
	var history model.VipHistory
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&history).Error
	if err != nil {
		return nil, err
	}
	return &history, nil
}

// GetLatestByUserID 获取用户最近一条记录
func (r *VipRepository) GetLatestByUserID(ctx context.Context, userID int64) (*model.VipHistory, error) {
	var history model.VipHistory
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("start_date DESC").Order("id DESC").
		First(&history).Error
	if err != nil {
		return nil, err
	}
	return &history, nil
}

// GetActiveByUserID 获取状态为 active 的记录（不判断是否已过期）
func (r *VipRepository) GetActiveByUserID(ctx context.Context, userID int64) (*model.VipHistory, error) {
	var history model.VipHistory
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.VipStatusActive).
		Order("id DESC").
		First(&history).Error
	if err != nil {
		return nil, err
	}
	return &history, nil
}

// ListByUserID 用户全部记录，按时间倒序
func (r *VipRepository) ListByUserID(ctx context.Context, userID int64) ([]*model.VipHistory, error) {
	var histories []*model.VipHistory
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Find(&histories).Error
	return histories, err
}

// MarkExpired 将过期记录改为 expired，并释放用户的生效名额
func (r *VipRepository) MarkExpired(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&model.VipHistory{}).
		Where("id = ? AND status = ?", id, model.VipStatusActive).
		Updates(map[string]interface{}{
			"status":         model.VipStatusExpired,
			"active_user_id": nil,
		}).Error
}

// ListActiveEndedBefore 结束日早于 day 但仍为 active 的记录
func (r *VipRepository) ListActiveEndedBefore(ctx context.Context, day time.Time, limit int) ([]*model.VipHistory, error) {
	var histories []*model.VipHistory
	err := r.db.WithContext(ctx).
		Where("status = ? AND end_date < ?", model.VipStatusActive, day).
		Order("end_date ASC").
		Limit(limit).
		Find(&histories).Error
	return histories, err
}

// ConsumedTransactionIDs 返回 ids 中已被使用过的交易
func (r *VipRepository) ConsumedTransactionIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	consumed := make(map[string]struct{})
	if len(ids) == 0 {
		return consumed, nil
	}

	var found []string
	err := r.db.WithContext(ctx).Model(&model.VipHistory{}).
		Where("transaction_id IN ?", ids).
		Pluck("transaction_id", &found).Error
	if err != nil {
		return nil, err
	}

	for _, id := range found {
		consumed[id] = struct{}{}
	}
	return consumed, nil
}

// ExistsByTransactionID 交易是否已被使用
func (r *VipRepository) ExistsByTransactionID(ctx context.Context, transactionID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.VipHistory{}).
		Where("transaction_id = ?", transactionID).Count(&count).Error
	return count > 0, err
}
