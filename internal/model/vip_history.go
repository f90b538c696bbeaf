package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// VIP 记录状态
const (
	VipStatusActive  = "active"
	VipStatusExpired = "expired"
)

// VipHistory 一次成功对账产生的 VIP 开通记录
type VipHistory struct {
	ID             int64           `gorm:"primaryKey" json:"history_id"`
	UserID         int64           `gorm:"not null;index" json:"user_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	DurationMonths int             `gorm:"not null" json:"duration_months"`
	StartDate      time.Time       `gorm:"not null" json:"start_date"`
	EndDate        time.Time       `gorm:"not null;index" json:"end_date"`
	Status         string          `gorm:"size:20;not null;default:active;index" json:"status"` // active, expired
	// 生效期间等于 UserID，过期后置空；唯一索引保证每个用户最多一条生效记录
	ActiveUserID  *int64    `gorm:"uniqueIndex" json:"-"`
	TransactionID string    `gorm:"size:100;not null;uniqueIndex" json:"transaction_id"`
	Memo          string    `gorm:"size:100" json:"memo"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (VipHistory) TableName() string {
	return "vip_histories"
}

// CoversDay 判断某一天是否落在 [StartDate, EndDate] 内，day 需为当天零点
func (h *VipHistory) CoversDay(day time.Time) bool {
	loc := day.Location()
	start := DateOf(h.StartDate, loc)
	end := DateOf(h.EndDate, loc)
	return !day.Before(start) && !day.After(end)
}

// ExpiredOn 判断在某一天是否已过期
func (h *VipHistory) ExpiredOn(day time.Time) bool {
	return day.After(DateOf(h.EndDate, day.Location()))
}

// DateOf 取 t 在 loc 时区下的零点
func DateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// AddMonths 按自然月累加，目标月没有对应日期时取月末（1月31日 + 1个月 = 2月28/29日）
func AddMonths(day time.Time, months int) time.Time {
	y, m, d := day.Date()
	target := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, day.Location())
	lastDay := target.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(target.Year(), target.Month(), d, 0, 0, 0, 0, day.Location())
}

// DaysBetween from 到 to 相差的自然日数，只看日期部分
func DaysBetween(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
