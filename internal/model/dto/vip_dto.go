package dto

import (
	"github.com/shopspring/decimal"
)

// PaymentRequest 申请收款码 / 核对付款请求
type PaymentRequest struct {
	Months int             `json:"months" binding:"required,gt=0"`
	Amount decimal.Decimal `json:"amount"`
}

// VipHistoryItem VIP 记录
type VipHistoryItem struct {
	HistoryID      int64           `json:"history_id"`
	UserID         int64           `json:"user_id"`
	Amount         decimal.Decimal `json:"amount"`
	DurationMonths int             `json:"duration_months"`
	StartDate      string          `json:"start_date"`
	EndDate        string          `json:"end_date"`
	Status         string          `json:"status"`
	TransactionID  string          `json:"transaction_id"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
}

// VipStatus VIP 状态
type VipStatus struct {
	IsVip         bool            `json:"is_vip"`
	Subscription  *VipHistoryItem `json:"subscription"`
	DaysRemaining *int            `json:"days_remaining"`
}

// ReconcileResponse 核对结果
type ReconcileResponse struct {
	Outcome string          `json:"outcome"` // activated, unmatched
	Record  *VipHistoryItem `json:"record,omitempty"`
}

// PlanInfo 套餐信息
type PlanInfo struct {
	Months int             `json:"months"`
	Price  decimal.Decimal `json:"price"`
}
