package handler

import (
	"errors"
	"log"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/petvip_server/internal/api/middleware"
	"github.com/qs3c/petvip_server/internal/model/dto"
	"github.com/qs3c/petvip_server/internal/pkg/response"
	"github.com/qs3c/petvip_server/internal/service"
)

type VipHandler struct {
	paymentService *service.PaymentService
	vipService     *service.VipService
}

func NewVipHandler(paymentService *service.PaymentService, vipService *service.VipService) *VipHandler {
	return &VipHandler{
		paymentService: paymentService,
		vipService:     vipService,
	}
}

// RequestQR 生成付款二维码
// POST /api/v1/vip/qr
func (h *VipHandler) RequestQR(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	image, err := h.paymentService.RequestQR(c.Request.Context(), userID, req.Months, req.Amount)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Image(c, "image/png", image)
}

// Reconcile 核对付款并开通 VIP
// POST /api/v1/vip/reconcile
func (h *VipHandler) Reconcile(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	result, err := h.paymentService.TryReconcile(c.Request.Context(), userID, req.Months, req.Amount)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	if result.Outcome == service.OutcomeUnmatched {
		response.SuccessWithMessage(c, "暂未查询到付款，请稍后再试", dto.ReconcileResponse{
			Outcome: result.Outcome,
		})
		return
	}

	response.SuccessWithMessage(c, "VIP 开通成功", dto.ReconcileResponse{
		Outcome: result.Outcome,
		Record:  h.vipService.HistoryItem(result.Record),
	})
}

// GetStatus 当前 VIP 状态
// GET /api/v1/vip/status
func (h *VipHandler) GetStatus(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	status, err := h.vipService.GetVipStatus(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, status)
}

// ListHistory VIP 开通记录
// GET /api/v1/vip/history
func (h *VipHandler) ListHistory(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	items, err := h.vipService.ListHistory(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, items)
}

// ListPlans 套餐列表
// GET /api/v1/vip/plans
func (h *VipHandler) ListPlans(c *gin.Context) {
	response.Success(c, h.vipService.ListPlans())
}

func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFoundError(c, err.Error())
	case errors.Is(err, service.ErrAlreadySubscribed):
		response.AlreadySubscribedError(c, "")
	case errors.Is(err, service.ErrReconcileDisabled):
		response.UnavailableError(c, "")
	case errors.Is(err, service.ErrConfigurationMissing):
		log.Printf("Payment configuration missing: %v", err)
		response.ConfigMissingError(c, "")
	case errors.Is(err, service.ErrExternalService):
		log.Printf("External service error: %v", err)
		response.ExternalServiceError(c, "")
	default:
		log.Printf("Unexpected error on %s: %v", c.FullPath(), err)
		response.ServerError(c, "")
	}
}
