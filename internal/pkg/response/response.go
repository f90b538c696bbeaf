package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误码定义
const (
	CodeSuccess            = 0
	CodeParamError         = 1000
	CodeAuthFailed         = 1001
	CodePermissionDenied   = 1002
	CodeResourceNotFound   = 1003
	CodeRateLimited        = 1004
	CodeAlreadySubscribed  = 1005
	CodeServerError        = 5000
	CodeConfigMissing      = 5001
	CodeExternalService    = 5002
	CodeServiceUnavailable = 5003
)

// 错误码对应的默认消息
var codeMessages = map[int]string{
	CodeSuccess:            "success",
	CodeParamError:         "参数错误",
	CodeAuthFailed:         "认证失败",
	CodePermissionDenied:   "权限不足",
	CodeResourceNotFound:   "资源不存在",
	CodeRateLimited:        "请求过于频繁",
	CodeAlreadySubscribed:  "当前已是 VIP 会员",
	CodeServerError:        "服务器内部错误",
	CodeConfigMissing:      "支付服务未配置",
	CodeExternalService:    "外部服务暂不可用",
	CodeServiceUnavailable: "服务维护中",
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 带自定义消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// Image 直接返回图片内容
func Image(c *gin.Context, contentType string, data []byte) {
	c.Data(http.StatusOK, contentType, data)
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	if message == "" {
		message = codeMessages[code]
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// ParamError 参数错误
func ParamError(c *gin.Context, message string) {
	if message == "" {
		message = codeMessages[CodeParamError]
	}
	Error(c, CodeParamError, message)
}

// AuthError 认证失败
func AuthError(c *gin.Context, message string) {
	if message == "" {
		message = codeMessages[CodeAuthFailed]
	}
	Error(c, CodeAuthFailed, message)
}

// PermissionError 权限不足
func PermissionError(c *gin.Context, message string) {
	if message == "" {
		message = codeMessages[CodePermissionDenied]
	}
	Error(c, CodePermissionDenied, message)
}

// NotFoundError 资源不存在
func NotFoundError(c *gin.Context, message string) {
	if message == "" {
		message = codeMessages[CodeResourceNotFound]
	}
	Error(c, CodeResourceNotFound, message)
}

// RateLimitError 请求过于频繁
func RateLimitError(c *gin.Context, message string) {
	if message == "" {
		message = codeMessages[CodeRateLimited]
	}
	Error(c, CodeRateLimited, message)
}

// AlreadySubscribedError 已是会员
func AlreadySubscribedError(c *gin.Context, message string) {
	if message == "" {
		message = codeMessages[CodeAlreadySubscribed]
	}
	Error(c, CodeAlreadySubscribed, message)
}

// ServerError 服务器错误
func ServerError(c *gin.Context, message string) {
	if message == "" {
		message = codeMessages[CodeServerError]
	}
	Error(c, CodeServerError, message)
}

// ConfigMissingError 支付服务未配置
func ConfigMissingError(c *gin.Context, message string) {
	if message == "" {
		message = codeMessages[CodeConfigMissing]
	}
	Error(c, CodeConfigMissing, message)
}

// ExternalServiceError 外部服务异常
func ExternalServiceError(c *gin.Context, message string) {
	if message == "" {
		message = codeMessages[CodeExternalService]
	}
	Error(c, CodeExternalService, message)
}

// UnavailableError 服务维护中
func UnavailableError(c *gin.Context, message string) {
	if message == "" {
		message = codeMessages[CodeServiceUnavailable]
	}
	Error(c, CodeServiceUnavailable, message)
}
