package service

import "errors"

var (
	ErrInvalidArgument      = errors.New("参数无效")
	ErrUserNotFound         = errors.New("用户不存在")
	ErrAlreadySubscribed    = errors.New("当前已是 VIP 会员")
	ErrConfigurationMissing = errors.New("支付服务配置缺失")
	ErrExternalService      = errors.New("外部服务暂不可用")
	ErrReconcileDisabled    = errors.New("支付核对维护中")
)
