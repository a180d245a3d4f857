package domain

import (
	"errors"
	"fmt"
)

// ValidationError 表示计划参数不合法，不会重试，直接返回给调用方
type ValidationError struct {
	Message string
	// 租户计划数量超限时置位，审计时单独记一条限流事件
	RateLimited bool
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func NewRateLimitError(limit int, current int) *ValidationError {
	return &ValidationError{
		Message:     fmt.Sprintf("租户已启用的计划数量 %d 达到上限 %d", current, limit),
		RateLimited: true,
	}
}

// SecurityViolation 表示收件人或投递通道不被允许，不会重试，
// 在返回之前必须以 critical 级别写入审计
type SecurityViolation struct {
	Reason    string
	Recipient string
}

func (e *SecurityViolation) Error() string {
	if e.Recipient != "" {
		return fmt.Sprintf("安全校验失败: %s (收件人: %s)", e.Reason, e.Recipient)
	}
	return fmt.Sprintf("安全校验失败: %s", e.Reason)
}

type PipelineStage string

const (
	StageFetchingData PipelineStage = "fetching_data"
	StageRendering    PipelineStage = "rendering"
	StageDelivering   PipelineStage = "delivering"
	StageRecording    PipelineStage = "recording"
)

// TransientPipelineError 表示流水线中可重试的故障（查询、渲染、投递抖动），
// 由队列按退避策略重试，超过次数上限后记为失败的执行
type TransientPipelineError struct {
	Stage PipelineStage
	Err   error
}

func (e *TransientPipelineError) Error() string {
	return fmt.Sprintf("流水线 %s 阶段出错: %v", e.Stage, e.Err)
}

func (e *TransientPipelineError) Unwrap() error {
	return e.Err
}

func NewTransientError(stage PipelineStage, err error) *TransientPipelineError {
	return &TransientPipelineError{Stage: stage, Err: err}
}

// IsRetryable 判断一个任务错误是否应该交给队列重试
func IsRetryable(err error) bool {
	var transient *TransientPipelineError
	return errors.As(err, &transient)
}
