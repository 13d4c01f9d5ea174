package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// ErrNotSupported 提供商不支持该操作
var ErrNotSupported = errors.New("operation not supported by provider")

// ErrorType 错误类型
type ErrorType string

const (
	// 连接错误
	ErrorTypeConnection ErrorType = "connection"
	ErrorTypeTimeout    ErrorType = "timeout"

	// 认证错误
	ErrorTypeAuth   ErrorType = "authentication"
	ErrorTypeOAuth2 ErrorType = "oauth2"

	// 服务器错误
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeRateLimit          ErrorType = "rate_limit"
	ErrorTypeServerError        ErrorType = "server_error"
	ErrorTypeServiceUnavailable ErrorType = "service_unavailable"

	// 数据错误
	ErrorTypeDataFormat ErrorType = "data_format"

	// 配置错误
	ErrorTypeConfig ErrorType = "configuration"

	// 未知错误
	ErrorTypeUnknown ErrorType = "unknown"
)

// ProviderError 提供商错误
type ProviderError struct {
	Type      ErrorType `json:"type"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Provider  string    `json:"provider"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Error 实现error接口
func (e *ProviderError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap 实现errors.Unwrap接口
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Is 实现errors.Is接口
func (e *ProviderError) Is(target error) bool {
	if pe, ok := target.(*ProviderError); ok {
		return e.Type == pe.Type && e.Code == pe.Code
	}
	return false
}

// newConfigError 创建配置缺失错误
func newConfigError(provider, message string) *ProviderError {
	return &ProviderError{
		Type:      ErrorTypeConfig,
		Code:      "CONFIGURATION",
		Message:   message,
		Provider:  provider,
		Retryable: false,
		Timestamp: time.Now(),
	}
}

// ClassifyHTTPStatus 根据HTTP状态码分类错误
func ClassifyHTTPStatus(provider string, status int, body string) *ProviderError {
	e := &ProviderError{
		Code:      fmt.Sprintf("HTTP_%d", status),
		Message:   fmt.Sprintf("unexpected status %d: %s", status, truncate(body, 200)),
		Provider:  provider,
		Timestamp: time.Now(),
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Type = ErrorTypeAuth
		e.Retryable = false
	case status == http.StatusNotFound:
		e.Type = ErrorTypeNotFound
		e.Retryable = false
	case status == http.StatusTooManyRequests:
		e.Type = ErrorTypeRateLimit
		e.Retryable = true
	case status == http.StatusServiceUnavailable || status == http.StatusBadGateway || status == http.StatusGatewayTimeout:
		e.Type = ErrorTypeServiceUnavailable
		e.Retryable = true
	case status >= 500:
		e.Type = ErrorTypeServerError
		e.Retryable = true
	default:
		e.Type = ErrorTypeUnknown
		e.Retryable = false
	}
	return e
}

// ClassifyError 分类传输层错误
func ClassifyError(provider string, err error) *ProviderError {
	if err == nil {
		return nil
	}

	// 已经是ProviderError，补全provider字段后返回
	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Provider == "" {
			pe.Provider = provider
		}
		return pe
	}

	e := &ProviderError{
		Message:   err.Error(),
		Provider:  provider,
		Cause:     err,
		Timestamp: time.Now(),
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		e.Type = ErrorTypeTimeout
		e.Code = "TIMEOUT"
		e.Retryable = true
	case errors.As(err, &netErr) && netErr.Timeout():
		e.Type = ErrorTypeTimeout
		e.Code = "TIMEOUT"
		e.Retryable = true
	case strings.Contains(err.Error(), "connection refused"),
		strings.Contains(err.Error(), "no such host"),
		strings.Contains(err.Error(), "connection reset"):
		e.Type = ErrorTypeConnection
		e.Code = "CONNECTION"
		e.Retryable = true
	default:
		e.Type = ErrorTypeUnknown
		e.Code = "UNKNOWN_ERROR"
		e.Retryable = false
	}
	return e
}

// RetryConfig 重试配置
type RetryConfig struct {
	MaxAttempts   int           `json:"max_attempts"`
	BaseDelay     time.Duration `json:"base_delay"`
	MaxDelay      time.Duration `json:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor"`
}

// DefaultRetryConfig 默认重试配置
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     2 * time.Second,
		MaxDelay:      2 * time.Minute,
		BackoffFactor: 2.0,
	}
}

// RetryHandler 重试处理器
type RetryHandler struct {
	config *RetryConfig
}

// NewRetryHandler 创建重试处理器
func NewRetryHandler(config *RetryConfig) *RetryHandler {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryHandler{config: config}
}

// ShouldRetry 判断是否应该重试
func (rh *RetryHandler) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= rh.config.MaxAttempts {
		return false
	}
	return ClassifyError("", err).Retryable
}

// CalculateDelay 计算重试延迟
func (rh *RetryHandler) CalculateDelay(attempt int) time.Duration {
	delay := rh.config.BaseDelay
	for i := 0; i < attempt; i++ {
		delay = time.Duration(float64(delay) * rh.config.BackoffFactor)
	}
	if delay > rh.config.MaxDelay {
		delay = rh.config.MaxDelay
	}
	return delay
}

// ExecuteWithRetry 执行带重试的操作
func (rh *RetryHandler) ExecuteWithRetry(ctx context.Context, provider string, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt < rh.config.MaxAttempts; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !rh.ShouldRetry(err, attempt) || attempt == rh.config.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rh.CalculateDelay(attempt)):
		}
	}

	return ClassifyError(provider, lastErr)
}

// truncate 截断超长响应体，避免错误信息过大
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
