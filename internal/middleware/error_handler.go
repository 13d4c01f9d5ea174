package middleware

import (
	"fmt"
	"log"
	"net/http"
	"runtime/debug"

	"discovarr/internal/config"

	"github.com/gin-gonic/gin"
)

// ErrorResponse 统一错误响应格式
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error"`
	Message string      `json:"message,omitempty"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// ErrorHandler 错误处理中间件
func ErrorHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		if err, ok := recovered.(string); ok {
			handlePanicError(c, err)
		} else if err, ok := recovered.(error); ok {
			handlePanicError(c, err.Error())
		} else {
			handlePanicError(c, fmt.Sprintf("Unknown error: %v", recovered))
		}
	})
}

// handlePanicError 处理panic错误
func handlePanicError(c *gin.Context, err string) {
	log.Printf("Panic recovered: %s", err)

	if config.IsDevelopment() {
		log.Printf("Stack trace: %s", debug.Stack())
	}

	response := ErrorResponse{
		Success: false,
		Error:   "Internal Server Error",
		Message: "An unexpected error occurred",
		Code:    "INTERNAL_ERROR",
	}

	// 开发模式下返回详细错误信息
	if config.IsDevelopment() {
		response.Details = err
	}

	c.JSON(http.StatusInternalServerError, response)
	c.Abort()
}
