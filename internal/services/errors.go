package services

import "errors"

// ErrNotFound 目标记录不存在
// 处理层据此返回404而不是500
var ErrNotFound = errors.New("record not found")
