package models

import (
	"errors"
	"sort"
	"strings"
)

// ErrNotFound 病区、计划或告警不存在
var ErrNotFound = errors.New("not found")

// ValidationError 按字段归类的校验错误
type ValidationError struct {
	Fields map[string][]string `json:"errors"`
}

// NewValidationError 创建单字段校验错误
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string][]string{field: {message}}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}
