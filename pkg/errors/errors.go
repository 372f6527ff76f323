// Package errors 提供應用程式錯誤處理
package errors

import (
	"errors"
	"fmt"
)

// 定義錯誤碼
const (
	// ErrCodeNotFound 資源未找到
	ErrCodeNotFound = "NOT_FOUND"
	// ErrCodeInvalidInput 無效輸入
	ErrCodeInvalidInput = "INVALID_INPUT"
	// ErrCodeRejected 規則拒絕
	ErrCodeRejected = "REJECTED"
	// ErrCodeInternal 內部錯誤
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeUnavailable 服務不可用
	ErrCodeUnavailable = "SERVICE_UNAVAILABLE"
)

// AppError 應用程式錯誤
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error 實現 error 介面
func (e *AppError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap 實現 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 同碼同訊息視為同一錯誤，讓 WithDetails 產生的副本仍能比對預定義錯誤
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New 創建新的應用程式錯誤
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包裝錯誤
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails 回傳附帶詳細資訊的副本（預定義錯誤是共用的，不能原地修改）
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// 預定義錯誤
var (
	// ErrSessionNotFound 對局不存在
	ErrSessionNotFound = New(ErrCodeNotFound, "session not found")

	// ErrGameNotArchived 對局未歸檔
	ErrGameNotArchived = New(ErrCodeNotFound, "game not archived")

	// ErrMalformedMove 走法格式錯誤
	ErrMalformedMove = New(ErrCodeInvalidInput, "malformed move")

	// ErrMalformedPosition 局面無法解析
	ErrMalformedPosition = New(ErrCodeInvalidInput, "malformed position")

	// ErrIllegalMove 規則引擎拒絕的走法
	ErrIllegalMove = New(ErrCodeRejected, "illegal move")

	// ErrArchiveDisabled 未啟用歸檔
	ErrArchiveDisabled = New(ErrCodeUnavailable, "archive disabled")

	// ErrCoordinatorStopped 服務關閉中
	ErrCoordinatorStopped = New(ErrCodeUnavailable, "coordinator stopped")
)

func hasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsNotFound 檢查是否為未找到錯誤
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsInvalidInput 檢查是否為無效輸入錯誤
func IsInvalidInput(err error) bool {
	return hasCode(err, ErrCodeInvalidInput)
}

// IsRejected 檢查是否為規則拒絕
func IsRejected(err error) bool {
	return hasCode(err, ErrCodeRejected)
}

// IsUnavailable 檢查是否為服務不可用錯誤
func IsUnavailable(err error) bool {
	return hasCode(err, ErrCodeUnavailable)
}
