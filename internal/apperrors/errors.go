// Package apperrors содержит единый тип ошибки приложения с машинно-читаемым кодом.
package apperrors

import (
	"errors"
	"fmt"
)

// Code — машинно-читаемый код ошибки.
type Code string

// Классы ошибок по их влиянию на систему.
const (
	// CodeConfiguration — неверные пороги, отсутствует модель, неизвестный вид инструмента.
	CodeConfiguration Code = "CONFIGURATION"
	// CodeTransient — таймаут кадра, пустой кадр, таймаут чтения TCP.
	CodeTransient Code = "TRANSIENT"
	// CodeCorrelation — sensor-OUT без ожидающей строки и т.п.
	CodeCorrelation Code = "CORRELATION"
	// CodePipeline — инструмент упал во время process.
	CodePipeline Code = "PIPELINE"
	// CodeFatal — камеру не удалось открыть, нет файла модели.
	CodeFatal Code = "FATAL"
)

// Уточняющие коды.
const (
	CodeNotFound      Code = "NOT_FOUND"
	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeCycleDetected Code = "CYCLE_DETECTED"
	CodeUnknownKind   Code = "UNKNOWN_KIND"
	CodeTimeout       Code = "TIMEOUT"
)

// AppError — ошибка приложения.
type AppError struct {
	Code    Code
	Message string
	Details map[string]any
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// WithCause устанавливает исходную ошибку.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail добавляет пару ключ-значение к деталям.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New создаёт ошибку с кодом и форматированным сообщением.
func New(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Configuration — ошибка конфигурации.
func Configuration(format string, args ...any) *AppError {
	return New(CodeConfiguration, format, args...)
}

// Transient — временная ошибка получения данных.
func Transient(format string, args ...any) *AppError {
	return New(CodeTransient, format, args...)
}

// Correlation — ошибка сопоставления событий.
func Correlation(format string, args ...any) *AppError {
	return New(CodeCorrelation, format, args...)
}

// Pipeline — ошибка выполнения инструмента.
func Pipeline(tool string, cause error) *AppError {
	return (&AppError{Code: CodePipeline, Message: fmt.Sprintf("tool %s failed", tool), Cause: cause}).
		WithDetail("tool", tool)
}

// Fatal — неустранимая ошибка подсистемы.
func Fatal(subsystem string, cause error) *AppError {
	return (&AppError{Code: CodeFatal, Message: fmt.Sprintf("%s unavailable", subsystem), Cause: cause}).
		WithDetail("subsystem", subsystem)
}

// NotFound — объект не найден.
func NotFound(resource string, id any) *AppError {
	return New(CodeNotFound, "%s %v not found", resource, id).WithDetail("id", id)
}

// InvalidInput — неверный аргумент.
func InvalidInput(field, reason string) *AppError {
	return New(CodeInvalidInput, "invalid %s: %s", field, reason).WithDetail("field", field)
}

// Timeout — истёк таймаут операции.
func Timeout(operation string) *AppError {
	return New(CodeTimeout, "%s timed out", operation).WithDetail("operation", operation)
}

// CodeOf возвращает код первой AppError в цепочке или пустую строку.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Is сообщает, содержит ли цепочка err ошибку с кодом code.
func Is(err error, code Code) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}
