package port_pool

import (
	"errors"
	"fmt"
)

// Базовые ошибки пула. Проверяются через errors.Is.
var (
	// ErrInvalidRange - некорректный диапазон портов (ceiling <= base или вне 1..65535)
	ErrInvalidRange = errors.New("некорректный диапазон портов")
	// ErrPoolExhausted - после ограниченного перебора свободный порт не найден
	ErrPoolExhausted = errors.New("пул портов исчерпан")
)

// PoolErrorCode классифицирует ошибки пула портов.
type PoolErrorCode int

const (
	ErrorCodeInvalidRange PoolErrorCode = iota + 2000
	ErrorCodeExhausted
	ErrorCodeDeadline
)

// String возвращает строковое представление кода ошибки
func (code PoolErrorCode) String() string {
	switch code {
	case ErrorCodeInvalidRange:
		return "InvalidRange"
	case ErrorCodeExhausted:
		return "PoolExhausted"
	case ErrorCodeDeadline:
		return "Deadline"
	default:
		return fmt.Sprintf("Unknown(%d)", int(code))
	}
}

// PoolError несет контекст ошибки пула: код, диапазон и стратегию.
// Deadline ошибка сопоставляется с ErrPoolExhausted, чтобы вызывающий код
// обрабатывал истечение таймаута так же, как исчерпание пула.
type PoolError struct {
	Code     PoolErrorCode
	Range    Range
	Strategy Strategy
	Attempts int
	Wrapped  error
}

// Error реализует интерфейс error.
func (e *PoolError) Error() string {
	msg := fmt.Sprintf("[port_pool:%s] диапазон %s", e.Code, e.Range)
	if e.Code != ErrorCodeInvalidRange {
		msg = fmt.Sprintf("%s, стратегия %s, попыток %d", msg, e.Strategy, e.Attempts)
	}
	if e.Wrapped != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Wrapped)
	}
	return msg
}

// Unwrap возвращает обернутую ошибку.
func (e *PoolError) Unwrap() error {
	return e.Wrapped
}

// Is позволяет сравнивать PoolError с базовыми ошибками пакета.
func (e *PoolError) Is(target error) bool {
	switch target {
	case ErrInvalidRange:
		return e.Code == ErrorCodeInvalidRange
	case ErrPoolExhausted:
		return e.Code == ErrorCodeExhausted || e.Code == ErrorCodeDeadline
	}
	if t, ok := target.(*PoolError); ok {
		return e.Code == t.Code
	}
	return false
}

func newRangeError(r Range) error {
	return &PoolError{Code: ErrorCodeInvalidRange, Range: r}
}

func newExhaustedError(r Range, s Strategy, attempts int) error {
	return &PoolError{Code: ErrorCodeExhausted, Range: r, Strategy: s, Attempts: attempts}
}
