package media_sdp

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCommonCodec - ни один кодек удаленной стороны не прошел согласование
	ErrNoCommonCodec = errors.New("нет общего кодека")
	// ErrMediaRejected - удаленная сторона отклонила медиа строку (порт 0)
	ErrMediaRejected = errors.New("медиа строка отклонена")
	// ErrInvalidState - операция недопустима в текущем состоянии согласования
	ErrInvalidState = errors.New("недопустимое состояние согласования")
)

// SDPErrorCode определяет коды ошибок согласования медиа строки
type SDPErrorCode int

const (
	ErrorCodeInvalidConfig SDPErrorCode = iota + 3000
	ErrorCodeSDPGeneration
	ErrorCodeSDPParsing
	ErrorCodeIncompatibleCodec
	ErrorCodeInvalidState
)

// SDPError представляет ошибку согласования медиа строки
type SDPError struct {
	Code    SDPErrorCode
	Kind    string
	Message string
	Wrapped error
}

func newSDPError(code SDPErrorCode, kind string, err error, format string, args ...interface{}) *SDPError {
	return &SDPError{
		Code:    code,
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Wrapped: err,
	}
}

// Error реализует интерфейс error
func (e *SDPError) Error() string {
	msg := fmt.Sprintf("SDP [%d]: %s", e.Code, e.Message)
	if e.Kind != "" {
		msg += fmt.Sprintf(" (m=%s)", e.Kind)
	}
	if e.Wrapped != nil {
		msg += fmt.Sprintf(": %v", e.Wrapped)
	}
	return msg
}

// Unwrap возвращает обернутую ошибку для поддержки errors.Is/As
func (e *SDPError) Unwrap() error {
	return e.Wrapped
}

// IsSDPError проверяет, является ли ошибка SDPError с указанным кодом
func IsSDPError(err error, code SDPErrorCode) bool {
	var sdpErr *SDPError
	if !errors.As(err, &sdpErr) {
		return false
	}
	return sdpErr.Code == code
}
