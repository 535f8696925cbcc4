package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrCodecUnsupported - для дескриптора не зарегистрирована реализация.
	// Не фатальна: кодек исключается из дальнейшего согласования.
	ErrCodecUnsupported = errors.New("кодек не поддерживается")
	// ErrNegotiationFailed - совместимое значение атрибута не существует
	ErrNegotiationFailed = errors.New("согласование атрибута не удалось")
	// ErrDuplicatePayloadType - payload type уже занят в списке типа медиа
	ErrDuplicatePayloadType = errors.New("payload type уже зарегистрирован")
)

// NegotiationError описывает несовместимые значения атрибута.
type NegotiationError struct {
	Codec     Descriptor
	Attribute string
	Local     string
	Remote    string
	Reason    string
	Wrapped   error
}

// Error реализует интерфейс error.
func (e *NegotiationError) Error() string {
	msg := fmt.Sprintf("[codec:%s] атрибут %s: local=%q remote=%q", e.Codec, e.Attribute, e.Local, e.Remote)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Wrapped != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Wrapped)
	}
	return msg
}

// Unwrap возвращает обернутую ошибку.
func (e *NegotiationError) Unwrap() error {
	return e.Wrapped
}

// Is сопоставляет ошибку с ErrNegotiationFailed.
func (e *NegotiationError) Is(target error) bool {
	return target == ErrNegotiationFailed
}

func negotiationFailed(d Descriptor, attribute, local, remote, reason string) error {
	return &NegotiationError{Codec: d, Attribute: attribute, Local: local, Remote: remote, Reason: reason}
}
