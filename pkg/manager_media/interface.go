// Package manager_media управляет медиа сессиями: выделяет пары RTP/RTCP
// портов из пула, строит offer по реестру кодеков, применяет answer и
// освобождает порты при завершении.
package manager_media

import (
	"errors"
	"fmt"
	"time"

	"github.com/arzzra/media_core/pkg/codec"
	"github.com/arzzra/media_core/pkg/media_sdp"
	"github.com/arzzra/media_core/pkg/port_pool"
	"github.com/pion/sdp/v3"
)

var (
	ErrSessionNotFound = errors.New("сессия не найдена")
	ErrSessionExists   = errors.New("сессия уже существует")
	ErrManagerClosed   = errors.New("менеджер остановлен")
)

// SessionState состояние медиа сессии
type SessionState int

const (
	SessionStateOffered SessionState = iota // Offer построен, ждем answer
	SessionStateActive                      // Кодек согласован
	SessionStateFailed                      // Согласование не удалось
	SessionStateClosed                      // Закрыта, порты освобождены
)

func (s SessionState) String() string {
	switch s {
	case SessionStateOffered:
		return "offered"
	case SessionStateActive:
		return "active"
	case SessionStateFailed:
		return "failed"
	case SessionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionInfo информация о медиа сессии
type SessionInfo struct {
	SessionID string
	Kind      codec.MediaKind
	RTPPort   int
	RTCPPort  int
	State     SessionState
	Offer     *sdp.MediaDescription // Локальное медиа описание (offer или answer)
	Result    *media_sdp.Result     // Результат согласования, nil до answer
	CreatedAt time.Time
}

// ManagerStats статистика менеджера
type ManagerStats struct {
	Sessions int
	Active   int
	Pool     port_pool.Stats
}

// ManagerConfig конфигурация медиа менеджера
type ManagerConfig struct {
	LocalIP        string             // IP для строки c=, пусто - не указывается
	Strategy       port_pool.Strategy // Стратегия выделения портов
	AcquireTimeout time.Duration      // Дедлайн выделения пары портов, 0 - без дедлайна
	Ptime          int                // Время пакетизации аудио (мс)
	Direction      media_sdp.Direction
}

// DefaultManagerConfig возвращает конфигурацию по умолчанию
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Strategy:       port_pool.StrategyLinear,
		AcquireTimeout: 2 * time.Second,
		Ptime:          media_sdp.DefaultPtime,
		Direction:      media_sdp.DirectionSendRecv,
	}
}

// Validate проверяет корректность конфигурации
func (c ManagerConfig) Validate() error {
	if c.AcquireTimeout < 0 {
		return fmt.Errorf("AcquireTimeout не может быть отрицательным: %s", c.AcquireTimeout)
	}
	if c.Ptime < 0 {
		return fmt.Errorf("некорректный Ptime: %d", c.Ptime)
	}
	if c.Strategy != port_pool.StrategyLinear && c.Strategy != port_pool.StrategyRandom {
		return fmt.Errorf("неизвестная стратегия: %d", c.Strategy)
	}
	return nil
}

// MediaManagerEventHandler интерфейс для обработки событий менеджера
type MediaManagerEventHandler interface {
	OnSessionCreated(sessionID string)
	OnSessionNegotiated(sessionID string, result media_sdp.Result)
	OnSessionClosed(sessionID string)
	OnSessionError(sessionID string, err error)
}
