package manager_media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/arzzra/media_core/pkg/codec"
	"github.com/arzzra/media_core/pkg/media_sdp"
	"github.com/arzzra/media_core/pkg/port_pool"
	"github.com/google/uuid"
	"github.com/pion/sdp/v3"
)

// session - внутреннее состояние сессии
type session struct {
	info       SessionInfo
	negotiator *media_sdp.Negotiator
}

// MediaManager основная реализация медиа менеджера.
// Пул портов и реестр кодеков передаются снаружи и могут разделяться
// несколькими менеджерами.
type MediaManager struct {
	config        ManagerConfig
	pool          *port_pool.PortPool
	registry      *codec.Registry
	sessions      map[string]*session
	sessionsMutex sync.RWMutex
	eventHandler  MediaManagerEventHandler
	logger        *slog.Logger
	closed        bool
}

// Option настраивает MediaManager
type Option func(*MediaManager)

// WithLogger задает логгер менеджера
func WithLogger(logger *slog.Logger) Option {
	return func(mm *MediaManager) {
		if logger != nil {
			mm.logger = logger
		}
	}
}

// WithEventHandler задает обработчик событий
func WithEventHandler(handler MediaManagerEventHandler) Option {
	return func(mm *MediaManager) {
		mm.eventHandler = handler
	}
}

// NewMediaManager создает новый медиа менеджер
func NewMediaManager(pool *port_pool.PortPool, registry *codec.Registry, config ManagerConfig, opts ...Option) (*MediaManager, error) {
	if pool == nil || registry == nil {
		return nil, fmt.Errorf("пул портов и реестр кодеков обязательны")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("некорректная конфигурация менеджера: %w", err)
	}

	mm := &MediaManager{
		config:   config,
		pool:     pool,
		registry: registry,
		sessions: make(map[string]*session),
		logger:   slog.Default().With(slog.String("component", "media_manager")),
	}
	for _, opt := range opts {
		opt(mm)
	}
	return mm, nil
}

// CreateSession выделяет пару портов и строит offer для медиа строки.
// Пустой sessionID заменяется сгенерированным UUID.
func (mm *MediaManager) CreateSession(ctx context.Context, sessionID string, kind codec.MediaKind) (*SessionInfo, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	if err := mm.checkNew(sessionID); err != nil {
		return nil, err
	}

	s, err := mm.newSession(ctx, sessionID, kind)
	if err != nil {
		mm.notifyError(sessionID, err)
		return nil, err
	}

	offer, err := s.negotiator.Offer(ctx)
	if err != nil {
		mm.pool.ReleasePair(s.info.RTPPort)
		mm.notifyError(sessionID, err)
		return nil, fmt.Errorf("сессия %s: %w", sessionID, err)
	}
	s.info.Offer = offer
	s.info.State = SessionStateOffered

	return mm.store(s)
}

// AcceptOffer обрабатывает offer удаленной стороны: выделяет пару портов,
// согласует кодек и строит медиа описание ответа.
func (mm *MediaManager) AcceptOffer(ctx context.Context, sessionID string, remote *sdp.MediaDescription) (*SessionInfo, error) {
	if remote == nil {
		return nil, fmt.Errorf("медиа описание offer не может быть nil")
	}
	kind, err := codec.ParseMediaKind(remote.MediaName.Media)
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	if err := mm.checkNew(sessionID); err != nil {
		return nil, err
	}

	s, err := mm.newSession(ctx, sessionID, kind)
	if err != nil {
		mm.notifyError(sessionID, err)
		return nil, err
	}

	result, err := s.negotiator.Answer(ctx, remote)
	if err != nil {
		mm.pool.ReleasePair(s.info.RTPPort)
		mm.notifyError(sessionID, err)
		return nil, fmt.Errorf("сессия %s: %w", sessionID, err)
	}
	answer, err := s.negotiator.AnswerMedia()
	if err != nil {
		mm.pool.ReleasePair(s.info.RTPPort)
		return nil, fmt.Errorf("сессия %s: %w", sessionID, err)
	}
	s.info.Offer = answer
	s.info.Result = result
	s.info.State = SessionStateActive

	info, err := mm.store(s)
	if err != nil {
		return nil, err
	}
	if mm.eventHandler != nil {
		mm.eventHandler.OnSessionNegotiated(sessionID, *result)
	}
	return info, nil
}

// ApplyAnswer применяет answer удаленной стороны к сессии, созданной
// CreateSession. При неудаче сессия переходит в failed, порты остаются
// за ней до CloseSession.
func (mm *MediaManager) ApplyAnswer(ctx context.Context, sessionID string, remote *sdp.MediaDescription) (*SessionInfo, error) {
	mm.sessionsMutex.RLock()
	s, ok := mm.sessions[sessionID]
	mm.sessionsMutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	result, err := s.negotiator.Answer(ctx, remote)

	mm.sessionsMutex.Lock()
	switch {
	case errors.Is(err, media_sdp.ErrInvalidState):
		// Повторный answer не меняет состояние сессии
	case err != nil:
		s.info.State = SessionStateFailed
	default:
		s.info.Result = result
		s.info.State = SessionStateActive
	}
	info := s.info
	mm.sessionsMutex.Unlock()

	if err != nil {
		mm.logger.Warn("answer не применен",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		mm.notifyError(sessionID, err)
		return &info, fmt.Errorf("сессия %s: %w", sessionID, err)
	}

	mm.logger.Info("сессия согласована",
		slog.String("session_id", sessionID),
		slog.String("codec", result.Codec.String()),
		slog.Int("rtp_port", info.RTPPort))
	if mm.eventHandler != nil {
		mm.eventHandler.OnSessionNegotiated(sessionID, *result)
	}
	return &info, nil
}

// Rebind вызывается, когда открыть сокет на выделенном порту не удалось:
// пара освобождается, выделяется новая и строится новый offer.
func (mm *MediaManager) Rebind(ctx context.Context, sessionID string) (*SessionInfo, error) {
	mm.sessionsMutex.RLock()
	old, ok := mm.sessions[sessionID]
	var kind codec.MediaKind
	var oldPort int
	var createdAt time.Time
	if ok {
		kind, oldPort, createdAt = old.info.Kind, old.info.RTPPort, old.info.CreatedAt
	}
	mm.sessionsMutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	// Новая пара выделяется до освобождения старой, чтобы не получить ее же
	s, err := mm.newSession(ctx, sessionID, kind)
	if err != nil {
		mm.notifyError(sessionID, err)
		return nil, err
	}
	offer, err := s.negotiator.Offer(ctx)
	if err != nil {
		mm.pool.ReleasePair(s.info.RTPPort)
		return nil, fmt.Errorf("сессия %s: %w", sessionID, err)
	}
	s.info.Offer = offer
	s.info.State = SessionStateOffered
	s.info.CreatedAt = createdAt

	mm.sessionsMutex.Lock()
	if current, ok := mm.sessions[sessionID]; !ok || current != old {
		// Сессию закрыли или перевыделили параллельно
		mm.sessionsMutex.Unlock()
		mm.pool.ReleasePair(s.info.RTPPort)
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	mm.sessions[sessionID] = s
	info := s.info
	mm.sessionsMutex.Unlock()
	mm.pool.ReleasePair(oldPort)

	mm.logger.Info("порты сессии перевыделены",
		slog.String("session_id", sessionID),
		slog.Int("old_rtp_port", oldPort),
		slog.Int("rtp_port", info.RTPPort))
	return &info, nil
}

// GetSession получает информацию о сессии по ID
func (mm *MediaManager) GetSession(sessionID string) (*SessionInfo, error) {
	mm.sessionsMutex.RLock()
	defer mm.sessionsMutex.RUnlock()

	s, ok := mm.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	info := s.info
	return &info, nil
}

// ListSessions возвращает отсортированный список ID активных сессий
func (mm *MediaManager) ListSessions() []string {
	mm.sessionsMutex.RLock()
	defer mm.sessionsMutex.RUnlock()

	ids := make([]string, 0, len(mm.sessions))
	for id := range mm.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseSession закрывает сессию и освобождает ее порты
func (mm *MediaManager) CloseSession(sessionID string) error {
	s := mm.removeSession(sessionID)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	mm.pool.ReleasePair(s.info.RTPPort)

	mm.logger.Debug("сессия закрыта",
		slog.String("session_id", sessionID),
		slog.Int("rtp_port", s.info.RTPPort))
	if mm.eventHandler != nil {
		mm.eventHandler.OnSessionClosed(sessionID)
	}
	return nil
}

// Stats возвращает статистику менеджера и пула портов
func (mm *MediaManager) Stats() ManagerStats {
	mm.sessionsMutex.RLock()
	stats := ManagerStats{Sessions: len(mm.sessions)}
	for _, s := range mm.sessions {
		if s.info.State == SessionStateActive {
			stats.Active++
		}
	}
	mm.sessionsMutex.RUnlock()

	stats.Pool = mm.pool.Stats()
	return stats
}

// Shutdown закрывает все сессии. Новые сессии после этого не создаются.
func (mm *MediaManager) Shutdown() {
	mm.sessionsMutex.Lock()
	mm.closed = true
	sessions := mm.sessions
	mm.sessions = make(map[string]*session)
	mm.sessionsMutex.Unlock()

	for id, s := range sessions {
		mm.pool.ReleasePair(s.info.RTPPort)
		if mm.eventHandler != nil {
			mm.eventHandler.OnSessionClosed(id)
		}
	}
	mm.logger.Info("менеджер остановлен", slog.Int("closed_sessions", len(sessions)))
}

// newSession выделяет пару портов с дедлайном и создает согласователь
func (mm *MediaManager) newSession(ctx context.Context, sessionID string, kind codec.MediaKind) (*session, error) {
	if mm.config.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, mm.config.AcquireTimeout)
		defer cancel()
	}

	rtpPort, rtcpPort, err := mm.pool.AcquirePairContext(ctx, mm.config.Strategy)
	if err != nil {
		return nil, fmt.Errorf("сессия %s: выделение портов: %w", sessionID, err)
	}

	config := media_sdp.DefaultConfig(kind)
	config.Port = rtpPort
	config.Address = mm.config.LocalIP
	config.Direction = mm.config.Direction
	if kind == codec.MediaAudio {
		config.Ptime = mm.config.Ptime
	}

	negotiator, err := media_sdp.NewNegotiator(mm.registry, config,
		media_sdp.WithLogger(mm.logger.With(slog.String("session_id", sessionID))))
	if err != nil {
		mm.pool.ReleasePair(rtpPort)
		return nil, fmt.Errorf("сессия %s: %w", sessionID, err)
	}

	return &session{
		info: SessionInfo{
			SessionID: sessionID,
			Kind:      kind,
			RTPPort:   rtpPort,
			RTCPPort:  rtcpPort,
			CreatedAt: time.Now(),
		},
		negotiator: negotiator,
	}, nil
}

func (mm *MediaManager) checkNew(sessionID string) error {
	mm.sessionsMutex.RLock()
	defer mm.sessionsMutex.RUnlock()

	if mm.closed {
		return ErrManagerClosed
	}
	if _, exists := mm.sessions[sessionID]; exists {
		return fmt.Errorf("%w: %s", ErrSessionExists, sessionID)
	}
	return nil
}

// store регистрирует сессию. Между checkNew и store другой вызов мог
// занять тот же ID, тогда порты новой сессии возвращаются в пул.
func (mm *MediaManager) store(s *session) (*SessionInfo, error) {
	id := s.info.SessionID

	mm.sessionsMutex.Lock()
	if mm.closed {
		mm.sessionsMutex.Unlock()
		mm.pool.ReleasePair(s.info.RTPPort)
		return nil, ErrManagerClosed
	}
	if _, exists := mm.sessions[id]; exists {
		mm.sessionsMutex.Unlock()
		mm.pool.ReleasePair(s.info.RTPPort)
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	mm.sessions[id] = s
	info := s.info
	mm.sessionsMutex.Unlock()

	mm.logger.Info("сессия создана",
		slog.String("session_id", id),
		slog.String("kind", string(info.Kind)),
		slog.Int("rtp_port", info.RTPPort),
		slog.Int("rtcp_port", info.RTCPPort))
	if mm.eventHandler != nil {
		mm.eventHandler.OnSessionCreated(id)
	}
	return &info, nil
}

func (mm *MediaManager) removeSession(sessionID string) *session {
	mm.sessionsMutex.Lock()
	defer mm.sessionsMutex.Unlock()

	s, ok := mm.sessions[sessionID]
	if !ok {
		return nil
	}
	delete(mm.sessions, sessionID)
	s.info.State = SessionStateClosed
	return s
}

func (mm *MediaManager) notifyError(sessionID string, err error) {
	if mm.eventHandler != nil {
		mm.eventHandler.OnSessionError(sessionID, err)
	}
}
