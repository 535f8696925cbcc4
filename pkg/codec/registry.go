package codec

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// Config содержит настройки реестра кодеков
type Config struct {
	// H264ProfileLevelID подставляется в шаблоны fmtp для H.264
	H264ProfileLevelID string
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{H264ProfileLevelID: DefaultH264ProfileLevelID}
}

// Validate проверяет корректность конфигурации
func (c Config) Validate() error {
	if _, _, err := splitProfileLevelID(c.H264ProfileLevelID); err != nil {
		return fmt.Errorf("H264ProfileLevelID: %w", err)
	}
	return nil
}

// entry - данные реестра об одном дескрипторе
type entry struct {
	kind      MediaKind
	templates []string
	factory   Factory
}

// catalog - неизменяемый снимок реестра. Изменения создают новый снимок.
type catalog struct {
	audio     []Descriptor
	video     []Descriptor
	entries   map[Descriptor]entry
	qualified map[string]Descriptor
}

func (c *catalog) list(kind MediaKind) []Descriptor {
	switch kind {
	case MediaAudio:
		return c.audio
	case MediaVideo:
		return c.video
	default:
		return nil
	}
}

func (c *catalog) clone() *catalog {
	next := &catalog{
		audio:     append([]Descriptor(nil), c.audio...),
		video:     append([]Descriptor(nil), c.video...),
		entries:   make(map[Descriptor]entry, len(c.entries)+1),
		qualified: make(map[string]Descriptor, len(c.qualified)+1),
	}
	for d, e := range c.entries {
		next.entries[d] = e
	}
	for name, d := range c.qualified {
		next.qualified[name] = d
	}
	return next
}

// Registry - каталог известных кодеков с порядком предпочтения.
//
// Чтение (CodecsFor, ResolveByName, AttributesFor, ...) идет без блокировок
// по атомарно опубликованному снимку. Register - административная операция:
// копирует снимок и публикует новый под мьютексом записи.
type Registry struct {
	writeMutex sync.Mutex
	snapshot   atomic.Pointer[catalog]
	config     Config
	logger     *slog.Logger
}

// Option настраивает Registry
type Option func(*registryOptions)

type registryOptions struct {
	logger   *slog.Logger
	defaults bool
}

// WithLogger задает логгер реестра
func WithLogger(logger *slog.Logger) Option {
	return func(o *registryOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithoutDefaults создает пустой реестр без стандартных кодеков
func WithoutDefaults() Option {
	return func(o *registryOptions) {
		o.defaults = false
	}
}

// NewRegistry создает реестр, заполненный стандартными кодеками:
//
//	audio: OPUS, PCMU, PCMA, SPEEX
//	video: H264 (packetization-mode=1), H264 (packetization-mode=0), VP8
//
// SPEEX зарегистрирован без реализации: Instantiate для него возвращает nil.
func NewRegistry(config Config, opts ...Option) (*Registry, error) {
	if config.H264ProfileLevelID == "" {
		config.H264ProfileLevelID = DefaultH264ProfileLevelID
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	o := registryOptions{
		logger:   slog.Default().With(slog.String("component", "codec_registry")),
		defaults: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Registry{config: config, logger: o.logger}
	r.snapshot.Store(&catalog{
		entries:   make(map[Descriptor]entry),
		qualified: make(map[string]Descriptor),
	})

	if o.defaults {
		if err := r.registerDefaults(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) registerDefaults() error {
	defaults := []struct {
		kind    MediaKind
		d       Descriptor
		factory Factory
	}{
		{MediaAudio, OPUS, newOpus},
		{MediaAudio, PCMU, newPCMU},
		{MediaAudio, PCMA, newPCMA},
		{MediaAudio, SPEEX, nil},
		{MediaVideo, H264M1, h264Factory(1)},
		{MediaVideo, H264M0, h264Factory(0)},
		{MediaVideo, VP8, newVP8},
	}
	for _, def := range defaults {
		if err := r.Register(def.kind, def.d, defaultTemplates[def.d], def.factory); err != nil {
			return err
		}
	}
	if err := r.RegisterQualifiedName("H264M0", H264M0); err != nil {
		return err
	}
	return r.RegisterQualifiedName("H264M1", H264M1)
}

// Config возвращает конфигурацию реестра
func (r *Registry) Config() Config {
	return r.config
}

// Register добавляет дескриптор в конец списка предпочтений типа медиа.
// factory == nil - кодек известен, но не реализован на этом узле.
// Административная операция, не для вызова на каждую сессию.
func (r *Registry) Register(kind MediaKind, d Descriptor, templates []string, factory Factory) error {
	if kind != MediaAudio && kind != MediaVideo {
		return fmt.Errorf("неизвестный тип медиа: %q", kind)
	}
	if d.IsSentinel() {
		return fmt.Errorf("служебный дескриптор %s нельзя зарегистрировать", d)
	}
	if d.EncodingName == "" || d.ClockRate <= 0 {
		return fmt.Errorf("дескриптор %s: нужны имя кодирования и тактовая частота", d)
	}

	r.writeMutex.Lock()
	defer r.writeMutex.Unlock()

	current := r.snapshot.Load()
	for _, existing := range current.list(kind) {
		if existing.PayloadType == d.PayloadType {
			return fmt.Errorf("%w: %d (%s)", ErrDuplicatePayloadType, d.PayloadType, existing)
		}
	}

	next := current.clone()
	switch kind {
	case MediaAudio:
		next.audio = append(next.audio, d)
	case MediaVideo:
		next.video = append(next.video, d)
	}
	next.entries[d] = entry{
		kind:      kind,
		templates: append([]string(nil), templates...),
		factory:   factory,
	}
	r.snapshot.Store(next)

	r.logger.Debug("кодек зарегистрирован",
		slog.String("kind", string(kind)),
		slog.String("codec", d.String()),
		slog.Bool("implemented", factory != nil))
	return nil
}

// RegisterQualifiedName добавляет уточненное имя (например "H264M0"),
// по которому ResolveByName выбирает конкретный дескриптор.
func (r *Registry) RegisterQualifiedName(name string, d Descriptor) error {
	key := strings.ToUpper(strings.TrimSpace(name))
	if key == "" {
		return fmt.Errorf("пустое уточненное имя")
	}

	r.writeMutex.Lock()
	defer r.writeMutex.Unlock()

	current := r.snapshot.Load()
	if _, ok := current.entries[d]; !ok {
		return fmt.Errorf("дескриптор %s не зарегистрирован", d)
	}
	next := current.clone()
	next.qualified[key] = d
	r.snapshot.Store(next)
	return nil
}

// CodecsFor возвращает список кодеков типа медиа в порядке предпочтения
func (r *Registry) CodecsFor(kind MediaKind) []Descriptor {
	return append([]Descriptor(nil), r.snapshot.Load().list(kind)...)
}

// Supported возвращает кодеки типа медиа, для которых есть реализация
func (r *Registry) Supported(kind MediaKind) []Descriptor {
	snap := r.snapshot.Load()
	list := snap.list(kind)
	result := make([]Descriptor, 0, len(list))
	for _, d := range list {
		if snap.entries[d].factory != nil {
			result = append(result, d)
		}
	}
	return result
}

// KindOf возвращает тип медиа зарегистрированного дескриптора
func (r *Registry) KindOf(d Descriptor) (MediaKind, bool) {
	switch d {
	case AnyAudio:
		return MediaAudio, true
	case AnyVideo:
		return MediaVideo, true
	}
	e, ok := r.snapshot.Load().entries[d]
	return e.kind, ok
}

// ResolveByName ищет дескриптор по имени кодирования.
// Сначала проверяются уточненные имена, затем точное совпадение,
// затем совпадение без учета регистра (аудио, потом видео).
// Если ничего не найдено, возвращается None.
func (r *Registry) ResolveByName(name string) Descriptor {
	name = strings.TrimSpace(name)
	if name == "" {
		return None
	}
	snap := r.snapshot.Load()

	if d, ok := snap.qualified[strings.ToUpper(name)]; ok {
		return d
	}
	for _, list := range [][]Descriptor{snap.audio, snap.video} {
		for _, d := range list {
			if d.EncodingName == name {
				return d
			}
		}
	}
	for _, list := range [][]Descriptor{snap.audio, snap.video} {
		for _, d := range list {
			if strings.EqualFold(d.EncodingName, name) {
				return d
			}
		}
	}
	return None
}

// WithPrecedence возвращает кодеки типа медиа в порядке, заданном
// списком payload type удаленной стороны. Неизвестные payload type
// молча отбрасываются, повторы схлопываются.
func (r *Registry) WithPrecedence(kind MediaKind, precedence []int) []Descriptor {
	list := r.snapshot.Load().list(kind)
	result := make([]Descriptor, 0, len(precedence))
	seen := make(map[int]bool, len(precedence))

	for _, pt := range precedence {
		if seen[pt] {
			continue
		}
		seen[pt] = true
		for _, d := range list {
			if d.PayloadType == pt {
				result = append(result, d)
				break
			}
		}
	}
	return result
}

// AttributesFor возвращает строки атрибутов SDP (без префикса "a=")
// для дескриптора, с подставленными payload type и настроенным профилем.
func (r *Registry) AttributesFor(d Descriptor) []string {
	e, ok := r.snapshot.Load().entries[d]
	if !ok {
		return nil
	}
	result := make([]string, 0, len(e.templates))
	for _, tmpl := range e.templates {
		result = append(result, formatTemplate(tmpl, d, r.config))
	}
	return result
}

// Instantiate создает реализацию кодека. Если реализации нет, пишет
// предупреждение в лог и возвращает nil: кодек не поддерживается на этом
// узле и исключается из согласования.
func (r *Registry) Instantiate(d Descriptor) Codec {
	c, err := r.InstantiateE(d)
	if err != nil {
		r.logger.Warn("реализация кодека недоступна",
			slog.String("codec", d.String()),
			slog.String("error", err.Error()))
		return nil
	}
	return c
}

// InstantiateE - Instantiate с ошибкой ErrCodecUnsupported вместо nil
func (r *Registry) InstantiateE(d Descriptor) (Codec, error) {
	e, ok := r.snapshot.Load().entries[d]
	if !ok || e.factory == nil {
		return nil, fmt.Errorf("%w: %s", ErrCodecUnsupported, d)
	}
	return e.factory(d, r.AttributesFor(d)), nil
}

// NegotiateAttribute согласует значение атрибута для кодека.
// Используются правила реализации кодека, а при ее отсутствии - общие правила.
// Возвращает ошибку, совместимую с ErrNegotiationFailed, если совместимого
// значения нет.
func (r *Registry) NegotiateAttribute(d Descriptor, name, local, remote string) (string, error) {
	if d.IsSentinel() {
		return "", negotiationFailed(d, name, local, remote, "служебный дескриптор")
	}
	if e, ok := r.snapshot.Load().entries[d]; ok && e.factory != nil {
		return e.factory(d, r.AttributesFor(d)).NegotiateAttribute(name, local, remote)
	}
	return negotiateAttribute(d, name, local, remote)
}

// ParsePrecedence разбирает список форматов m-строки ("111 0 8") в payload type.
// Нечисловые форматы пропускаются.
func ParsePrecedence(formats []string) []int {
	result := make([]int, 0, len(formats))
	for _, f := range formats {
		if pt, err := strconv.Atoi(strings.TrimSpace(f)); err == nil && pt >= 0 {
			result = append(result, pt)
		}
	}
	return result
}
