package media_sdp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/arzzra/media_core/pkg/codec"
	"github.com/looplab/fsm"
	"github.com/pion/sdp/v3"
)

// DefaultPtime - время пакетизации аудио по умолчанию, мс
const DefaultPtime = 20

// Config содержит параметры локальной медиа строки
type Config struct {
	Kind      codec.MediaKind
	Port      int      // Локальный RTP порт
	Address   string   // Локальный IP для строки c= (пусто - не указывается)
	Ptime     int      // Время пакетизации аудио в мс, 0 - не объявляется
	Direction Direction
	Protos    []string // По умолчанию RTP/AVP
}

// DefaultConfig возвращает конфигурацию по умолчанию для типа медиа
func DefaultConfig(kind codec.MediaKind) Config {
	config := Config{
		Kind:      kind,
		Direction: DirectionSendRecv,
		Protos:    []string{"RTP", "AVP"},
	}
	if kind == codec.MediaAudio {
		config.Ptime = DefaultPtime
	}
	return config
}

// Validate проверяет корректность конфигурации
func (c Config) Validate() error {
	if c.Kind != codec.MediaAudio && c.Kind != codec.MediaVideo {
		return fmt.Errorf("неизвестный тип медиа: %q", c.Kind)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("некорректный порт: %d", c.Port)
	}
	if c.Ptime < 0 {
		return fmt.Errorf("некорректный ptime: %d", c.Ptime)
	}
	switch c.Direction {
	case "", DirectionSendRecv, DirectionSendOnly, DirectionRecvOnly, DirectionInactive:
	default:
		return fmt.Errorf("некорректное направление: %q", c.Direction)
	}
	return nil
}

// Result - итог согласования медиа строки
type Result struct {
	Codec         codec.Descriptor
	PayloadType   int         // Payload type на линии, может отличаться от Codec.PayloadType
	Handle        codec.Codec // Экземпляр кодека для этой медиа строки
	Fmtp          string      // Согласованные параметры fmtp без payload type
	Ptime         int         // Согласованный ptime в мс, 0 - не объявлен
	Attributes    []string    // Строки атрибутов без префикса "a="
	Direction     Direction   // Локальное направление
	RemotePort    int
	RemoteAddress string
}

// RTPMap - значение rtpmap согласованного кодека с payload type на линии
func (r Result) RTPMap() string {
	d := r.Codec
	d.PayloadType = r.PayloadType
	return d.MapString()
}

// Negotiator согласует одну медиа строку.
//
// Сторона, отправляющая offer, вызывает Offer, затем Answer с ответом
// удаленной стороны. Отвечающая сторона сразу вызывает Answer с offer
// удаленной стороны и строит ответ через AnswerMedia.
// Повторов внутри машины состояний нет: после failed нужен новый Negotiator.
type Negotiator struct {
	mutex    sync.Mutex
	config   Config
	registry *codec.Registry
	machine  *fsm.FSM
	logger   *slog.Logger

	offered []codec.Descriptor
	result  *Result
	err     error
}

// Option настраивает Negotiator
type Option func(*Negotiator)

// WithLogger задает логгер
func WithLogger(logger *slog.Logger) Option {
	return func(n *Negotiator) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNegotiator создает согласователь медиа строки поверх реестра кодеков
func NewNegotiator(registry *codec.Registry, config Config, opts ...Option) (*Negotiator, error) {
	if registry == nil {
		return nil, newSDPError(ErrorCodeInvalidConfig, string(config.Kind), nil, "реестр кодеков не задан")
	}
	if err := config.Validate(); err != nil {
		return nil, newSDPError(ErrorCodeInvalidConfig, string(config.Kind), err, "некорректная конфигурация")
	}
	if config.Direction == "" {
		config.Direction = DirectionSendRecv
	}
	if len(config.Protos) == 0 {
		config.Protos = []string{"RTP", "AVP"}
	}

	n := &Negotiator{
		config:   config,
		registry: registry,
		logger:   slog.Default().With(slog.String("component", "media_sdp")),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With(slog.String("kind", string(config.Kind)))
	n.machine = newNegotiationFSM(n.logger)
	return n, nil
}

// State возвращает текущее состояние согласования
func (n *Negotiator) State() string {
	return n.machine.Current()
}

// Err возвращает ошибку, переведшую согласование в failed
func (n *Negotiator) Err() error {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.err
}

// Result возвращает результат после confirmed
func (n *Negotiator) Result() (*Result, bool) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if n.result == nil {
		return nil, false
	}
	r := *n.result
	return &r, true
}

// Config возвращает конфигурацию медиа строки
func (n *Negotiator) Config() Config {
	return n.config
}

// Offer строит медиа описание offer: m-строка с локальным портом,
// rtpmap для каждого реализованного кодека в порядке предпочтения и
// атрибуты из шаблонов реестра.
func (n *Negotiator) Offer(ctx context.Context) (*sdp.MediaDescription, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if !n.machine.Can(eventOffer) {
		return nil, n.invalidState("offer")
	}

	supported := n.registry.Supported(n.config.Kind)
	if len(supported) == 0 {
		return nil, n.fail(ctx, newSDPError(ErrorCodeSDPGeneration, string(n.config.Kind), ErrNoCommonCodec,
			"в реестре нет реализованных кодеков"))
	}

	md := n.mediaDescription()
	for _, d := range supported {
		md.MediaName.Formats = append(md.MediaName.Formats, strconv.Itoa(d.PayloadType))
		md.Attributes = append(md.Attributes, sdp.NewAttribute("rtpmap", d.MapString()))
		md.Attributes = append(md.Attributes, toAttributes(n.registry.AttributesFor(d))...)
	}
	if n.config.Kind == codec.MediaAudio && n.config.Ptime > 0 {
		md.Attributes = append(md.Attributes, sdp.NewAttribute("ptime", strconv.Itoa(n.config.Ptime)))
	}
	md.Attributes = append(md.Attributes, n.config.Direction.Attribute())

	if err := n.machine.Event(ctx, eventOffer); err != nil {
		return nil, n.fail(ctx, err)
	}
	n.offered = supported

	n.logger.Debug("offer построен", slog.String("media", describe(md)))
	return md, nil
}

// candidate - кодек удаленной стороны, прошедший фильтр
type candidate struct {
	descriptor  codec.Descriptor
	payloadType int // Номер, под которым кодек предложен удаленной стороной
	handle      codec.Codec
}

// Answer обрабатывает медиа описание удаленной стороны: фильтрует кодеки
// по реестру в порядке удаленной стороны, согласует fmtp и ptime и
// фиксирует первый совместимый кодек. Кодек с несовместимыми атрибутами
// пропускается в пользу следующего.
func (n *Negotiator) Answer(ctx context.Context, md *sdp.MediaDescription) (*Result, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if !n.machine.Can(eventFilter) {
		return nil, n.invalidState("answer")
	}

	remote, err := ParseRemoteMedia(md)
	if err != nil {
		return nil, n.fail(ctx, err)
	}
	if remote.Kind != string(n.config.Kind) {
		return nil, n.fail(ctx, newSDPError(ErrorCodeSDPParsing, string(n.config.Kind), nil,
			"тип медиа удаленной стороны %q", remote.Kind))
	}
	if remote.Rejected() {
		return nil, n.fail(ctx, newSDPError(ErrorCodeIncompatibleCodec, string(n.config.Kind), ErrMediaRejected,
			"удаленная сторона указала порт 0"))
	}

	candidates := n.filter(remote)
	if err := n.machine.Event(ctx, eventFilter); err != nil {
		return nil, n.fail(ctx, err)
	}
	if len(candidates) == 0 {
		return nil, n.fail(ctx, newSDPError(ErrorCodeIncompatibleCodec, string(n.config.Kind), ErrNoCommonCodec,
			"среди предложенных форматов %v", remote.Formats))
	}

	result, err := n.resolve(remote, candidates)
	if err != nil {
		return nil, n.fail(ctx, err)
	}
	if err := n.machine.Event(ctx, eventResolve); err != nil {
		return nil, n.fail(ctx, err)
	}
	if err := n.machine.Event(ctx, eventConfirm); err != nil {
		return nil, n.fail(ctx, err)
	}
	n.result = result

	n.logger.Info("медиа строка согласована",
		slog.String("codec", result.Codec.String()),
		slog.Int("payload_type", result.PayloadType),
		slog.String("fmtp", result.Fmtp),
		slog.Int("ptime", result.Ptime),
		slog.Int("remote_port", result.RemotePort))

	r := *result
	return &r, nil
}

// AnswerMedia строит медиа описание ответа для согласованного кодека
func (n *Negotiator) AnswerMedia() (*sdp.MediaDescription, error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if n.result == nil {
		return nil, n.invalidState("answer media")
	}
	md := n.mediaDescription()
	md.MediaName.Formats = []string{strconv.Itoa(n.result.PayloadType)}
	md.Attributes = append(md.Attributes, sdp.NewAttribute("rtpmap", n.result.RTPMap()))
	md.Attributes = append(md.Attributes, toAttributes(n.result.Attributes)...)
	md.Attributes = append(md.Attributes, n.result.Direction.Attribute())
	return md, nil
}

// filter оставляет кодеки удаленной стороны, известные реестру и
// имеющие реализацию, в порядке удаленной стороны. Payload type без
// rtpmap сопоставляется по номеру, остальные по rtpmap.
func (n *Negotiator) filter(remote *RemoteMedia) []candidate {
	known := make(map[int]codec.Descriptor)
	for _, d := range n.registry.WithPrecedence(n.config.Kind, remote.Formats) {
		known[d.PayloadType] = d
	}

	result := make([]candidate, 0, len(remote.Formats))
	seen := make(map[codec.Descriptor]bool)
	for _, pt := range remote.Formats {
		d, ok := known[pt]
		if m, has := remote.RTPMaps[pt]; has {
			d, ok = n.matchRTPMap(pt, m, remote.Fmtp[pt])
			if !ok {
				n.logger.Debug("rtpmap не найден в реестре",
					slog.Int("payload_type", pt),
					slog.String("remote", fmt.Sprintf("%s/%d/%d", m.EncodingName, m.ClockRate, m.Channels)))
			}
		}
		if !ok || seen[d] {
			continue
		}
		seen[d] = true

		if n.offered != nil && !slices.Contains(n.offered, d) {
			n.logger.Debug("кодек не предлагался", slog.String("codec", d.String()))
			continue
		}
		handle := n.registry.Instantiate(d)
		if handle == nil {
			continue
		}
		if err := handle.SetPayloadType(pt); err != nil {
			n.logger.Debug("payload type не применим",
				slog.String("codec", d.String()),
				slog.String("error", err.Error()))
			continue
		}
		result = append(result, candidate{descriptor: d, payloadType: pt, handle: handle})
	}
	return result
}

// matchRTPMap ищет реализованный кодек с тем же именем, частотой и
// каналами. Кодеки с одинаковым rtpmap различаются по packetization-mode.
// Совпадение по номеру предпочтительнее, иначе берется первый в порядке
// реестра: удаленная сторона могла назначить кодеку свой dynamic номер.
func (n *Negotiator) matchRTPMap(pt int, m RTPMap, fmtp string) (codec.Descriptor, bool) {
	mode := packetizationMode(fmtp)
	match, found := codec.None, false
	for _, d := range n.registry.Supported(n.config.Kind) {
		if !m.Matches(d) || packetizationMode(localFmtp(n.registry.AttributesFor(d))) != mode {
			continue
		}
		if d.PayloadType == pt {
			return d, true
		}
		if !found {
			match, found = d, true
		}
	}
	return match, found
}

// packetizationMode - режим пакетизации из fmtp, по умолчанию 0
func packetizationMode(fmtp string) string {
	if mode, ok := codec.FmtpValue(fmtp, codec.AttrPacketizationMode); ok {
		return mode
	}
	return "0"
}

// resolve согласует атрибуты кандидатов по порядку и возвращает первый
// совместимый результат.
func (n *Negotiator) resolve(remote *RemoteMedia, candidates []candidate) (*Result, error) {
	var lastErr error
	for _, c := range candidates {
		result, err := n.resolveCandidate(remote, c)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, codec.ErrNegotiationFailed) {
			return nil, err
		}
		n.logger.Debug("атрибуты несовместимы, пробуем следующий кодек",
			slog.String("codec", c.descriptor.String()),
			slog.String("error", err.Error()))
		lastErr = err
	}
	return nil, newSDPError(ErrorCodeIncompatibleCodec, string(n.config.Kind),
		errors.Join(ErrNoCommonCodec, lastErr), "атрибуты ни одного кодека не согласованы")
}

func (n *Negotiator) resolveCandidate(remote *RemoteMedia, c candidate) (*Result, error) {
	d := c.descriptor
	templates := n.registry.AttributesFor(d)

	fmtp, err := c.handle.NegotiateAttribute(codec.AttrFmtp, localFmtp(templates), remote.Fmtp[c.payloadType])
	if err != nil {
		return nil, err
	}

	result := &Result{
		Codec:         d,
		PayloadType:   c.payloadType,
		Handle:        c.handle,
		Fmtp:          fmtp,
		Direction:     n.localDirection(remote.Direction),
		RemotePort:    remote.Port,
		RemoteAddress: remote.Address,
	}

	if n.config.Kind == codec.MediaAudio {
		local := ""
		if n.config.Ptime > 0 {
			local = strconv.Itoa(n.config.Ptime)
		}
		ptime, err := c.handle.NegotiateAttribute(codec.AttrPtime, local, remote.Ptime)
		if err != nil {
			return nil, err
		}
		if ptime != "" {
			result.Ptime, _ = strconv.Atoi(ptime)
			if err := c.handle.SetFrameDuration(time.Duration(result.Ptime) * time.Millisecond); err != nil {
				return nil, &codec.NegotiationError{Codec: d, Attribute: codec.AttrPtime, Local: local, Remote: remote.Ptime, Wrapped: err}
			}
		}
	}

	if mode, ok := codec.FmtpValue(fmtp, codec.AttrPacketizationMode); ok {
		m, err := strconv.Atoi(mode)
		if err == nil {
			err = c.handle.SetPacketization(m)
		}
		if err != nil {
			return nil, &codec.NegotiationError{Codec: d, Attribute: codec.AttrPacketizationMode, Local: mode, Wrapped: err}
		}
	}

	// Кодек, который не готов к работе с согласованным кадром, пропускается
	if err := codec.Prepare(c.handle); err != nil {
		return nil, &codec.NegotiationError{Codec: d, Attribute: codec.AttrPtime, Local: strconv.Itoa(result.Ptime),
			Remote: remote.Ptime, Reason: "кодек не инициализирован", Wrapped: err}
	}

	if fmtp != "" {
		result.Attributes = append(result.Attributes, fmt.Sprintf("fmtp:%d %s", c.payloadType, fmtp))
	}
	for _, line := range templates {
		if !strings.HasPrefix(line, codec.AttrFmtp+":") {
			result.Attributes = append(result.Attributes, rebindPayloadType(line, d.PayloadType, c.payloadType))
		}
	}
	if result.Ptime > 0 {
		result.Attributes = append(result.Attributes, fmt.Sprintf("ptime:%d", result.Ptime))
	}
	return result, nil
}

// localDirection - направление для нашей стороны по направлению удаленной
func (n *Negotiator) localDirection(remote Direction) Direction {
	if n.config.Direction == DirectionInactive || remote == DirectionInactive {
		return DirectionInactive
	}
	reversed := remote.Reverse()
	if n.config.Direction == DirectionSendRecv {
		return reversed
	}
	if reversed == DirectionSendRecv || reversed == n.config.Direction {
		return n.config.Direction
	}
	return DirectionInactive
}

func (n *Negotiator) mediaDescription() *sdp.MediaDescription {
	md := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   string(n.config.Kind),
			Port:    sdp.RangedPort{Value: n.config.Port},
			Protos:  append([]string(nil), n.config.Protos...),
			Formats: []string{},
		},
		Attributes: []sdp.Attribute{},
	}
	if n.config.Address != "" {
		md.ConnectionInformation = &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: addressType(n.config.Address),
			Address:     &sdp.Address{Address: n.config.Address},
		}
	}
	return md
}

// fail переводит машину в failed и запоминает ошибку
func (n *Negotiator) fail(ctx context.Context, err error) error {
	if n.machine.Can(eventFail) {
		if ferr := n.machine.Event(ctx, eventFail); ferr != nil {
			n.logger.Warn("не удалось перейти в failed", slog.String("error", ferr.Error()))
		}
	}
	n.err = err
	n.logger.Warn("согласование не удалось", slog.String("error", err.Error()))
	return err
}

func (n *Negotiator) invalidState(operation string) error {
	return newSDPError(ErrorCodeInvalidState, string(n.config.Kind), ErrInvalidState,
		"%s в состоянии %s", operation, n.machine.Current())
}

// rebindPayloadType заменяет payload type в строке вида "key:<pt> ..."
func rebindPayloadType(line string, from, to int) string {
	if from == to {
		return line
	}
	key, value, ok := strings.Cut(line, ":")
	if !ok {
		return line
	}
	pt, rest, _ := strings.Cut(value, " ")
	if pt != strconv.Itoa(from) {
		return line
	}
	return fmt.Sprintf("%s:%d %s", key, to, rest)
}

// localFmtp возвращает параметры fmtp из шаблонов без payload type
func localFmtp(templates []string) string {
	for _, line := range templates {
		if value, ok := strings.CutPrefix(line, codec.AttrFmtp+":"); ok {
			_, params, _ := splitPayloadValue(value)
			return params
		}
	}
	return ""
}

// toAttributes превращает строки "key:value" в атрибуты SDP
func toAttributes(lines []string) []sdp.Attribute {
	attrs := make([]sdp.Attribute, 0, len(lines))
	for _, line := range lines {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			attrs = append(attrs, sdp.NewPropertyAttribute(line))
			continue
		}
		attrs = append(attrs, sdp.NewAttribute(key, value))
	}
	return attrs
}

func addressType(address string) string {
	if strings.Contains(address, ":") {
		return "IP6"
	}
	return "IP4"
}
