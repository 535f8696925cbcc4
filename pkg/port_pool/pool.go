package port_pool

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

// Allocation - запись журнала выделенных портов.
type Allocation struct {
	Port       int
	AcquiredAt time.Time
	Strategy   Strategy
}

// Stats - снимок состояния пула для диагностики.
type Stats struct {
	Range     Range
	Allocated int
	Cursor    int
}

// PortPool управляет выделением UDP портов из диапазона.
// Обеспечивает:
//   - Журнал выделенных портов (порт не выдается повторно до Release)
//   - Проверку доступности порта на уровне ОС
//   - Линейную и случайную стратегии выделения
//   - Потокобезопасность
//
// Пробный bind выполняется вне мьютекса. Перед фиксацией кандидата журнал
// проверяется повторно, и при проигранной гонке перебор продолжается.
//
// Выданный порт - резервирование "best effort": другой процесс может занять
// его между проверкой и реальным bind. Вызывающий код, не сумевший открыть
// сокет, должен вызвать Release и затем Acquire снова.
type PortPool struct {
	mutex  sync.Mutex
	config Config
	ledger map[int]Allocation
	cursor int

	prober  Prober
	logger  *slog.Logger
	metrics *Metrics
}

// Option настраивает PortPool
type Option func(*PortPool)

// WithProber подменяет проверку доступности порта на уровне ОС
func WithProber(prober Prober) Option {
	return func(p *PortPool) {
		if prober != nil {
			p.prober = prober
		}
	}
}

// WithLogger задает логгер пула
func WithLogger(logger *slog.Logger) Option {
	return func(p *PortPool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics задает метрики пула
func WithMetrics(metrics *Metrics) Option {
	return func(p *PortPool) {
		if metrics != nil {
			p.metrics = metrics
		}
	}
}

// New создает пул портов с заданной конфигурацией.
// Возвращает ErrInvalidRange при ceiling <= base.
func New(config Config, opts ...Option) (*PortPool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	pool := &PortPool{
		config: config,
		ledger: make(map[int]Allocation),
		cursor: config.Range.Base,
		logger: slog.Default().With(slog.String("component", "port_pool")),
	}
	for _, opt := range opts {
		opt(pool)
	}
	if pool.prober == nil {
		pool.prober = NewUDPProber(config.Host)
	}
	if pool.metrics == nil {
		pool.metrics = NewMetrics(nil, "")
	}

	return pool, nil
}

// Configure устанавливает новый диапазон выделения.
// Уже выделенные порты остаются в журнале и освобождаются обычным Release.
func (p *PortPool) Configure(base, ceiling int) error {
	r := Range{Base: base, Ceiling: ceiling}
	if err := r.Validate(); err != nil {
		return err
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.config.Range = r
	if !r.Contains(p.cursor) {
		p.cursor = r.Base
	}
	p.logger.Info("диапазон портов изменен", slog.String("range", r.String()))
	return nil
}

// Range возвращает текущий диапазон
func (p *PortPool) Range() Range {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.config.Range
}

// DefaultStrategy возвращает стратегию из конфигурации
func (p *PortPool) DefaultStrategy() Strategy {
	return p.config.DefaultStrategy
}

// Acquire выделяет свободный порт выбранной стратегией.
// Порт свободен, если его нет в журнале и пробный bind успешен.
// Возвращает ошибку, совместимую с ErrPoolExhausted, если ограниченный
// перебор не дал результата.
func (p *PortPool) Acquire(strategy Strategy) (int, error) {
	return p.acquireBlock(strategy, 1)
}

// AcquireDefault выделяет порт стратегией из конфигурации
func (p *PortPool) AcquireDefault() (int, error) {
	return p.Acquire(p.config.DefaultStrategy)
}

// AcquireContext - Acquire с внешним дедлайном.
// Истечение контекста возвращается как ошибка, совместимая с ErrPoolExhausted.
// Порт, выделенный уже после истечения контекста, возвращается в пул.
func (p *PortPool) AcquireContext(ctx context.Context, strategy Strategy) (int, error) {
	return p.withDeadline(ctx, strategy, func() (int, error) {
		return p.Acquire(strategy)
	}, p.Release)
}

// Release удаляет порт из журнала. Освобождение невыделенного порта - no-op.
func (p *PortPool) Release(port int) {
	p.mutex.Lock()
	_, owned := p.ledger[port]
	if owned {
		delete(p.ledger, port)
		p.metrics.allocated.Set(float64(len(p.ledger)))
	}
	p.mutex.Unlock()

	if owned {
		p.metrics.releaseTotal.Inc()
		p.logger.Debug("порт освобожден", slog.Int("port", port))
	}
}

// Count возвращает количество портов в журнале
func (p *PortPool) Count() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.ledger)
}

// IsAvailable выполняет живую проверку порта на уровне ОС.
// Журнал не учитывается.
func (p *PortPool) IsAvailable(port int) bool {
	if port < MinPort || port > MaxPort {
		return false
	}
	return p.prober.Probe(port)
}

// IsAllocated проверяет наличие порта в журнале
func (p *PortPool) IsAllocated(port int) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	_, owned := p.ledger[port]
	return owned
}

// Reset очищает журнал, не трогая реальные привязки сокетов.
// Только для административного восстановления.
func (p *PortPool) Reset() {
	p.mutex.Lock()
	dropped := len(p.ledger)
	p.ledger = make(map[int]Allocation)
	p.cursor = p.config.Range.Base
	p.metrics.allocated.Set(0)
	p.mutex.Unlock()

	p.metrics.resets.Inc()
	p.logger.Warn("журнал портов очищен", slog.Int("dropped", dropped))
}

// Allocations возвращает снимок журнала, отсортированный по номеру порта
func (p *PortPool) Allocations() []Allocation {
	p.mutex.Lock()
	result := make([]Allocation, 0, len(p.ledger))
	for _, a := range p.ledger {
		result = append(result, a)
	}
	p.mutex.Unlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Port < result[j].Port })
	return result
}

// Stats возвращает снимок состояния пула
func (p *PortPool) Stats() Stats {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return Stats{Range: p.config.Range, Allocated: len(p.ledger), Cursor: p.cursor}
}

// acquireBlock выделяет width смежных портов, первый из которых кратен width.
// Для width == 1 это обычный Acquire, для width == 2 - пара RTP/RTCP.
func (p *PortPool) acquireBlock(strategy Strategy, width int) (int, error) {
	var (
		port     int
		attempts int
		err      error
	)
	switch strategy {
	case StrategyRandom:
		port, attempts, err = p.acquireRandom(width)
	default:
		strategy = StrategyLinear
		port, attempts, err = p.acquireLinear(width)
	}
	p.metrics.observeAcquire(strategy, err)

	if err != nil {
		r := p.Range()
		p.logger.Warn("не удалось выделить порт",
			slog.String("range", r.String()),
			slog.String("strategy", strategy.String()),
			slog.Int("attempts", attempts))
		return 0, newExhaustedError(r, strategy, attempts)
	}

	p.logger.Debug("порт выделен",
		slog.Int("port", port),
		slog.Int("width", width),
		slog.String("strategy", strategy.String()))
	return port, nil
}

// acquireLinear перебирает кандидатов от курсора по возрастанию с переходом
// через ceiling. Один полный обход диапазона - граница перебора.
func (p *PortPool) acquireLinear(width int) (int, int, error) {
	attempts := 0
	for {
		p.mutex.Lock()
		first, slots := blockSlots(p.config.Range, width)
		candidate := -1
		for attempts < slots {
			c := alignUp(p.cursor, width)
			if c < first || c+width-1 > p.config.Range.Ceiling {
				c = first
			}
			p.cursor = c + width
			if p.cursor > p.config.Range.Ceiling {
				p.cursor = p.config.Range.Base
			}
			attempts++
			if p.blockFreeLocked(c, width) {
				candidate = c
				break
			}
		}
		p.mutex.Unlock()

		if candidate < 0 {
			return 0, attempts, ErrPoolExhausted
		}
		if p.probeBlock(candidate, width) && p.commit(candidate, width, StrategyLinear) {
			return candidate, attempts, nil
		}
	}
}

// acquireRandom выбирает кандидатов равномерно из диапазона с ограниченным
// числом попыток.
func (p *PortPool) acquireRandom(width int) (int, int, error) {
	p.mutex.Lock()
	budget := p.config.randomBudget()
	p.mutex.Unlock()

	attempts := 0
	for attempts < budget {
		p.mutex.Lock()
		first, slots := blockSlots(p.config.Range, width)
		if slots == 0 || len(p.ledger) >= p.config.Range.Size() {
			p.mutex.Unlock()
			break
		}
		attempts++
		candidate := first + rand.IntN(slots)*width
		free := p.blockFreeLocked(candidate, width)
		p.mutex.Unlock()

		if !free {
			continue
		}
		if p.probeBlock(candidate, width) && p.commit(candidate, width, StrategyRandom) {
			return candidate, attempts, nil
		}
	}
	return 0, attempts, ErrPoolExhausted
}

// blockFreeLocked проверяет, что ни один порт блока не занят в журнале.
// Вызывается под мьютексом.
func (p *PortPool) blockFreeLocked(start, width int) bool {
	for port := start; port < start+width; port++ {
		if _, owned := p.ledger[port]; owned {
			return false
		}
	}
	return true
}

// probeBlock проверяет все порты блока на уровне ОС (вне мьютекса)
func (p *PortPool) probeBlock(start, width int) bool {
	for port := start; port < start+width; port++ {
		if !p.prober.Probe(port) {
			p.metrics.probeFailures.Inc()
			return false
		}
	}
	return true
}

// commit повторно проверяет журнал и фиксирует блок.
// false - кандидат занят конкурентным Acquire или выпал из нового диапазона.
func (p *PortPool) commit(start, width int, strategy Strategy) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	r := p.config.Range
	if !r.Contains(start) || !r.Contains(start+width-1) || !p.blockFreeLocked(start, width) {
		p.metrics.commitConflicts.Inc()
		return false
	}

	now := time.Now()
	for port := start; port < start+width; port++ {
		p.ledger[port] = Allocation{Port: port, AcquiredAt: now, Strategy: strategy}
	}
	p.metrics.allocated.Set(float64(len(p.ledger)))
	return true
}

// withDeadline выполняет выделение с учетом контекста вызывающего кода.
func (p *PortPool) withDeadline(ctx context.Context, strategy Strategy, acquire func() (int, error), release func(int)) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, &PoolError{Code: ErrorCodeDeadline, Range: p.Range(), Strategy: strategy, Wrapped: err}
	}

	type result struct {
		port int
		err  error
	}
	done := make(chan result, 1)
	go func() {
		port, err := acquire()
		done <- result{port: port, err: err}
	}()

	select {
	case res := <-done:
		return res.port, res.err
	case <-ctx.Done():
		go func() {
			if res := <-done; res.err == nil {
				release(res.port)
			}
		}()
		return 0, &PoolError{Code: ErrorCodeDeadline, Range: p.Range(), Strategy: strategy, Wrapped: ctx.Err()}
	}
}

// blockSlots возвращает первый выровненный порт и число блоков в диапазоне
func blockSlots(r Range, width int) (int, int) {
	first := alignUp(r.Base, width)
	if first+width-1 > r.Ceiling {
		return first, 0
	}
	return first, (r.Ceiling-width+1-first)/width + 1
}

func alignUp(port, width int) int {
	if width <= 1 {
		return port
	}
	if rem := port % width; rem != 0 {
		return port + width - rem
	}
	return port
}
