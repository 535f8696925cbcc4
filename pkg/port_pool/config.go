package port_pool

import (
	"fmt"
	"strings"
)

const (
	// MinPort и MaxPort - допустимые границы UDP портов
	MinPort = 1
	MaxPort = 65535

	// Диапазон динамических портов по умолчанию (RFC 6335)
	DefaultBase    = 49152
	DefaultCeiling = 65535
)

// Strategy определяет стратегию выделения портов.
// Поддерживаются две стратегии:
//   - StrategyLinear - вращающийся курсор, предсказуемый порядок
//   - StrategyRandom - равномерная случайная выборка из диапазона
type Strategy int

const (
	// StrategyLinear - последовательный перебор от курсора с переходом через ceiling
	StrategyLinear Strategy = iota
	// StrategyRandom - случайный выбор кандидата с ограниченным числом попыток
	StrategyRandom
)

// String возвращает строковое представление стратегии
func (s Strategy) String() string {
	switch s {
	case StrategyLinear:
		return "linear"
	case StrategyRandom:
		return "random"
	default:
		return "unknown"
	}
}

// ParseStrategy разбирает имя стратегии из конфигурации.
// "sequential" принимается как синоним "linear".
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "linear", "sequential":
		return StrategyLinear, nil
	case "random":
		return StrategyRandom, nil
	default:
		return StrategyLinear, fmt.Errorf("неизвестная стратегия выделения портов: %q", name)
	}
}

// Range - включающий диапазон портов [Base, Ceiling].
type Range struct {
	Base    int
	Ceiling int
}

// Size возвращает количество портов в диапазоне
func (r Range) Size() int {
	if r.Ceiling < r.Base {
		return 0
	}
	return r.Ceiling - r.Base + 1
}

// Contains проверяет, попадает ли порт в диапазон
func (r Range) Contains(port int) bool {
	return port >= r.Base && port <= r.Ceiling
}

// Validate проверяет инвариант ceiling > base и границы UDP портов.
func (r Range) Validate() error {
	if r.Ceiling <= r.Base || r.Base < MinPort || r.Ceiling > MaxPort {
		return newRangeError(r)
	}
	return nil
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.Base, r.Ceiling)
}

// Config содержит конфигурацию пула портов.
type Config struct {
	Range           Range    // Диапазон выделяемых портов
	DefaultStrategy Strategy // Стратегия для Acquire без явного указания (AcquireDefault)
	Host            string   // Адрес для пробного bind ("" - все интерфейсы)

	// MaxRandomProbes ограничивает число случайных попыток.
	// 0 - значение по умолчанию: max(16, 2*размер диапазона).
	MaxRandomProbes int
}

// DefaultConfig возвращает конфигурацию по умолчанию:
// динамический диапазон 49152-65535, линейная стратегия.
func DefaultConfig() Config {
	return Config{
		Range:           Range{Base: DefaultBase, Ceiling: DefaultCeiling},
		DefaultStrategy: StrategyLinear,
	}
}

// Validate проверяет корректность конфигурации.
func (c Config) Validate() error {
	if err := c.Range.Validate(); err != nil {
		return err
	}
	if c.DefaultStrategy != StrategyLinear && c.DefaultStrategy != StrategyRandom {
		return fmt.Errorf("неизвестная стратегия: %d", int(c.DefaultStrategy))
	}
	if c.MaxRandomProbes < 0 {
		return fmt.Errorf("MaxRandomProbes не может быть отрицательным")
	}
	return nil
}

func (c Config) randomBudget() int {
	if c.MaxRandomProbes > 0 {
		return c.MaxRandomProbes
	}
	return max(16, 2*c.Range.Size())
}
