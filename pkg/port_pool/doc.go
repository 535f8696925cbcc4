// Package port_pool реализует потокобезопасный пул UDP портов для медиа потоков.
//
// # Основные компоненты
//
//   - PortPool - журнал выделенных портов, стратегии выделения, пробный bind
//   - Prober - проверка доступности порта на уровне ОС
//   - Metrics - Prometheus метрики пула
//
// # Стратегии
//
// StrategyLinear перебирает порты от вращающегося курсора по возрастанию,
// переходя от ceiling к base. Один полный обход диапазона без результата
// возвращает ErrPoolExhausted.
//
// StrategyRandom выбирает кандидатов равномерно из [base, ceiling] с
// ограниченным числом попыток (по умолчанию max(16, 2*размер диапазона)).
//
// # Использование
//
//	pool, err := port_pool.New(port_pool.Config{
//	    Range: port_pool.Range{Base: 49152, Ceiling: 65535},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	port, err := pool.Acquire(port_pool.StrategyLinear)
//	if errors.Is(err, port_pool.ErrPoolExhausted) {
//	    // повторить позже или расширить диапазон
//	}
//	defer pool.Release(port)
//
// Пробный bind не защищает от гонки с другими процессами: если открыть
// сокет на выданном порту не удалось, порт нужно вернуть через Release и
// запросить новый.
package port_pool
