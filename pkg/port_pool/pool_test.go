package port_pool

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProber имитирует порты, занятые сторонними процессами
type fakeProber struct {
	mu    sync.Mutex
	bound map[int]bool
	calls int
}

func newFakeProber(bound ...int) *fakeProber {
	f := &fakeProber{bound: make(map[int]bool)}
	for _, port := range bound {
		f.bound[port] = true
	}
	return f
}

func (f *fakeProber) Probe(port int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return !f.bound[port]
}

func (f *fakeProber) bind(port int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bound[port] = true
}

func newTestPool(t *testing.T, base, ceiling int, prober Prober) *PortPool {
	t.Helper()
	pool, err := New(Config{Range: Range{Base: base, Ceiling: ceiling}}, WithProber(prober))
	require.NoError(t, err)
	return pool
}

func TestNewInvalidRange(t *testing.T) {
	tests := []struct {
		name string
		r    Range
	}{
		{"ceiling равен base", Range{Base: 10000, Ceiling: 10000}},
		{"ceiling меньше base", Range{Base: 20000, Ceiling: 10000}},
		{"нулевой base", Range{Base: 0, Ceiling: 100}},
		{"ceiling больше 65535", Range{Base: 60000, Ceiling: 70000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{Range: tt.r})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRange))
			assert.False(t, errors.Is(err, ErrPoolExhausted))
		})
	}
}

func TestConfigure(t *testing.T) {
	pool := newTestPool(t, 10000, 10010, newFakeProber())

	err := pool.Configure(20000, 19999)
	assert.ErrorIs(t, err, ErrInvalidRange)
	assert.Equal(t, Range{Base: 10000, Ceiling: 10010}, pool.Range())

	require.NoError(t, pool.Configure(20000, 20010))
	port, err := pool.Acquire(StrategyLinear)
	require.NoError(t, err)
	assert.Equal(t, 20000, port)
}

func TestLinearAcquire(t *testing.T) {
	prober := newFakeProber()
	pool := newTestPool(t, 49152, 65535, prober)

	for _, expected := range []int{49152, 49153, 49154, 49155} {
		port, err := pool.Acquire(StrategyLinear)
		require.NoError(t, err)
		assert.Equal(t, expected, port)
	}

	// Порт занят сторонним процессом - пропускается без ошибки
	prober.bind(49156)
	port, err := pool.Acquire(StrategyLinear)
	require.NoError(t, err)
	assert.Equal(t, 49157, port)
	assert.False(t, pool.IsAllocated(49156))
	assert.Equal(t, 5, pool.Count())
}

func TestLinearWrapAround(t *testing.T) {
	pool := newTestPool(t, 10000, 10003, newFakeProber())

	ports := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		port, err := pool.Acquire(StrategyLinear)
		require.NoError(t, err)
		ports = append(ports, port)
	}
	assert.Equal(t, []int{10000, 10001, 10002, 10003}, ports)

	// Курсор перешел через ceiling, освобожденный порт находится снова
	pool.Release(10001)
	port, err := pool.Acquire(StrategyLinear)
	require.NoError(t, err)
	assert.Equal(t, 10001, port)
}

func TestLinearExhaustion(t *testing.T) {
	prober := newFakeProber(10002)
	pool := newTestPool(t, 10000, 10003, prober)

	for i := 0; i < 3; i++ {
		_, err := pool.Acquire(StrategyLinear)
		require.NoError(t, err)
	}

	_, err := pool.Acquire(StrategyLinear)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPoolExhausted))

	var poolErr *PoolError
	require.True(t, errors.As(err, &poolErr))
	assert.Equal(t, ErrorCodeExhausted, poolErr.Code)
	assert.Equal(t, StrategyLinear, poolErr.Strategy)
	assert.LessOrEqual(t, poolErr.Attempts, 4)
}

func TestCountAndRelease(t *testing.T) {
	pool := newTestPool(t, 30000, 30100, newFakeProber())

	acquired := make([]int, 0, 10)
	for i := 0; i < 10; i++ {
		port, err := pool.Acquire(StrategyLinear)
		require.NoError(t, err)
		acquired = append(acquired, port)
	}
	assert.Equal(t, 10, pool.Count())

	pool.Release(acquired[3])
	assert.Equal(t, 9, pool.Count())
	assert.False(t, pool.IsAllocated(acquired[3]))

	// Повторное освобождение и освобождение чужого порта - no-op
	pool.Release(acquired[3])
	pool.Release(12345)
	assert.Equal(t, 9, pool.Count())

	// Освобожденный порт снова доступен для выделения
	require.NoError(t, pool.Configure(acquired[3], acquired[3]+1))
	pool.Release(acquired[4])
	port, err := pool.Acquire(StrategyLinear)
	require.NoError(t, err)
	assert.Equal(t, acquired[3], port)
}

func TestReset(t *testing.T) {
	pool := newTestPool(t, 10000, 10004, newFakeProber())

	for i := 0; i < 5; i++ {
		_, err := pool.Acquire(StrategyLinear)
		require.NoError(t, err)
	}
	_, err := pool.Acquire(StrategyLinear)
	require.ErrorIs(t, err, ErrPoolExhausted)

	pool.Reset()
	assert.Equal(t, 0, pool.Count())
	assert.Empty(t, pool.Allocations())

	for i := 0; i < 5; i++ {
		_, err := pool.Acquire(StrategyLinear)
		require.NoError(t, err)
	}
	assert.Equal(t, 5, pool.Count())
}

func TestRandomAcquire(t *testing.T) {
	t.Run("distinct ports within range", func(t *testing.T) {
		pool := newTestPool(t, 40000, 40063, newFakeProber())

		seen := make(map[int]bool)
		for i := 0; i < 32; i++ {
			port, err := pool.Acquire(StrategyRandom)
			require.NoError(t, err)
			assert.False(t, seen[port], "порт %d выдан повторно", port)
			assert.True(t, port >= 40000 && port <= 40063)
			seen[port] = true
		}
		assert.Equal(t, 32, pool.Count())
	})

	t.Run("exhaustion", func(t *testing.T) {
		prober := newFakeProber(40000, 40001, 40002, 40003)
		pool := newTestPool(t, 40000, 40003, prober)

		_, err := pool.Acquire(StrategyRandom)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrPoolExhausted)

		var poolErr *PoolError
		require.ErrorAs(t, err, &poolErr)
		assert.Equal(t, StrategyRandom, poolErr.Strategy)
		assert.Equal(t, 16, poolErr.Attempts)
	})

	t.Run("full ledger fails fast", func(t *testing.T) {
		pool := newTestPool(t, 40000, 40001, newFakeProber())
		_, err := pool.Acquire(StrategyLinear)
		require.NoError(t, err)
		_, err = pool.Acquire(StrategyLinear)
		require.NoError(t, err)

		_, err = pool.Acquire(StrategyRandom)
		assert.ErrorIs(t, err, ErrPoolExhausted)
	})
}

func TestAcquirePair(t *testing.T) {
	pool, err := New(Config{
		Range:           Range{Base: 10001, Ceiling: 10009},
		MaxRandomProbes: 256,
	}, WithProber(newFakeProber(10005)))
	require.NoError(t, err)

	rtpPort, rtcpPort, err := pool.AcquirePair(StrategyLinear)
	require.NoError(t, err)
	assert.Equal(t, 10002, rtpPort)
	assert.Equal(t, 10003, rtcpPort)

	// 10004/10005 пропускается: RTCP порт занят сторонним процессом
	rtpPort, rtcpPort, err = pool.AcquirePair(StrategyLinear)
	require.NoError(t, err)
	assert.Equal(t, 10006, rtpPort)
	assert.Equal(t, 10007, rtcpPort)
	assert.Equal(t, 4, pool.Count())

	rtpPort, _, err = pool.AcquirePair(StrategyRandom)
	require.NoError(t, err)
	assert.Equal(t, 10008, rtpPort)

	_, _, err = pool.AcquirePair(StrategyLinear)
	assert.ErrorIs(t, err, ErrPoolExhausted)

	pool.ReleasePair(10002)
	assert.Equal(t, 4, pool.Count())
	assert.False(t, pool.IsAllocated(10003))
}

func TestAcquireContext(t *testing.T) {
	pool := newTestPool(t, 10000, 10010, newFakeProber())

	port, err := pool.AcquireContext(context.Background(), StrategyLinear)
	require.NoError(t, err)
	assert.Equal(t, 10000, port)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = pool.AcquireContext(ctx, StrategyLinear)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, pool.Count())

	_, _, err = pool.AcquirePairContext(ctx, StrategyRandom)
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestIsAvailableRealSocket(t *testing.T) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	require.NoError(t, err)
	defer conn.Close()

	busy := conn.LocalAddr().(*net.UDPAddr).Port

	pool, err := New(DefaultConfig())
	require.NoError(t, err)

	assert.False(t, pool.IsAvailable(busy))
	assert.False(t, pool.IsAvailable(0))
	assert.False(t, pool.IsAvailable(70000))
	// Живая проверка не меняет журнал
	assert.Equal(t, 0, pool.Count())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")
	pool, err := New(Config{Range: Range{Base: 10000, Ceiling: 10001}},
		WithProber(newFakeProber()), WithMetrics(metrics))
	require.NoError(t, err)

	_, err = pool.Acquire(StrategyLinear)
	require.NoError(t, err)
	port, err := pool.Acquire(StrategyLinear)
	require.NoError(t, err)
	_, err = pool.Acquire(StrategyLinear)
	require.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.allocated))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.acquireTotal.WithLabelValues("linear", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.acquireTotal.WithLabelValues("linear", "exhausted")))

	pool.Release(port)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.allocated))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.releaseTotal))

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Greater(t, count, 0)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("Random")
	require.NoError(t, err)
	assert.Equal(t, StrategyRandom, s)

	s, err = ParseStrategy("sequential")
	require.NoError(t, err)
	assert.Equal(t, StrategyLinear, s)

	_, err = ParseStrategy("round-robin")
	assert.Error(t, err)
}
