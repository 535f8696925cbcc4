package port_pool

import (
	"context"
)

// AcquirePair выделяет пару портов для одного медиа потока:
// RTP порт всегда четный, RTCP порт = RTP + 1.
// Оба порта фиксируются в журнале одной операцией.
func (p *PortPool) AcquirePair(strategy Strategy) (rtpPort, rtcpPort int, err error) {
	port, err := p.acquireBlock(strategy, 2)
	if err != nil {
		return 0, 0, err
	}
	return port, port + 1, nil
}

// AcquirePairContext - AcquirePair с внешним дедлайном
func (p *PortPool) AcquirePairContext(ctx context.Context, strategy Strategy) (rtpPort, rtcpPort int, err error) {
	port, err := p.withDeadline(ctx, strategy, func() (int, error) {
		return p.acquireBlock(strategy, 2)
	}, p.ReleasePair)
	if err != nil {
		return 0, 0, err
	}
	return port, port + 1, nil
}

// ReleasePair освобождает пару, выделенную AcquirePair
func (p *PortPool) ReleasePair(rtpPort int) {
	p.Release(rtpPort)
	p.Release(rtpPort + 1)
}
