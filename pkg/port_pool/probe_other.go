//go:build !linux

package port_pool

// Probe реализует Prober через net.ListenUDP
func (p *udpProber) Probe(port int) bool {
	return listenProbe(p.ip, port)
}
