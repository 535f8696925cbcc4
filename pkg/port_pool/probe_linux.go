//go:build linux

package port_pool

import (
	"golang.org/x/sys/unix"
)

// Probe на Linux работает через socket/bind/close напрямую, без регистрации
// дескриптора в netpoller. Для IPv6 адресов используется переносимая проверка.
func (p *udpProber) Probe(port int) bool {
	ip4 := p.ip.To4()
	if ip4 == nil {
		return listenProbe(p.ip, port)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.IPPROTO_UDP)
	if err != nil {
		return false
	}
	defer unix.Close(fd)

	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], ip4)
	return unix.Bind(fd, sa) == nil
}
