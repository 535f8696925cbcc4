package port_pool

import (
	"net"
)

// Prober проверяет, свободен ли порт на уровне ОС.
// Реализация обязана освобождать все ресурсы, занятые проверкой.
type Prober interface {
	Probe(port int) bool
}

// ProberFunc адаптирует функцию к интерфейсу Prober
type ProberFunc func(port int) bool

// Probe реализует Prober
func (f ProberFunc) Probe(port int) bool {
	return f(port)
}

// udpProber пытается занять UDP порт одноразовым сокетом и сразу его закрывает.
// Результат справедлив только на момент проверки.
type udpProber struct {
	ip net.IP
}

// NewUDPProber создает Prober для адреса host ("" - все интерфейсы IPv4).
func NewUDPProber(host string) Prober {
	ip := net.IPv4zero
	if host != "" {
		if parsed := net.ParseIP(host); parsed != nil {
			ip = parsed
		}
	}
	return &udpProber{ip: ip}
}

// listenProbe - переносимая проверка через net.ListenUDP
func listenProbe(ip net.IP, port int) bool {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: port})
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
