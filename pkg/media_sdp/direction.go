package media_sdp

import "github.com/pion/sdp/v3"

// Direction - направление медиа потока
type Direction string

const (
	DirectionSendRecv Direction = "sendrecv"
	DirectionSendOnly Direction = "sendonly"
	DirectionRecvOnly Direction = "recvonly"
	DirectionInactive Direction = "inactive"
)

// Reverse возвращает направление с точки зрения другой стороны:
// если отправитель sendonly, мы recvonly, и наоборот.
func (d Direction) Reverse() Direction {
	switch d {
	case DirectionSendOnly:
		return DirectionRecvOnly
	case DirectionRecvOnly:
		return DirectionSendOnly
	default:
		return d
	}
}

// Attribute возвращает атрибут-свойство направления
func (d Direction) Attribute() sdp.Attribute {
	if d == "" {
		d = DirectionSendRecv
	}
	return sdp.NewPropertyAttribute(string(d))
}

// directionFromAttributes извлекает направление, по умолчанию sendrecv
func directionFromAttributes(attributes []sdp.Attribute) Direction {
	for _, attr := range attributes {
		switch Direction(attr.Key) {
		case DirectionSendRecv, DirectionSendOnly, DirectionRecvOnly, DirectionInactive:
			return Direction(attr.Key)
		}
	}
	return DirectionSendRecv
}
