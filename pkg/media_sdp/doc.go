// Package media_sdp согласует одну медиа строку SDP (RFC 3264 offer/answer)
// поверх реестра кодеков.
//
// Negotiator проходит состояния idle → offered → filtered →
// attributes_resolved → confirmed (или failed) на looplab/fsm.
// Медиа описания строятся и разбираются через pion/sdp/v3.
//
//	n, _ := media_sdp.NewNegotiator(registry, media_sdp.DefaultConfig(codec.MediaAudio))
//	offer, _ := n.Offer(ctx)
//	// ... отправка offer, получение answer
//	result, err := n.Answer(ctx, answerMedia)
//
// Сетевые адреса, ICE и транспорт сюда не входят.
package media_sdp
