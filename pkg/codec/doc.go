// Package codec содержит реестр кодеков и правила согласования их атрибутов
// для SDP offer/answer.
//
// Реестр хранит порядок предпочтения кодеков для аудио и видео, шаблоны
// атрибутов (fmtp, rtcp-fb) и статическую таблицу фабрик реализаций.
// Кодек без фабрики известен реестру, но Instantiate для него возвращает nil.
package codec
