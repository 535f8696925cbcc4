package media_sdp

import (
	"context"
	"log/slog"

	"github.com/looplab/fsm"
)

// Состояния согласования медиа строки.
// idle                – ничего не отправлено и не получено;
// offered             – локальный offer построен;
// filtered            – кодеки удаленной стороны отфильтрованы по реестру;
// attributes_resolved – атрибуты выбранного кодека согласованы;
// confirmed           – результат зафиксирован;
// failed              – согласование не удалось, повторов нет.
const (
	StateIdle               = "idle"
	StateOffered            = "offered"
	StateFiltered           = "filtered"
	StateAttributesResolved = "attributes_resolved"
	StateConfirmed          = "confirmed"
	StateFailed             = "failed"
)

const (
	eventOffer   = "offer"
	eventFilter  = "filter"
	eventResolve = "resolve"
	eventConfirm = "confirm"
	eventFail    = "fail"
)

// newNegotiationFSM оборачивает looplab/fsm.
// Events: offer, filter, resolve, confirm, fail
func newNegotiationFSM(logger *slog.Logger) *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventOffer, Src: []string{StateIdle}, Dst: StateOffered},
			{Name: eventFilter, Src: []string{StateIdle, StateOffered}, Dst: StateFiltered},
			{Name: eventResolve, Src: []string{StateFiltered}, Dst: StateAttributesResolved},
			{Name: eventConfirm, Src: []string{StateAttributesResolved}, Dst: StateConfirmed},
			{Name: eventFail, Src: []string{StateIdle, StateOffered, StateFiltered, StateAttributesResolved}, Dst: StateFailed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Debug("переход состояния согласования",
					slog.String("event", e.Event),
					slog.String("from", e.Src),
					slog.String("to", e.Dst))
			},
		},
	)
}
