package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"

	"github.com/m3rciful/reservebot/bot/availability"
	"github.com/m3rciful/reservebot/bot/config"
	"github.com/m3rciful/reservebot/bot/storage"
	"github.com/m3rciful/reservebot/core/logger"
)

type textHandler func(ctx context.Context, st storage.UserState, text string) []Message

type postbackHandler func(ctx context.Context, st storage.UserState, p Payload) []Message

// Machine advances a user's reservation conversation one event at a time.
// All conversation state lives in the StateStore; Machine itself is safe for
// concurrent use by different users.
type Machine struct {
	states       storage.StateStore
	reservations storage.ReservationStore
	checker      *availability.Checker
	store        config.Store
	now          func() time.Time

	textHandlers     map[storage.State]textHandler
	postbackHandlers map[string]postbackHandler
}

// Option customizes a Machine.
type Option func(*Machine)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// New wires a Machine over its stores and the availability checker.
func New(states storage.StateStore, reservations storage.ReservationStore, checker *availability.Checker, store config.Store, opts ...Option) *Machine {
	m := &Machine{
		states:       states,
		reservations: reservations,
		checker:      checker,
		store:        store,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.textHandlers = map[storage.State]textHandler{
		storage.StateAskingPeople: m.onPeople,
	}
	m.postbackHandlers = map[string]postbackHandler{
		IntentSelectTime: m.onSelectTime,
		IntentConfirmYes: m.onConfirmYes,
		IntentConfirmNo:  m.onConfirmNo,
	}
	return m
}

func (m *Machine) location() *time.Location {
	if m.store.Location != nil {
		return m.store.Location
	}
	return time.Local
}

// IsStartKeyword reports whether text starts a new reservation.
func (m *Machine) IsStartKeyword(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, k := range m.store.Keywords {
		if t == k {
			return true
		}
	}
	return false
}

// HandleText processes a typed message and returns the replies in order.
func (m *Machine) HandleText(ctx context.Context, ev TextEvent) []Message {
	ctx = logger.WithUser(ctx, ev.UserID)
	text := strings.TrimSpace(ev.Text)

	if m.IsStartKeyword(text) {
		return m.Start(ctx, ev.UserID)
	}

	st, err := m.states.Get(ctx, ev.UserID)
	if err != nil {
		m.logError(ctx, "state.get", err)
		return []Message{Text(msgGenericError)}
	}
	if h, ok := m.textHandlers[st.State]; ok {
		return h(ctx, st, text)
	}
	return []Message{Text(msgEcho(text))}
}

// HandlePostback processes a button press and returns the replies in order.
func (m *Machine) HandlePostback(ctx context.Context, ev PostbackEvent) []Message {
	ctx = logger.WithUser(ctx, ev.UserID)
	p := ParsePayload(ev.Payload)

	st, err := m.states.Get(ctx, ev.UserID)
	if err != nil {
		m.logError(ctx, "state.get", err)
		return []Message{Text(msgGenericError)}
	}
	logger.Debug(ctx, logger.CompConversation, "postback",
		slog.String("state", string(st.State)),
		slog.String("intent", p.Intent),
	)
	if h, ok := m.postbackHandlers[p.Intent]; ok {
		return h(ctx, st, p)
	}
	return []Message{Text(msgPostbackFallback)}
}

// Start opens a new reservation: the state becomes ASKING_TIME with an empty
// draft and today's remaining slots are offered.
func (m *Machine) Start(ctx context.Context, userID string) []Message {
	choices := m.slotChoices()
	if len(choices) == 0 {
		if err := m.states.Delete(ctx, userID); err != nil {
			m.logError(ctx, "state.delete", err)
		}
		m.logTransition(ctx, storage.StateNone, "no_slots")
		return []Message{Text(msgNoSlotsToday)}
	}
	if err := m.states.Upsert(ctx, storage.UserState{UserID: userID, State: storage.StateAskingTime}); err != nil {
		m.logError(ctx, "state.upsert", err)
		return []Message{Text(msgGenericError)}
	}
	m.logTransition(ctx, storage.StateAskingTime, "start")
	return []Message{{Kind: KindChoices, Text: msgAskTime, Choices: choices}}
}

// Cancel drops any conversation in progress.
func (m *Machine) Cancel(ctx context.Context, userID string) []Message {
	ctx = logger.WithUser(ctx, userID)
	st, err := m.states.Get(ctx, userID)
	if err != nil {
		m.logError(ctx, "state.get", err)
		return []Message{Text(msgGenericError)}
	}
	if st.State == storage.StateNone {
		return []Message{Text(msgNothingToCancel)}
	}
	return m.clear(ctx, userID, "cancelled", msgCancelled)
}

// Today lists today's confirmed reservations in the store location.
func (m *Machine) Today(ctx context.Context) ([]storage.Reservation, error) {
	return m.reservations.ListConfirmedOnDate(ctx, m.now().In(m.location()))
}

func (m *Machine) slotChoices() []Choice {
	now := m.now().In(m.location())
	slots := m.checker.Slots(now, now)
	choices := make([]Choice, 0, len(slots))
	for _, s := range slots {
		choices = append(choices, Choice{Label: s.Format("15:04"), Data: SelectTimePayload(s)})
	}
	return choices
}

func (m *Machine) reprompt(lead string) []Message {
	out := []Message{Text(lead)}
	if choices := m.slotChoices(); len(choices) > 0 {
		out = append(out, Message{Kind: KindChoices, Text: msgAskTimeAgain, Choices: choices})
	}
	return out
}

func (m *Machine) onSelectTime(ctx context.Context, st storage.UserState, p Payload) []Message {
	if st.State != storage.StateAskingTime {
		return m.clear(ctx, st.UserID, "unexpected", msgUnexpected)
	}
	if p.Value == "" {
		return []Message{Text(msgNoTimeSelected)}
	}
	at, err := ParseSlotTime(p.Value, m.location())
	if err != nil {
		logger.Warn(ctx, logger.CompConversation, "select_time.parse",
			slog.String("outcome", "rejected"),
			slog.String("slot", p.Value),
			logger.Err(err),
		)
		return []Message{Text(msgTimeFormat)}
	}
	if err := m.checker.Validate(at); err != nil {
		logger.Info(ctx, logger.CompConversation, "select_time.invalid",
			slog.String("outcome", "rejected"),
			slog.String("slot", p.Value),
			logger.Err(err),
		)
		return m.reprompt(msgSlotNotBookable)
	}
	ok, err := m.checker.HasCapacity(ctx, at)
	if err != nil {
		m.logError(ctx, "capacity.check", err)
		return []Message{Text(msgGenericError)}
	}
	if !ok {
		logger.Info(ctx, logger.CompConversation, "select_time.full",
			slog.String("outcome", "fully_booked"),
			slog.String("slot", p.Value),
		)
		return m.reprompt(msgSlotFull)
	}

	draft := st.Data
	draft.DateTime = &at
	if err := m.states.Upsert(ctx, storage.UserState{UserID: st.UserID, State: storage.StateAskingPeople, Data: draft}); err != nil {
		m.logError(ctx, "state.upsert", err)
		return []Message{Text(msgGenericError)}
	}
	m.logTransition(ctx, storage.StateAskingPeople, "time_selected", slog.String("slot", p.Value))
	return []Message{Text(msgAskPeople(at, m.store.MinPeople, m.store.MaxPeople))}
}

// parsePeople accepts full-width digits as typed on Japanese keyboards.
func (m *Machine) parsePeople(text string) (int, string) {
	n, err := strconv.Atoi(strings.TrimSpace(width.Narrow.String(text)))
	if err != nil {
		return 0, msgPeopleNotNumber
	}
	if n < m.store.MinPeople || n > m.store.MaxPeople {
		return 0, msgPeopleOutOfRange(m.store.MinPeople, m.store.MaxPeople)
	}
	return n, ""
}

func (m *Machine) onPeople(ctx context.Context, st storage.UserState, text string) []Message {
	people, reason := m.parsePeople(text)
	if reason != "" {
		logger.Info(ctx, logger.CompConversation, "people.invalid",
			slog.String("outcome", "rejected"),
			slog.String("state", string(st.State)),
		)
		return []Message{Text(msgPeopleInvalid(reason))}
	}
	if st.Data.DateTime == nil {
		return m.clear(ctx, st.UserID, "draft_incomplete", msgDraftIncomplete)
	}

	draft := st.Data
	draft.People = &people
	if err := m.states.Upsert(ctx, storage.UserState{UserID: st.UserID, State: storage.StateConfirmingReservation, Data: draft}); err != nil {
		m.logError(ctx, "state.upsert", err)
		return []Message{Text(msgGenericError)}
	}
	m.logTransition(ctx, storage.StateConfirmingReservation, "people_set", slog.Int("people", people))

	at := storage.InLocation(*draft.DateTime, m.location())
	return []Message{{
		Kind: KindConfirm,
		Text: msgConfirm(at, people),
		Choices: []Choice{
			{Label: labelYes, Data: IntentConfirmYes},
			{Label: labelNo, Data: IntentConfirmNo},
		},
	}}
}

func (m *Machine) onConfirmYes(ctx context.Context, st storage.UserState, _ Payload) []Message {
	if st.State != storage.StateConfirmingReservation {
		return []Message{Text(msgPostbackFallback)}
	}
	if !st.Data.Complete() {
		return m.clear(ctx, st.UserID, "draft_incomplete", msgDraftIncomplete)
	}

	at := storage.InLocation(*st.Data.DateTime, m.location())
	ok, err := m.checker.HasCapacity(ctx, at)
	if err != nil {
		m.logError(ctx, "capacity.check", err)
		return []Message{Text(msgInsertFailed)}
	}
	if !ok {
		return m.clear(ctx, st.UserID, "fully_booked", msgFilledMeanwhile)
	}

	r := &storage.Reservation{
		UserID:    st.UserID,
		DateTime:  at,
		NumPeople: *st.Data.People,
		Status:    storage.StatusConfirmed,
	}
	if m.store.AtomicInsert {
		err = m.reservations.CreateIfCapacity(ctx, r, m.checker.Scope(), m.checker.Limit())
	} else {
		err = m.reservations.Create(ctx, r)
	}
	if errors.Is(err, storage.ErrFullyBooked) {
		return m.clear(ctx, st.UserID, "fully_booked", msgFilledMeanwhile)
	}
	if err != nil {
		m.logError(ctx, "reservation.create", err)
		return []Message{Text(msgInsertFailed)}
	}

	logger.Info(ctx, logger.CompReservations, "reservation.created",
		slog.String("status", "ok"),
		slog.Int64("reservation_id", r.ID),
		slog.String("slot", at.Format(time.DateTime)),
		slog.Int("people", r.NumPeople),
	)
	if err := m.states.Delete(ctx, st.UserID); err != nil {
		m.logError(ctx, "state.delete", err)
	}
	m.logTransition(ctx, storage.StateNone, "booked")
	return []Message{Text(msgBooked), Text(msgReference(shortReference(r.Reference)))}
}

func (m *Machine) onConfirmNo(ctx context.Context, st storage.UserState, _ Payload) []Message {
	if st.State != storage.StateConfirmingReservation {
		return []Message{Text(msgPostbackFallback)}
	}
	return m.clear(ctx, st.UserID, "cancelled", msgCancelled)
}

// clear deletes the user's state and replies with msg. A failed delete is
// logged; the user still gets msg.
func (m *Machine) clear(ctx context.Context, userID, outcome, msg string) []Message {
	if err := m.states.Delete(ctx, userID); err != nil {
		m.logError(ctx, "state.delete", err)
	}
	m.logTransition(ctx, storage.StateNone, outcome)
	return []Message{Text(msg)}
}

func (m *Machine) logTransition(ctx context.Context, next storage.State, reason string, attrs ...slog.Attr) {
	base := []slog.Attr{
		slog.String("next_state", string(next)),
		slog.String("reason", reason),
	}
	switch reason {
	case "fully_booked", "cancelled":
		base = append(base, slog.String("outcome", reason))
	}
	logger.Info(ctx, logger.CompConversation, "transition", append(base, attrs...)...)
}

func (m *Machine) logError(ctx context.Context, op string, err error) {
	logger.Error(ctx, logger.CompConversation, op, logger.Failed(err)...)
}

func shortReference(ref string) string {
	ref = strings.ReplaceAll(ref, "-", "")
	if len(ref) > 8 {
		ref = ref[:8]
	}
	return strings.ToUpper(ref)
}
