package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/websocket"
)

const (
	msgDoctorAdded      = "Doctor added"
	msgDoctorSaved      = "Saved"
	msgDeleted          = "Deleted"
	msgAppointmentAdded = "Appointment added"
	msgMoved            = "Moved"
	msgUpdated          = "Updated"
	msgCancelled        = "Cancelled"
	msgReset            = "Reset"

	msgPastDateCreate = "Date can't be in the past"
	msgPastDateMove   = "Date can't be in the past."
	msgDayFullCreate  = "No free slots that day"
	msgDayFullMove    = "No free slots for this day."
	msgDoctorMissing  = "Doctor not found."
	msgMoveCancelled  = "Cancelled appointments can't be moved."

	promptReset = "Reset demo data? (This clears saved data)"
)

// DoctorResult is the outcome of add or update doctor.
type DoctorResult struct {
	Doctor  Doctor `json:"doctor"`
	Message string `json:"message"`
}

// AppointmentResult is the outcome of an appointment command. Shifted is set
// when the allocator placed the appointment later than requested.
type AppointmentResult struct {
	Appointment   AppointmentView `json:"appointment"`
	RequestedTime string          `json:"requestedTime,omitempty"`
	Shifted       bool            `json:"shifted"`
	Message       string          `json:"message"`
}

// DeleteResult is the outcome of a delete command.
type DeleteResult struct {
	ID                  string `json:"id"`
	RemovedAppointments int    `json:"removedAppointments"`
	Message             string `json:"message"`
}

// ResetResult is the outcome of a reset.
type ResetResult struct {
	Summary Summary `json:"summary"`
	Message string  `json:"message"`
}

// AppointmentFilter narrows ListAppointments. Empty fields match everything.
type AppointmentFilter struct {
	DoctorID string
	Date     string
	Status   string
}

// Service owns the clinic state. Reads see the latest committed snapshot;
// commands pass through the gate, build a new snapshot, persist it and only
// then make it current.
type Service struct {
	repo      Repository
	gate      *Gate
	validator *Validator
	publisher websocket.EventPublisher
	logger    zerolog.Logger
	loc       *time.Location
	now       func() time.Time

	mu    sync.RWMutex
	state *State
}

// NewService creates a service. publisher may be nil. loc decides which
// calendar day is today; nil means UTC.
func NewService(repo Repository, gate *Gate, publisher websocket.EventPublisher, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:      repo,
		gate:      gate,
		validator: NewValidator(),
		publisher: publisher,
		logger:    logger,
		loc:       loc,
		now:       time.Now,
		state:     &State{},
	}
}

// Load reads the stored state once, falling back to seed data, and writes
// the result back so the store always holds a complete blob.
func (s *Service) Load(ctx context.Context) error {
	saved, err := s.repo.Load(ctx)
	if err != nil && !errors.Is(err, ErrNoState) {
		return err
	}
	if errors.Is(err, ErrNoState) {
		s.logger.Info().Msg("no stored state, seeding defaults")
	}

	st := WithDefaults(saved, s.Today())
	if err := s.repo.Save(ctx, st); err != nil {
		return err
	}
	s.swap(st)
	s.logger.Info().Int("doctors", len(st.Doctors)).Int("appointments", len(st.Appts)).Msg("state loaded")
	return nil
}

// Today returns the current calendar day as YYYY-MM-DD.
func (s *Service) Today() string {
	return s.now().In(s.loc).Format(time.DateOnly)
}

// Busy reports whether a command is in flight.
func (s *Service) Busy() bool {
	return s.gate.Busy()
}

// GateMode returns how concurrent commands are handled.
func (s *Service) GateMode() string {
	return s.gate.Mode()
}

func (s *Service) current() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Service) swap(st *State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (s *Service) Snapshot() *State {
	return s.current().Clone()
}

// commit runs build under the gate. build must not modify cur; it returns the
// next state and the notice to publish once that state is stored.
func (s *Service) commit(ctx context.Context, build func(cur *State) (*State, websocket.Event, error)) error {
	return s.gate.Do(ctx, func(ctx context.Context) error {
		next, evt, err := build(s.current())
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return contextError(err)
		}
		if err := s.repo.Save(ctx, next); err != nil {
			if ctx.Err() != nil {
				return contextError(ctx.Err())
			}
			return err
		}
		s.swap(next)
		s.publish(ctx, evt)
		return nil
	})
}

func (s *Service) publish(ctx context.Context, evt websocket.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn().Err(err).Str("event", evt.Type).Msg("publish notice")
	}
}

// -- Queries --

// ListDoctors returns doctors newest first.
func (s *Service) ListDoctors() []Doctor {
	st := s.current()
	out := make([]Doctor, len(st.Doctors))
	copy(out, st.Doctors)
	return out
}

func (s *Service) GetDoctor(id string) (Doctor, error) {
	d, ok := s.current().Doctor(id)
	if !ok {
		return Doctor{}, ErrDoctorNotFound
	}
	return d, nil
}

// ListAppointments returns matching appointments ordered by date and time.
func (s *Service) ListAppointments(f AppointmentFilter) []AppointmentView {
	st := s.current()
	var appts []Appointment
	for _, a := range st.Appts {
		if f.DoctorID != "" && a.DoctorID != f.DoctorID {
			continue
		}
		if f.Date != "" && a.Date != f.Date {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		appts = append(appts, a)
	}
	sortAppointments(appts)

	out := make([]AppointmentView, len(appts))
	for i, a := range appts {
		out[i] = AppointmentView{Appointment: a, DoctorName: st.DoctorName(a.DoctorID)}
	}
	return out
}

func (s *Service) GetAppointment(id string) (AppointmentView, error) {
	st := s.current()
	a, ok := st.Appointment(id)
	if !ok {
		return AppointmentView{}, ErrAppointmentNotFound
	}
	return AppointmentView{Appointment: a, DoctorName: st.DoctorName(a.DoctorID)}, nil
}

// BusySlots lists occupied times for a doctor and day in slot order.
func (s *Service) BusySlots(doctorID, date, excludeID string) []string {
	busy := BusySet(doctorID, date, s.current().Appts, excludeID)
	out := []string{}
	for _, t := range dailySlots {
		if busy[t] {
			out = append(out, t)
			delete(busy, t)
		}
	}
	// off-grid times from older data still count as busy
	for t := range busy {
		out = append(out, t)
	}
	return out
}

// NextFreeSlot previews where a booking at requested would land.
func (s *Service) NextFreeSlot(doctorID, date, requested, excludeID string) (string, bool) {
	return FindFreeSlot(doctorID, date, requested, dailySlots, s.current().Appts, excludeID)
}

// SlotOptions returns the time picker for a doctor and day.
func (s *Service) SlotOptions(doctorID, date, excludeID string) []SlotOption {
	return SlotOptions(doctorID, date, dailySlots, s.current().Appts, excludeID)
}

func (s *Service) Summary() Summary {
	return s.current().Summary()
}

// -- Doctor commands --

func (s *Service) AddDoctor(ctx context.Context, in DoctorInput) (*DoctorResult, error) {
	in.trim()
	if err := s.validator.Check(&in); err != nil {
		return nil, err
	}

	doc := Doctor{ID: newID(), Name: in.Name, Phone: in.Phone, Spec: in.Spec}
	err := s.commit(ctx, func(cur *State) (*State, websocket.Event, error) {
		next := cur.Clone()
		next.Doctors = append([]Doctor{doc}, next.Doctors...)
		return next, websocket.NewEvent(websocket.TopicDoctors, "doctor.created", "Doctor", doc.ID, msgDoctorAdded, doc), nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("doctor_id", doc.ID).Msg("doctor added")
	return &DoctorResult{Doctor: doc, Message: msgDoctorAdded}, nil
}

func (s *Service) UpdateDoctor(ctx context.Context, id string, in DoctorInput) (*DoctorResult, error) {
	in.trim()
	if err := s.validator.Check(&in); err != nil {
		return nil, err
	}

	var doc Doctor
	err := s.commit(ctx, func(cur *State) (*State, websocket.Event, error) {
		i := cur.doctorIndex(id)
		if i < 0 {
			return nil, websocket.Event{}, ErrDoctorNotFound
		}
		next := cur.Clone()
		next.Doctors[i].Name = in.Name
		next.Doctors[i].Phone = in.Phone
		next.Doctors[i].Spec = in.Spec
		doc = next.Doctors[i]
		return next, websocket.NewEvent(websocket.TopicDoctors, "doctor.updated", "Doctor", id, msgDoctorSaved, doc), nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("doctor_id", id).Msg("doctor updated")
	return &DoctorResult{Doctor: doc, Message: msgDoctorSaved}, nil
}

// DeleteDoctor removes the doctor and all of their appointments. Without
// confirm it returns a ConfirmationError and changes nothing.
func (s *Service) DeleteDoctor(ctx context.Context, id string, confirm bool) (*DeleteResult, error) {
	doc, ok := s.current().Doctor(id)
	if !ok {
		return nil, ErrDoctorNotFound
	}
	if !confirm {
		return nil, &ConfirmationError{
			Prompt: fmt.Sprintf("Delete doctor %q? All their appointments will be removed.", doc.Name),
		}
	}

	var removed int
	err := s.commit(ctx, func(cur *State) (*State, websocket.Event, error) {
		if cur.doctorIndex(id) < 0 {
			return nil, websocket.Event{}, ErrDoctorNotFound
		}
		next := cur.Clone()
		removed = next.RemoveDoctor(id)
		return next, websocket.NewEvent(websocket.TopicDoctors, "doctor.deleted", "Doctor", id, msgDeleted,
			map[string]int{"removedAppointments": removed}), nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("doctor_id", id).Int("removed_appointments", removed).Msg("doctor deleted")
	return &DeleteResult{ID: id, RemovedAppointments: removed, Message: msgDeleted}, nil
}

// -- Appointment commands --

// CreateAppointment books the first free slot at or after the requested
// time for that doctor and day.
func (s *Service) CreateAppointment(ctx context.Context, in AppointmentInput) (*AppointmentResult, error) {
	in.trim()
	if err := s.validator.Check(&in); err != nil {
		return nil, err
	}
	if in.Date < s.Today() {
		return nil, &OutcomeError{Err: ErrPastDate, Message: msgPastDateCreate}
	}

	var res AppointmentResult
	err := s.commit(ctx, func(cur *State) (*State, websocket.Event, error) {
		doc, ok := cur.Doctor(in.DoctorID)
		if !ok {
			return nil, websocket.Event{}, &OutcomeError{Err: ErrDoctorNotFound, Message: msgDoctorMissing}
		}
		slot, ok := FindFreeSlot(in.DoctorID, in.Date, in.Time, dailySlots, cur.Appts, "")
		if !ok {
			return nil, websocket.Event{}, &OutcomeError{Err: ErrDayFull, Message: msgDayFullCreate}
		}

		appt := Appointment{
			ID:       newID(),
			DoctorID: in.DoctorID,
			Patient:  in.Patient,
			Date:     in.Date,
			Time:     slot,
			Status:   StatusScheduled,
		}
		next := cur.Clone()
		next.Appts = append([]Appointment{appt}, next.Appts...)

		res = AppointmentResult{
			Appointment:   AppointmentView{Appointment: appt, DoctorName: doc.Name},
			RequestedTime: in.Time,
			Shifted:       slot != in.Time,
			Message:       msgAppointmentAdded,
		}
		if res.Shifted {
			res.Message = createShiftNotice(in.Time, slot)
		}
		return next, websocket.NewEvent(websocket.TopicAppointments, "appointment.created", "Appointment", appt.ID, res.Message, res.Appointment), nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", res.Appointment.ID).
		Str("doctor_id", in.DoctorID).
		Str("date", in.Date).
		Str("slot", res.Appointment.Time).
		Bool("shifted", res.Shifted).
		Msg("appointment created")
	return &res, nil
}

// MoveAppointment reschedules an appointment in place. Its own current slot
// does not count as busy, so moving to where it already is succeeds. The
// status is reset to scheduled.
func (s *Service) MoveAppointment(ctx context.Context, id string, in MoveInput) (*AppointmentResult, error) {
	in.trim()
	if err := s.validator.Check(&in); err != nil {
		return nil, err
	}
	if in.Date < s.Today() {
		return nil, &OutcomeError{Err: ErrPastDate, Message: msgPastDateMove}
	}

	var res AppointmentResult
	err := s.commit(ctx, func(cur *State) (*State, websocket.Event, error) {
		i := cur.appointmentIndex(id)
		if i < 0 {
			return nil, websocket.Event{}, ErrAppointmentNotFound
		}
		if cur.Appts[i].Status == StatusCancelled {
			return nil, websocket.Event{}, &OutcomeError{Err: ErrAppointmentCancelled, Message: msgMoveCancelled}
		}
		doc, ok := cur.Doctor(in.DoctorID)
		if !ok {
			return nil, websocket.Event{}, &OutcomeError{Err: ErrDoctorNotFound, Message: msgDoctorMissing}
		}
		slot, ok := FindFreeSlot(in.DoctorID, in.Date, in.Time, dailySlots, cur.Appts, id)
		if !ok {
			return nil, websocket.Event{}, &OutcomeError{Err: ErrDayFull, Message: msgDayFullMove}
		}

		next := cur.Clone()
		a := &next.Appts[i]
		a.DoctorID = in.DoctorID
		a.Date = in.Date
		a.Time = slot
		a.Status = StatusScheduled

		res = AppointmentResult{
			Appointment:   AppointmentView{Appointment: *a, DoctorName: doc.Name},
			RequestedTime: in.Time,
			Shifted:       slot != in.Time,
			Message:       msgMoved,
		}
		if res.Shifted {
			res.Message = moveShiftNotice(in.Time, slot)
		}
		return next, websocket.NewEvent(websocket.TopicAppointments, "appointment.moved", "Appointment", id, res.Message, res.Appointment), nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", id).
		Str("doctor_id", in.DoctorID).
		Str("date", in.Date).
		Str("slot", res.Appointment.Time).
		Bool("shifted", res.Shifted).
		Msg("appointment moved")
	return &res, nil
}

// ToggleDone flips scheduled and done. Cancelled appointments stay as they are.
func (s *Service) ToggleDone(ctx context.Context, id string) (*AppointmentResult, error) {
	return s.setStatus(ctx, id, "appointment.updated", msgUpdated, func(status string) string {
		switch status {
		case StatusCancelled:
			return StatusCancelled
		case StatusDone:
			return StatusScheduled
		default:
			return StatusDone
		}
	})
}

func (s *Service) CancelAppointment(ctx context.Context, id string) (*AppointmentResult, error) {
	return s.setStatus(ctx, id, "appointment.cancelled", msgCancelled, func(string) string {
		return StatusCancelled
	})
}

func (s *Service) setStatus(ctx context.Context, id, eventType, message string, next func(string) string) (*AppointmentResult, error) {
	var res AppointmentResult
	err := s.commit(ctx, func(cur *State) (*State, websocket.Event, error) {
		i := cur.appointmentIndex(id)
		if i < 0 {
			return nil, websocket.Event{}, ErrAppointmentNotFound
		}
		st := cur.Clone()
		st.Appts[i].Status = next(st.Appts[i].Status)
		a := st.Appts[i]
		res = AppointmentResult{
			Appointment: AppointmentView{Appointment: a, DoctorName: st.DoctorName(a.DoctorID)},
			Message:     message,
		}
		return st, websocket.NewEvent(websocket.TopicAppointments, eventType, "Appointment", id, message, res.Appointment), nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("appointment_id", id).Str("status", res.Appointment.Status).Msg("appointment status changed")
	return &res, nil
}

// DeleteAppointment removes one appointment. Without confirm it returns a
// ConfirmationError and changes nothing.
func (s *Service) DeleteAppointment(ctx context.Context, id string, confirm bool) (*DeleteResult, error) {
	a, ok := s.current().Appointment(id)
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if !confirm {
		return nil, &ConfirmationError{Prompt: fmt.Sprintf("Delete appointment for %q?", a.Patient)}
	}

	err := s.commit(ctx, func(cur *State) (*State, websocket.Event, error) {
		i := cur.appointmentIndex(id)
		if i < 0 {
			return nil, websocket.Event{}, ErrAppointmentNotFound
		}
		next := cur.Clone()
		next.Appts = append(next.Appts[:i], next.Appts[i+1:]...)
		return next, websocket.NewEvent(websocket.TopicAppointments, "appointment.deleted", "Appointment", id, msgDeleted, nil), nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("appointment_id", id).Msg("appointment deleted")
	return &DeleteResult{ID: id, Message: msgDeleted}, nil
}

// Times that are not on the slot grid start the search at the first slot, so
// the placement is not caused by a busy slot and gets its own notice.
func createShiftNotice(requested, slot string) string {
	if !IsSlot(requested) {
		return requested + " is not a slot → booked at " + slot
	}
	return "Busy → moved to " + slot
}

func moveShiftNotice(requested, slot string) string {
	if !IsSlot(requested) {
		return requested + " is not a slot → moved to " + slot + "."
	}
	return "Selected time was busy → moved to " + slot + "."
}

// Reset replaces the stored state with the seed data. The blob is
// overwritten in one Save, so a failed save leaves both the store and the
// current state as they were. Without confirm it returns a
// ConfirmationError and changes nothing.
func (s *Service) Reset(ctx context.Context, confirm bool) (*ResetResult, error) {
	if !confirm {
		return nil, &ConfirmationError{Prompt: promptReset}
	}

	var sum Summary
	err := s.gate.Do(ctx, func(ctx context.Context) error {
		st := WithDefaults(nil, s.Today())
		if err := s.repo.Save(ctx, st); err != nil {
			return err
		}
		s.swap(st)
		sum = st.Summary()
		s.publish(ctx, websocket.NewEvent(websocket.TopicState, "state.reset", "", "", msgReset, sum))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Warn().Msg("state reset to defaults")
	return &ResetResult{Summary: sum, Message: msgReset}, nil
}
