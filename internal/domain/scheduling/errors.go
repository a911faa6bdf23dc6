package scheduling

import "errors"

var (
	ErrDoctorNotFound       = errors.New("doctor not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrDayFull              = errors.New("no free slots")
	ErrPastDate             = errors.New("date is in the past")
	ErrAppointmentCancelled = errors.New("appointment is cancelled")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrOperationInFlight    = errors.New("another operation is in progress")
	ErrOperationTimeout     = errors.New("operation timed out")
)

// ValidationError rejects a command's input. Message is shown to the user
// as is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// OutcomeError attaches the user-facing wording to a sentinel error.
type OutcomeError struct {
	Err     error
	Message string
}

func (e *OutcomeError) Error() string { return e.Message }

func (e *OutcomeError) Unwrap() error { return e.Err }

// ConfirmationError asks the caller to repeat a destructive command with
// explicit confirmation.
type ConfirmationError struct {
	Prompt string
}

func (e *ConfirmationError) Error() string { return e.Prompt }

func (e *ConfirmationError) Unwrap() error { return ErrConfirmationRequired }

// UserMessage returns the text to show for err.
func UserMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	var oe *OutcomeError
	if errors.As(err, &oe) {
		return oe.Message
	}
	var ce *ConfirmationError
	if errors.As(err, &ce) {
		return ce.Prompt
	}
	return err.Error()
}
