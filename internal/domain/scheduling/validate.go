package scheduling

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	msgFillAllFields = "Fill all fields."
	msgPhoneTooShort = "Phone looks too short."
	msgBadDate       = "Date must look like YYYY-MM-DD."
	msgBadTime       = "Time must look like HH:MM."

	minPhoneDigits = 9
)

// DoctorInput is the body of add and update doctor.
type DoctorInput struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone" validate:"required,phone"`
	Spec  string `json:"spec" validate:"required"`
}

// AppointmentInput is the body of create appointment.
type AppointmentInput struct {
	DoctorID string `json:"doctorId" validate:"required"`
	Patient  string `json:"patient" validate:"required"`
	Date     string `json:"date" validate:"required,isodate"`
	Time     string `json:"time" validate:"required,slot"`
}

// MoveInput is the body of move appointment.
type MoveInput struct {
	DoctorID string `json:"doctorId" validate:"required"`
	Date     string `json:"date" validate:"required,isodate"`
	Time     string `json:"time" validate:"required,slot"`
}

func (in *DoctorInput) trim() {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Spec = strings.TrimSpace(in.Spec)
}

func (in *AppointmentInput) trim() {
	in.DoctorID = strings.TrimSpace(in.DoctorID)
	in.Patient = strings.TrimSpace(in.Patient)
	in.Date = strings.TrimSpace(in.Date)
	in.Time = strings.TrimSpace(in.Time)
}

func (in *MoveInput) trim() {
	in.DoctorID = strings.TrimSpace(in.DoctorID)
	in.Date = strings.TrimSpace(in.Date)
	in.Time = strings.TrimSpace(in.Time)
}

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// PhoneDigits counts the digits in a phone number.
func PhoneDigits(phone string) int {
	n := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func validatePhone(fl validator.FieldLevel) bool {
	return PhoneDigits(fl.Field().String()) >= minPhoneDigits
}

func validateISODate(fl validator.FieldLevel) bool {
	_, err := time.Parse(time.DateOnly, fl.Field().String())
	return err == nil
}

// slot accepts any well-formed time of day; times outside the daily slots
// are handled by the allocator.
func validateSlot(fl validator.FieldLevel) bool {
	return clockPattern.MatchString(fl.Field().String())
}

// Validator checks command inputs.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("phone", validatePhone)
	_ = v.RegisterValidation("isodate", validateISODate)
	_ = v.RegisterValidation("slot", validateSlot)
	return &Validator{v: v}
}

// Check validates s and converts the first failure into a ValidationError.
// Missing fields win over format problems so the user sees one message.
func (val *Validator) Check(s interface{}) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			return &ValidationError{Field: fe.Field(), Message: msgFillAllFields}
		}
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "phone":
		return &ValidationError{Field: fe.Field(), Message: msgPhoneTooShort}
	case "isodate":
		return &ValidationError{Field: fe.Field(), Message: msgBadDate}
	case "slot":
		return &ValidationError{Field: fe.Field(), Message: msgBadTime}
	default:
		return &ValidationError{Field: fe.Field(), Message: fe.Error()}
	}
}
