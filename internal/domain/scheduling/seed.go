package scheduling

import "github.com/google/uuid"

// Seed data used when nothing usable is stored.
const (
	SeedDoctorName  = "Dr. Anna Petrova"
	SeedDoctorPhone = "+44 7700 900123"
	SeedDoctorSpec  = "Dentist"
	SeedPatient     = "Demo"
	SeedTime        = "10:00"
)

func newID() string {
	return uuid.New().String()
}

// WithDefaults fills in seed data. A nil saved state yields the full seed.
// Without doctors the seed doctor is used; without appointments the seed
// appointment is booked for today with the first doctor. Missing statuses
// read as scheduled. saved is not modified.
func WithDefaults(saved *State, today string) *State {
	var st *State
	if saved == nil {
		st = &State{}
	} else {
		st = saved.Clone()
	}

	seedDoctor := Doctor{
		ID:    newID(),
		Name:  SeedDoctorName,
		Phone: SeedDoctorPhone,
		Spec:  SeedDoctorSpec,
	}

	apptDoctor := seedDoctor.ID
	if len(st.Doctors) > 0 {
		apptDoctor = st.Doctors[0].ID
	} else {
		st.Doctors = []Doctor{seedDoctor}
	}

	if len(st.Appts) == 0 {
		st.Appts = []Appointment{{
			ID:       newID(),
			DoctorID: apptDoctor,
			Patient:  SeedPatient,
			Date:     today,
			Time:     SeedTime,
			Status:   StatusScheduled,
		}}
	}

	for i := range st.Appts {
		if st.Appts[i].Status == "" {
			st.Appts[i].Status = StatusScheduled
		}
	}
	return st
}
