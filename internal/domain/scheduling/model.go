package scheduling

// Appointment statuses.
const (
	StatusScheduled = "scheduled"
	StatusDone      = "done"
	StatusCancelled = "cancelled"
)

// UnknownDoctor is shown for appointments whose doctor no longer exists.
const UnknownDoctor = "Unknown doctor"

type Doctor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Spec  string `json:"spec"`
}

type Appointment struct {
	ID       string `json:"id"`
	DoctorID string `json:"doctorId"`
	Patient  string `json:"patient"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Status   string `json:"status"`
}

// Active reports whether the appointment holds its slot.
func (a Appointment) Active() bool {
	return a.Status != StatusCancelled
}

// AppointmentView is an appointment together with its doctor's display name.
type AppointmentView struct {
	Appointment
	DoctorName string `json:"doctorName"`
}

// State is the persisted blob. A State held by the service is never mutated;
// commands work on a Clone and swap it in.
type State struct {
	Doctors []Doctor      `json:"doctors"`
	Appts   []Appointment `json:"appts"`
}

// Clone returns a copy that shares nothing with s.
func (s *State) Clone() *State {
	out := &State{
		Doctors: make([]Doctor, len(s.Doctors)),
		Appts:   make([]Appointment, len(s.Appts)),
	}
	copy(out.Doctors, s.Doctors)
	copy(out.Appts, s.Appts)
	return out
}

func (s *State) doctorIndex(id string) int {
	for i := range s.Doctors {
		if s.Doctors[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *State) appointmentIndex(id string) int {
	for i := range s.Appts {
		if s.Appts[i].ID == id {
			return i
		}
	}
	return -1
}

// Doctor returns the doctor with the given id.
func (s *State) Doctor(id string) (Doctor, bool) {
	if i := s.doctorIndex(id); i >= 0 {
		return s.Doctors[i], true
	}
	return Doctor{}, false
}

// Appointment returns the appointment with the given id.
func (s *State) Appointment(id string) (Appointment, bool) {
	if i := s.appointmentIndex(id); i >= 0 {
		return s.Appts[i], true
	}
	return Appointment{}, false
}

// DoctorName returns the doctor's name or UnknownDoctor.
func (s *State) DoctorName(id string) string {
	if d, ok := s.Doctor(id); ok {
		return d.Name
	}
	return UnknownDoctor
}

// RemoveDoctor drops the doctor and every appointment that references it.
// It returns the number of appointments removed.
func (s *State) RemoveDoctor(id string) int {
	doctors := s.Doctors[:0:0]
	for _, d := range s.Doctors {
		if d.ID != id {
			doctors = append(doctors, d)
		}
	}
	appts := s.Appts[:0:0]
	for _, a := range s.Appts {
		if a.DoctorID != id {
			appts = append(appts, a)
		}
	}
	removed := len(s.Appts) - len(appts)
	s.Doctors = doctors
	s.Appts = appts
	return removed
}

// Summary holds the header counts.
type Summary struct {
	Doctors      int `json:"doctors"`
	Appointments int `json:"appointments"`
	Scheduled    int `json:"scheduled"`
	Done         int `json:"done"`
	Cancelled    int `json:"cancelled"`
}

func (s *State) Summary() Summary {
	sum := Summary{Doctors: len(s.Doctors), Appointments: len(s.Appts)}
	for _, a := range s.Appts {
		switch a.Status {
		case StatusDone:
			sum.Done++
		case StatusCancelled:
			sum.Cancelled++
		default:
			sum.Scheduled++
		}
	}
	return sum
}
