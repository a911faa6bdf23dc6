package scheduling

import (
	"fmt"
	"sort"
)

const (
	firstHour = 9
	lastHour  = 17
)

var dailySlots = makeSlots()

// 09:00, 09:30 ... 16:30, 17:00
func makeSlots() []string {
	var out []string
	for h := firstHour; h <= lastHour; h++ {
		out = append(out, fmt.Sprintf("%02d:00", h))
		if h != lastHour {
			out = append(out, fmt.Sprintf("%02d:30", h))
		}
	}
	return out
}

// DailySlots returns the fixed slot sequence of a working day.
func DailySlots() []string {
	out := make([]string, len(dailySlots))
	copy(out, dailySlots)
	return out
}

// IsSlot reports whether t is one of the daily slots.
func IsSlot(t string) bool {
	return indexOf(dailySlots, t) >= 0
}

func indexOf(slots []string, t string) int {
	for i, s := range slots {
		if s == t {
			return i
		}
	}
	return -1
}

// occupies reports whether a blocks slot t of doctorID on date. The
// appointment named by excludeID never blocks anything.
func occupies(a Appointment, doctorID, date, t, excludeID string) bool {
	return a.ID != excludeID &&
		a.DoctorID == doctorID &&
		a.Date == date &&
		a.Time == t &&
		a.Active()
}

// FindFreeSlot returns the first slot at or after requested that no active
// appointment of doctorID on date occupies. A requested time outside slots
// starts the scan at the first slot. The scan never wraps; ok is false when
// the rest of the day is taken.
func FindFreeSlot(doctorID, date, requested string, slots []string, appts []Appointment, excludeID string) (string, bool) {
	start := indexOf(slots, requested)
	if start < 0 {
		start = 0
	}
	for _, t := range slots[start:] {
		busy := false
		for _, a := range appts {
			if occupies(a, doctorID, date, t, excludeID) {
				busy = true
				break
			}
		}
		if !busy {
			return t, true
		}
	}
	return "", false
}

// BusySet returns every time occupied for doctorID on date.
func BusySet(doctorID, date string, appts []Appointment, excludeID string) map[string]bool {
	set := make(map[string]bool)
	for _, a := range appts {
		if a.ID != excludeID && a.DoctorID == doctorID && a.Date == date && a.Active() {
			set[a.Time] = true
		}
	}
	return set
}

// SlotOption is one entry of a time picker.
type SlotOption struct {
	Time    string `json:"time"`
	Busy    bool   `json:"busy"`
	Current bool   `json:"current"`
}

// SlotOptions lists slots for doctorID on date with their busy flag. When
// excludeID names an appointment on that doctor and date, its own slot is
// marked current and never busy.
func SlotOptions(doctorID, date string, slots []string, appts []Appointment, excludeID string) []SlotOption {
	busy := BusySet(doctorID, date, appts, excludeID)

	current := ""
	if excludeID != "" {
		for _, a := range appts {
			if a.ID == excludeID && a.DoctorID == doctorID && a.Date == date {
				current = a.Time
				break
			}
		}
	}

	out := make([]SlotOption, len(slots))
	for i, t := range slots {
		out[i] = SlotOption{Time: t, Busy: busy[t], Current: t == current}
	}
	return out
}

// sortAppointments orders by date, then time. Ties keep their stored order.
func sortAppointments(appts []Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		if appts[i].Date != appts[j].Date {
			return appts[i].Date < appts[j].Date
		}
		return appts[i].Time < appts[j].Time
	})
}
