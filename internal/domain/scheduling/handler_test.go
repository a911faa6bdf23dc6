package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo) {
	t.Helper()
	svc, _, _ := newTestService(t, fixtureState())
	return NewHandler(svc), echo.New()
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func expectHTTPError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if he.Code != status {
		t.Errorf("expected %d, got %d", status, he.Code)
	}
	body, ok := he.Message.(ErrorBody)
	if !ok {
		t.Fatalf("expected ErrorBody message, got %T", he.Message)
	}
	if body.Code != code {
		t.Errorf("expected code %q, got %q", code, body.Code)
	}
}

func TestHandler_AddDoctor(t *testing.T) {
	h, e := newTestHandler(t)

	body := `{"name":"Dr. New","phone":"+44 7700 900003","spec":"GP"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/doctors", body), rec)

	if err := h.AddDoctor(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var res DoctorResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Doctor.Name != "Dr. New" || res.Message != "Doctor added" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_AddDoctor_ShortPhone(t *testing.T) {
	h, e := newTestHandler(t)

	body := `{"name":"Dr. Short","phone":"123","spec":"GP"}`
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/doctors", body), httptest.NewRecorder())

	err := h.AddDoctor(c)
	expectHTTPError(t, err, http.StatusBadRequest, "validation")
	if he := err.(*echo.HTTPError); he.Message.(ErrorBody).Message != "Phone looks too short." {
		t.Errorf("unexpected message %+v", he.Message)
	}
}

func TestHandler_AddDoctor_MalformedBody(t *testing.T) {
	h, e := newTestHandler(t)
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/doctors", `{"name":`), httptest.NewRecorder())

	expectHTTPError(t, h.AddDoctor(c), http.StatusBadRequest, "validation")
}

func TestHandler_GetDoctor(t *testing.T) {
	h, e := newTestHandler(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues("d2")

	if err := h.GetDoctor(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var doc Doctor
	json.Unmarshal(rec.Body.Bytes(), &doc)
	if doc.Name != "Dr. Two" {
		t.Errorf("expected Dr. Two, got %s", doc.Name)
	}
}

func TestHandler_GetDoctor_NotFound(t *testing.T) {
	h, e := newTestHandler(t)

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("nope")

	expectHTTPError(t, h.GetDoctor(c), http.StatusNotFound, "not_found")
}

func TestHandler_UpdateDoctor(t *testing.T) {
	h, e := newTestHandler(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPut, "/", `{"name":"Dr. Uno","phone":"+44 7700 900001","spec":"Dentist"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues("d1")

	if err := h.UpdateDoctor(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if d, _ := h.svc.GetDoctor("d1"); d.Name != "Dr. Uno" {
		t.Errorf("expected rename, got %s", d.Name)
	}
}

func TestHandler_DeleteDoctor_Confirmation(t *testing.T) {
	h, e := newTestHandler(t)

	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("d1")
	expectHTTPError(t, h.DeleteDoctor(c), http.StatusPreconditionRequired, "confirmation_required")

	rec := httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodDelete, "/?confirm=true", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues("d1")
	if err := h.DeleteDoctor(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var res DeleteResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.RemovedAppointments != 2 {
		t.Errorf("expected 2 removed appointments, got %d", res.RemovedAppointments)
	}
}

func TestHandler_ListDoctors_Paginated(t *testing.T) {
	h, e := newTestHandler(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/doctors?limit=1", nil), rec)
	if err := h.ListDoctors(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body struct {
		Data       []Doctor `json:"data"`
		Total      int      `json:"total"`
		HasMore    bool     `json:"has_more"`
		NextOffset *int     `json:"next_offset"`
		PrevOffset *int     `json:"prev_offset"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.Data) != 1 || body.Total != 2 || !body.HasMore {
		t.Errorf("unexpected page %s", rec.Body.String())
	}
	if body.Data[0].ID != "d1" {
		t.Errorf("expected d1 first, got %s", body.Data[0].ID)
	}
	if body.NextOffset == nil || *body.NextOffset != 1 || body.PrevOffset != nil {
		t.Errorf("expected next_offset 1 and no prev_offset, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/doctors?limit=1&offset=1", nil), rec)
	if err := h.ListDoctors(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body.NextOffset, body.PrevOffset = nil, nil
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Data[0].ID != "d2" || body.NextOffset != nil || body.PrevOffset == nil || *body.PrevOffset != 0 {
		t.Errorf("unexpected second page %s", rec.Body.String())
	}
}

func TestHandler_CreateAppointment_Shifted(t *testing.T) {
	h, e := newTestHandler(t)

	body := `{"doctorId":"d1","patient":"Ann","date":"2025-01-02","time":"09:00"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/appointments", body), rec)

	if err := h.CreateAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var res struct {
		Appointment struct {
			Time       string `json:"time"`
			DoctorName string `json:"doctorName"`
		} `json:"appointment"`
		Shifted bool   `json:"shifted"`
		Message string `json:"message"`
	}
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Appointment.Time != "09:30" || !res.Shifted || res.Appointment.DoctorName != "Dr. One" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if res.Message != "Busy → moved to 09:30" {
		t.Errorf("unexpected message %q", res.Message)
	}
}

func TestHandler_CreateAppointment_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"missing field", `{"doctorId":"d1","date":"2025-01-02","time":"09:00"}`, http.StatusBadRequest, "validation"},
		{"bad date", `{"doctorId":"d1","patient":"Ann","date":"02/01/2025","time":"09:00"}`, http.StatusBadRequest, "validation"},
		{"past date", `{"doctorId":"d1","patient":"Ann","date":"2024-12-31","time":"09:00"}`, http.StatusBadRequest, "past_date"},
		{"unknown doctor", `{"doctorId":"ghost","patient":"Ann","date":"2025-01-02","time":"09:00"}`, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, e := newTestHandler(t)
			c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/appointments", tt.body), httptest.NewRecorder())
			expectHTTPError(t, h.CreateAppointment(c), tt.status, tt.code)
		})
	}
}

func TestHandler_MoveAppointment(t *testing.T) {
	h, e := newTestHandler(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/", `{"doctorId":"d1","date":"2025-01-02","time":"09:00"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues("x")

	if err := h.MoveAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res AppointmentResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Appointment.Time != "09:30" || res.Message != "Selected time was busy → moved to 09:30." {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_MoveCancelledAppointment(t *testing.T) {
	h, e := newTestHandler(t)
	h.svc.CancelAppointment(t.Context(), "x")

	c := e.NewContext(jsonRequest(http.MethodPost, "/", `{"doctorId":"d1","date":"2025-01-02","time":"11:00"}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("x")

	expectHTTPError(t, h.MoveAppointment(c), http.StatusConflict, "appointment_cancelled")
}

func TestHandler_StatusCommands(t *testing.T) {
	h, e := newTestHandler(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues("y")
	if err := h.ToggleDone(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a, _ := h.svc.GetAppointment("y"); a.Status != StatusDone {
		t.Errorf("expected done, got %s", a.Status)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("y")
	if err := h.CancelAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a, _ := h.svc.GetAppointment("y"); a.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", a.Status)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("missing")
	expectHTTPError(t, h.ToggleDone(c), http.StatusNotFound, "not_found")
}

func TestHandler_DeleteAppointment(t *testing.T) {
	h, e := newTestHandler(t)

	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/?confirm=1", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("z")
	if err := h.DeleteAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := h.svc.GetAppointment("z"); !errors.Is(err, ErrAppointmentNotFound) {
		t.Error("expected appointment deleted")
	}
}

func TestHandler_ListAppointments(t *testing.T) {
	h, e := newTestHandler(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/appointments?doctor_id=d1", nil), rec)
	if err := h.ListAppointments(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Data  []AppointmentView `json:"data"`
		Total int               `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 2 || body.Data[0].ID != "y" || body.Data[1].ID != "x" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/appointments?status=archived", nil), httptest.NewRecorder())
	expectHTTPError(t, h.ListAppointments(c), http.StatusBadRequest, "validation")
}

func TestHandler_SlotEndpoints(t *testing.T) {
	h, e := newTestHandler(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/slots/free?doctor_id=d1&date=2025-01-02&time=09:00", nil), rec)
	if err := h.FreeSlot(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var free struct {
		Time      string `json:"time"`
		Available bool   `json:"available"`
		Shifted   bool   `json:"shifted"`
	}
	json.Unmarshal(rec.Body.Bytes(), &free)
	if !free.Available || free.Time != "09:30" || !free.Shifted {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/slots/busy?doctor_id=d1&date=2025-01-02", nil), rec)
	if err := h.BusySlots(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var busy struct {
		Busy []string `json:"busy"`
	}
	json.Unmarshal(rec.Body.Bytes(), &busy)
	if len(busy.Busy) != 2 {
		t.Errorf("expected two busy slots, got %v", busy.Busy)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/slots", nil), rec)
	if err := h.ListSlots(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"17:00"`) {
		t.Errorf("expected 17:00 in %s", rec.Body.String())
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/slots/options?date=2025-01-02", nil), httptest.NewRecorder())
	expectHTTPError(t, h.SlotOptions(c), http.StatusBadRequest, "validation")
}

func TestHandler_StatusAndReset(t *testing.T) {
	h, e := newTestHandler(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/status", nil), rec)
	if err := h.Status(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var status struct {
		Busy     bool   `json:"busy"`
		GateMode string `json:"gateMode"`
		Today    string `json:"today"`
	}
	json.Unmarshal(rec.Body.Bytes(), &status)
	if status.Busy || status.GateMode != GateReject || status.Today != today {
		t.Errorf("unexpected status %s", rec.Body.String())
	}

	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/api/v1/state/reset", nil), httptest.NewRecorder())
	expectHTTPError(t, h.Reset(c), http.StatusPreconditionRequired, "confirmation_required")

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodPost, "/api/v1/state/reset?confirm=true", nil), rec)
	if err := h.Reset(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.svc.Summary().Doctors != 1 {
		t.Error("expected seed state after reset")
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, e := newTestHandler(t)
	h.RegisterRoutes(e.Group("/api/v1"))

	want := map[string]bool{
		"GET /api/v1/doctors":                false,
		"DELETE /api/v1/doctors/:id":         false,
		"POST /api/v1/appointments/:id/move": false,
		"GET /api/v1/slots/free":             false,
		"POST /api/v1/state/reset":           false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		if !found {
			t.Errorf("route %s not registered", route)
		}
	}
}

func TestHTTPError_Mapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{ErrDayFull, http.StatusConflict},
		{ErrOperationInFlight, http.StatusConflict},
		{ErrOperationTimeout, http.StatusGatewayTimeout},
		{context.Canceled, StatusClientClosedRequest},
		{fmt.Errorf("save: %w", context.Canceled), StatusClientClosedRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		var he *echo.HTTPError
		if !errors.As(httpError(tt.err), &he) || he.Code != tt.status {
			t.Errorf("%v: expected %d, got %+v", tt.err, tt.status, he)
		}
	}
}

func TestCreateAppointment_CancelledRequest(t *testing.T) {
	h, e := newTestHandler(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := jsonRequest(http.MethodPost, "/api/v1/appointments",
		`{"doctorId":"d1","patient":"Ann","date":"2025-01-02","time":"11:00"}`).WithContext(ctx)
	c := e.NewContext(req, httptest.NewRecorder())

	expectHTTPError(t, h.CreateAppointment(c), StatusClientClosedRequest, "cancelled")
	if n := len(h.svc.ListAppointments(AppointmentFilter{})); n != 3 {
		t.Errorf("cancelled request must not book, got %d appointments", n)
	}
}
