package openapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type testHandler struct{}

func (testHandler) ListDoctors(c echo.Context) error { return nil }
func (testHandler) AddDoctor(c echo.Context) error { return nil }
func (testHandler) DeleteDoctor(c echo.Context) error { return nil }
func (testHandler) ListAppointments(c echo.Context) error { return nil }
func (testHandler) MoveAppointment(c echo.Context) error { return nil }

func newTestGenerator() (*Generator, *echo.Echo) {
	e := echo.New()
	api := e.Group("/api/v1")
	h := testHandler{}
	api.GET("/doctors", h.ListDoctors)
	api.POST("/doctors", h.AddDoctor)
	api.DELETE("/doctors/:id", h.DeleteDoctor)
	api.GET("/appointments", h.ListAppointments)
	api.POST("/appointments/:id/move", h.MoveAppointment)
	e.GET("/health", func(c echo.Context) error { return nil })
	return NewGenerator(e, "1.0.0", "http://localhost:8000"), e
}

func operation(t *testing.T, spec map[string]interface{}, path, method string) map[string]interface{} {
	t.Helper()
	paths := spec["paths"].(map[string]map[string]interface{})
	p, ok := paths[path]
	if !ok {
		t.Fatalf("path %s missing", path)
	}
	op, ok := p[method].(map[string]interface{})
	if !ok {
		t.Fatalf("%s %s missing", method, path)
	}
	return op
}

func TestGenerateSpec_Structure(t *testing.T) {
	g, _ := newTestGenerator()
	spec := g.GenerateSpec()

	if spec["openapi"] != "3.0.3" {
		t.Errorf("expected openapi '3.0.3', got %v", spec["openapi"])
	}
	info := spec["info"].(map[string]interface{})
	if info["version"] != "1.0.0" || info["title"] != "Clinic Scheduling API" {
		t.Errorf("unexpected info %v", info)
	}
	servers := spec["servers"].([]map[string]string)
	if len(servers) != 1 || servers[0]["url"] != "http://localhost:8000" {
		t.Errorf("unexpected servers %v", servers)
	}

	schemas := spec["components"].(map[string]interface{})["schemas"].(map[string]interface{})
	for _, name := range []string{"Doctor", "DoctorInput", "Appointment", "AppointmentInput", "MoveInput", "Theme", "Error"} {
		if _, ok := schemas[name]; !ok {
			t.Errorf("schema %s missing", name)
		}
	}
}

func TestGenerateSpec_Operations(t *testing.T) {
	g, _ := newTestGenerator()
	spec := g.GenerateSpec()

	list := operation(t, spec, "/api/v1/doctors", "get")
	if list["operationId"] != "ListDoctors" {
		t.Errorf("expected ListDoctors, got %v", list["operationId"])
	}
	if tags := list["tags"].([]string); tags[0] != "doctors" {
		t.Errorf("expected doctors tag, got %v", tags)
	}

	add := operation(t, spec, "/api/v1/doctors", "post")
	if _, ok := add["requestBody"]; !ok {
		t.Error("expected request body on AddDoctor")
	}

	del := operation(t, spec, "/api/v1/doctors/{id}", "delete")
	params := del["parameters"].([]map[string]interface{})
	if len(params) != 2 || params[0]["name"] != "id" || params[0]["in"] != "path" || params[1]["name"] != "confirm" {
		t.Errorf("unexpected delete params %v", params)
	}

	move := operation(t, spec, "/api/v1/appointments/{id}/move", "post")
	body := move["requestBody"].(map[string]interface{})
	schema := body["content"].(map[string]interface{})[echo.MIMEApplicationJSON].(map[string]interface{})["schema"].(map[string]interface{})
	if schema["$ref"] != "#/components/schemas/MoveInput" {
		t.Errorf("unexpected move schema %v", schema)
	}

	appts := operation(t, spec, "/api/v1/appointments", "get")
	if n := len(appts["parameters"].([]map[string]interface{})); n != 5 {
		t.Errorf("expected 5 list params, got %d", n)
	}

	health := operation(t, spec, "/health", "get")
	if health["operationId"] != "get_health" {
		t.Errorf("expected fallback id for closure, got %v", health["operationId"])
	}
}

func TestConvertPath(t *testing.T) {
	path, params := convertPath("/api/v1/appointments/:id/move")
	if path != "/api/v1/appointments/{id}/move" {
		t.Errorf("unexpected path %s", path)
	}
	if len(params) != 1 || params[0] != "id" {
		t.Errorf("unexpected params %v", params)
	}
}

func TestTagFor(t *testing.T) {
	tests := map[string]string{
		"/api/v1/slots/free":        "slots",
		"/api/v1/preferences/theme": "preferences",
		"/api/v1/summary":           "summary",
		"/health":                   "health",
		"/api/v1":                   "root",
	}
	for path, want := range tests {
		if got := tagFor(path); got != want {
			t.Errorf("tagFor(%s) = %s, want %s", path, got, want)
		}
	}
}

func TestRegisterRoutes(t *testing.T) {
	g, e := newTestGenerator()
	g.RegisterRoutes(e.Group("/api/v1"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/openapi.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	paths := doc["paths"].(map[string]interface{})
	if _, ok := paths["/api/v1/openapi.json"]; !ok {
		t.Error("expected the document to list itself")
	}
}
