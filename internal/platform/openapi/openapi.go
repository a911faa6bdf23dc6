package openapi

import (
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

// RouteLister is satisfied by *echo.Echo.
type RouteLister interface {
	Routes() []*echo.Route
}

// Generator builds an OpenAPI 3.0 document from the routes registered on
// the server at the time of the request.
type Generator struct {
	routes  RouteLister
	version string
	baseURL string
}

// NewGenerator creates a new OpenAPI document generator.
func NewGenerator(routes RouteLister, version, baseURL string) *Generator {
	return &Generator{routes: routes, version: version, baseURL: baseURL}
}

var documentedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
}

// request bodies by operation id
var requestSchemas = map[string]string{
	"AddDoctor":         "DoctorInput",
	"UpdateDoctor":      "DoctorInput",
	"CreateAppointment": "AppointmentInput",
	"MoveAppointment":   "MoveInput",
	"SetTheme":          "Theme",
}

var pageParams = []string{"limit", "offset"}

// query parameters by operation id
var queryParams = map[string][]string{
	"ListDoctors":       pageParams,
	"ListAppointments":  append([]string{"doctor_id", "date", "status"}, pageParams...),
	"BusySlots":         {"doctor_id", "date", "exclude"},
	"FreeSlot":          {"doctor_id", "date", "time", "exclude"},
	"SlotOptions":       {"doctor_id", "date", "exclude"},
	"DeleteDoctor":      {"confirm"},
	"DeleteAppointment": {"confirm"},
	"Reset":             {"confirm"},
	"HandleConnect":     {"topics"},
}

// GenerateSpec produces the OpenAPI 3.0 document as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	paths := make(map[string]map[string]interface{})

	routes := g.routes.Routes()
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})

	for _, r := range routes {
		if !documentedMethods[r.Method] {
			continue
		}
		path, pathParams := convertPath(r.Path)
		opID := operationID(r)

		op := map[string]interface{}{
			"operationId": opID,
			"tags":        []string{tagFor(r.Path)},
			"responses":   buildResponses(r.Method),
		}

		var params []map[string]interface{}
		for _, p := range pathParams {
			params = append(params, map[string]interface{}{
				"name": p, "in": "path", "required": true, "schema": map[string]string{"type": "string"},
			})
		}
		for _, q := range queryParams[opID] {
			params = append(params, map[string]interface{}{
				"name": q, "in": "query", "required": false, "schema": querySchema(q),
			})
		}
		if len(params) > 0 {
			op["parameters"] = params
		}
		if schema, ok := requestSchemas[opID]; ok {
			op["requestBody"] = buildRequestBody(schema)
		}

		if paths[path] == nil {
			paths[path] = make(map[string]interface{})
		}
		paths[path][strings.ToLower(r.Method)] = op
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "Clinic Scheduling API",
			"version":     g.version,
			"description": "Doctors, appointments and slot allocation",
		},
		"servers": []map[string]string{
			{"url": g.baseURL},
		},
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": buildComponentSchemas(),
		},
	}
}

// convertPath turns echo's :param segments into {param}.
func convertPath(path string) (string, []string) {
	segments := strings.Split(path, "/")
	var params []string
	for i, s := range segments {
		if strings.HasPrefix(s, ":") {
			params = append(params, s[1:])
			segments[i] = "{" + s[1:] + "}"
		}
	}
	return strings.Join(segments, "/"), params
}

// operationID derives the id from the handler method name, e.g.
// "pkg.(*Handler).ListDoctors-fm" gives "ListDoctors". Closures fall back to
// method and path.
func operationID(r *echo.Route) string {
	name := strings.TrimSuffix(r.Name, "-fm")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || strings.HasPrefix(name, "func") {
		name = strings.ToLower(r.Method) + strings.NewReplacer("/", "_", ":", "").Replace(r.Path)
	}
	return name
}

func tagFor(path string) string {
	rest := strings.TrimPrefix(path, "/api/v1")
	rest = strings.TrimPrefix(rest, "/")
	if i := strings.Index(rest, "/"); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "root"
	}
	return rest
}

func querySchema(name string) map[string]interface{} {
	switch name {
	case "limit", "offset":
		return map[string]interface{}{"type": "integer", "minimum": 0}
	case "confirm":
		return map[string]interface{}{"type": "boolean"}
	case "date":
		return map[string]interface{}{"type": "string", "format": "date"}
	case "status":
		return map[string]interface{}{"type": "string", "enum": []string{"scheduled", "done", "cancelled"}}
	default:
		return map[string]interface{}{"type": "string"}
	}
}

func buildRequestBody(schema string) map[string]interface{} {
	return map[string]interface{}{
		"required": true,
		"content": map[string]interface{}{
			echo.MIMEApplicationJSON: map[string]interface{}{
				"schema": map[string]interface{}{"$ref": "#/components/schemas/" + schema},
			},
		},
	}
}

func buildResponses(method string) map[string]interface{} {
	ok := "200"
	if method == http.MethodPost {
		ok = "2XX"
	}
	return map[string]interface{}{
		ok: map[string]interface{}{"description": "Success"},
		"default": map[string]interface{}{
			"description": "Error",
			"content": map[string]interface{}{
				echo.MIMEApplicationJSON: map[string]interface{}{
					"schema": map[string]interface{}{"$ref": "#/components/schemas/Error"},
				},
			},
		},
	}
}

func str() map[string]interface{} { return map[string]interface{}{"type": "string"} }

func object(required []string, props map[string]interface{}) map[string]interface{} {
	s := map[string]interface{}{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func buildComponentSchemas() map[string]interface{} {
	date := map[string]interface{}{"type": "string", "format": "date"}
	slot := map[string]interface{}{"type": "string", "pattern": `^\d{2}:\d{2}$`}

	return map[string]interface{}{
		"Doctor": object([]string{"id", "name", "phone", "spec"}, map[string]interface{}{
			"id": str(), "name": str(), "phone": str(), "spec": str(),
		}),
		"DoctorInput": object([]string{"name", "phone", "spec"}, map[string]interface{}{
			"name": str(), "phone": str(), "spec": str(),
		}),
		"Appointment": object([]string{"id", "doctorId", "patient", "date", "time", "status"}, map[string]interface{}{
			"id": str(), "doctorId": str(), "patient": str(), "date": date, "time": slot,
			"status":     querySchema("status"),
			"doctorName": str(),
		}),
		"AppointmentInput": object([]string{"doctorId", "patient", "date", "time"}, map[string]interface{}{
			"doctorId": str(), "patient": str(), "date": date, "time": slot,
		}),
		"MoveInput": object([]string{"doctorId", "date", "time"}, map[string]interface{}{
			"doctorId": str(), "date": date, "time": slot,
		}),
		"Theme": object([]string{"theme"}, map[string]interface{}{
			"theme": map[string]interface{}{"type": "string", "enum": []string{"light", "dark"}},
		}),
		"Error": object([]string{"message"}, map[string]interface{}{
			"message": str(), "code": str(),
		}),
	}
}

// RegisterRoutes registers the OpenAPI endpoint.
func (g *Generator) RegisterRoutes(apiGroup *echo.Group) {
	apiGroup.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
}
