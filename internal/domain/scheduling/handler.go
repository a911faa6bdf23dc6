package scheduling

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/doctors", h.ListDoctors)
	api.POST("/doctors", h.AddDoctor)
	api.GET("/doctors/:id", h.GetDoctor)
	api.PUT("/doctors/:id", h.UpdateDoctor)
	api.DELETE("/doctors/:id", h.DeleteDoctor)

	api.GET("/appointments", h.ListAppointments)
	api.POST("/appointments", h.CreateAppointment)
	api.GET("/appointments/:id", h.GetAppointment)
	api.POST("/appointments/:id/move", h.MoveAppointment)
	api.POST("/appointments/:id/done", h.ToggleDone)
	api.POST("/appointments/:id/cancel", h.CancelAppointment)
	api.DELETE("/appointments/:id", h.DeleteAppointment)

	api.GET("/slots", h.ListSlots)
	api.GET("/slots/busy", h.BusySlots)
	api.GET("/slots/free", h.FreeSlot)
	api.GET("/slots/options", h.SlotOptions)

	api.GET("/summary", h.Summary)
	api.GET("/status", h.Status)
	api.POST("/state/reset", h.Reset)
}

// StatusClientClosedRequest is returned when the caller went away before the
// command ran. It is a client status, so it logs at warn.
const StatusClientClosedRequest = 499

// ErrorBody is the JSON body of every failed request.
type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// httpError maps service errors onto HTTP statuses.
func httpError(err error) error {
	msg := UserMessage(err)
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ErrorBody{Message: msg, Code: "validation"})
	case errors.Is(err, ErrConfirmationRequired):
		return echo.NewHTTPError(http.StatusPreconditionRequired, ErrorBody{Message: msg, Code: "confirmation_required"})
	case errors.Is(err, ErrDoctorNotFound), errors.Is(err, ErrAppointmentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, ErrorBody{Message: msg, Code: "not_found"})
	case errors.Is(err, ErrPastDate):
		return echo.NewHTTPError(http.StatusBadRequest, ErrorBody{Message: msg, Code: "past_date"})
	case errors.Is(err, ErrDayFull):
		return echo.NewHTTPError(http.StatusConflict, ErrorBody{Message: msg, Code: "day_full"})
	case errors.Is(err, ErrAppointmentCancelled):
		return echo.NewHTTPError(http.StatusConflict, ErrorBody{Message: msg, Code: "appointment_cancelled"})
	case errors.Is(err, ErrOperationInFlight):
		return echo.NewHTTPError(http.StatusConflict, ErrorBody{Message: msg, Code: "operation_in_flight"})
	case errors.Is(err, ErrOperationTimeout):
		return echo.NewHTTPError(http.StatusGatewayTimeout, ErrorBody{Message: msg, Code: "timeout"})
	case errors.Is(err, context.Canceled):
		return echo.NewHTTPError(StatusClientClosedRequest, ErrorBody{Message: "request cancelled", Code: "cancelled"})
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, ErrorBody{Message: "internal server error"}).SetInternal(err)
	}
}

func confirmed(c echo.Context) bool {
	ok, _ := strconv.ParseBool(c.QueryParam("confirm"))
	return ok
}

// -- Doctor Handlers --

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	items := h.svc.ListDoctors()
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Page(items, pg), len(items), pg.Limit, pg.Offset))
}

func (h *Handler) AddDoctor(c echo.Context) error {
	var in DoctorInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, ErrorBody{Message: "invalid request body", Code: "validation"})
	}
	res, err := h.svc.AddDoctor(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	doc, err := h.svc.GetDoctor(c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	var in DoctorInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, ErrorBody{Message: "invalid request body", Code: "validation"})
	}
	res, err := h.svc.UpdateDoctor(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	res, err := h.svc.DeleteDoctor(c.Request().Context(), c.Param("id"), confirmed(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// -- Appointment Handlers --

func (h *Handler) ListAppointments(c echo.Context) error {
	f := AppointmentFilter{
		DoctorID: c.QueryParam("doctor_id"),
		Date:     c.QueryParam("date"),
		Status:   c.QueryParam("status"),
	}
	switch f.Status {
	case "", StatusScheduled, StatusDone, StatusCancelled:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, ErrorBody{Message: "invalid status: " + f.Status, Code: "validation"})
	}

	pg := pagination.FromContext(c)
	items := h.svc.ListAppointments(f)
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Page(items, pg), len(items), pg.Limit, pg.Offset))
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var in AppointmentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, ErrorBody{Message: "invalid request body", Code: "validation"})
	}
	res, err := h.svc.CreateAppointment(c.Request().Context(), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	a, err := h.svc.GetAppointment(c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) MoveAppointment(c echo.Context) error {
	var in MoveInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, ErrorBody{Message: "invalid request body", Code: "validation"})
	}
	res, err := h.svc.MoveAppointment(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ToggleDone(c echo.Context) error {
	res, err := h.svc.ToggleDone(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	res, err := h.svc.CancelAppointment(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	res, err := h.svc.DeleteAppointment(c.Request().Context(), c.Param("id"), confirmed(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// -- Slot Handlers --

func (h *Handler) ListSlots(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"slots": DailySlots()})
}

func doctorAndDate(c echo.Context) (string, string, error) {
	doctorID, date := c.QueryParam("doctor_id"), c.QueryParam("date")
	if doctorID == "" || date == "" {
		return "", "", echo.NewHTTPError(http.StatusBadRequest, ErrorBody{Message: "doctor_id and date are required", Code: "validation"})
	}
	return doctorID, date, nil
}

func (h *Handler) BusySlots(c echo.Context) error {
	doctorID, date, err := doctorAndDate(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"doctorId": doctorID,
		"date":     date,
		"busy":     h.svc.BusySlots(doctorID, date, c.QueryParam("exclude")),
	})
}

func (h *Handler) FreeSlot(c echo.Context) error {
	doctorID, date, err := doctorAndDate(c)
	if err != nil {
		return err
	}
	requested := c.QueryParam("time")
	slot, ok := h.svc.NextFreeSlot(doctorID, date, requested, c.QueryParam("exclude"))
	resp := map[string]interface{}{
		"doctorId":      doctorID,
		"date":          date,
		"requestedTime": requested,
		"available":     ok,
	}
	if ok {
		resp["time"] = slot
		resp["shifted"] = slot != requested
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) SlotOptions(c echo.Context) error {
	doctorID, date, err := doctorAndDate(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"doctorId": doctorID,
		"date":     date,
		"options":  h.svc.SlotOptions(doctorID, date, c.QueryParam("exclude")),
	})
}

// -- State Handlers --

func (h *Handler) Summary(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Summary())
}

func (h *Handler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"busy":     h.svc.Busy(),
		"gateMode": h.svc.GateMode(),
		"today":    h.svc.Today(),
	})
}

func (h *Handler) Reset(c echo.Context) error {
	res, err := h.svc.Reset(c.Request().Context(), confirmed(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}
