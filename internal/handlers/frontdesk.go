package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/frontdesk/internal/booking"
	"github.com/md-rashed-zaman/frontdesk/internal/capacity"
	"github.com/md-rashed-zaman/frontdesk/internal/checkin"
	"github.com/md-rashed-zaman/frontdesk/internal/model"
	"github.com/md-rashed-zaman/frontdesk/internal/notify"
	"github.com/md-rashed-zaman/frontdesk/internal/recurrence"
)

type DayStore interface {
	Get(ctx context.Context, date time.Time) (model.ServiceDay, bool, error)
	Upsert(ctx context.Context, day model.ServiceDay) error
}

type LeadCreator interface {
	Create(ctx context.Context, lead *model.Lead) (string, error)
}

type AppointmentGetter interface {
	Get(ctx context.Context, id string) (model.Appointment, bool, error)
}

type Booker interface {
	Book(ctx context.Context, req booking.Request) (model.Appointment, error)
}

type Workflow interface {
	Confirm(ctx context.Context, id string) error
	MarkAttendance(ctx context.Context, id string, outcome model.Attendance) error
	CheckIn(ctx context.Context, payload []byte) (bool, error)
}

type CountersSource interface {
	Counters() notify.Counters
	Loading() bool
}

// FrontdeskHandler serves the console front end: hour occupancy, recurring
// course previews, booking, the check-in workflow, and the alert counters.
type FrontdeskHandler struct {
	ledger   *capacity.Ledger
	days     DayStore
	leads    LeadCreator
	appts    AppointmentGetter
	booker   Booker
	workflow Workflow
	counters CountersSource
	logger   *slog.Logger
}

func NewFrontdeskHandler(
	ledger *capacity.Ledger,
	days DayStore,
	leads LeadCreator,
	appts AppointmentGetter,
	booker Booker,
	workflow Workflow,
	counters CountersSource,
	logger *slog.Logger,
) *FrontdeskHandler {
	return &FrontdeskHandler{
		ledger:   ledger,
		days:     days,
		leads:    leads,
		appts:    appts,
		booker:   booker,
		workflow: workflow,
		counters: counters,
		logger:   logger,
	}
}

func (h *FrontdeskHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/capacity", h.Capacity)
	mux.HandleFunc("/api/v1/occurrences", h.Occurrences)
	mux.HandleFunc("/api/v1/leads", h.CreateLead)
	mux.HandleFunc("/api/v1/appointments", h.Book)
	mux.HandleFunc("/api/v1/appointments/confirm", h.Confirm)
	mux.HandleFunc("/api/v1/appointments/attendance", h.Attendance)
	mux.HandleFunc("/api/v1/appointments/badge", h.Badge)
	mux.HandleFunc("/api/v1/checkin", h.CheckIn)
	mux.HandleFunc("/api/v1/notifications", h.Notifications)
	mux.HandleFunc("/api/v1/service-days", h.UpsertServiceDay)
}

type hourCountItem struct {
	Hour      string `json:"hour"`
	Count     int    `json:"count"`
	IsWarning bool   `json:"is_warning"`
	IsFull    bool   `json:"is_full"`
}

func (h *FrontdeskHandler) Capacity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	date, ok := parseDateParam(w, r, "date")
	if !ok {
		return
	}

	maxPerHour := capacity.DefaultMaxPerHour
	day, found, err := h.days.Get(r.Context(), date)
	if err != nil {
		h.internalError(w, "load service day", err)
		return
	}
	if found {
		maxPerHour = day.EffectiveMaxPerHour(capacity.DefaultMaxPerHour)
	}

	counts, err := h.ledger.ComputeHourCounts(r.Context(), date, maxPerHour)
	if err != nil {
		h.internalError(w, "compute hour counts", err)
		return
	}

	items := make([]hourCountItem, 0, len(counts))
	for _, c := range counts {
		items = append(items, hourCountItem{Hour: c.Hour, Count: c.Count, IsWarning: c.IsWarning, IsFull: c.IsFull})
	}
	writeJSON(w, http.StatusOK, items)
}

type occurrenceItem struct {
	CourseID string `json:"course_id"`
	Date     string `json:"date"`
	Weekday  string `json:"weekday"`
	Start    string `json:"start"`
	End      string `json:"end"`
}

func (h *FrontdeskHandler) Occurrences(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	start, ok := parseDateParam(w, r, "start")
	if !ok {
		return
	}
	weekday, err := parseWeekday(r.URL.Query().Get("weekday"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	durationHours := 1
	if v := strings.TrimSpace(r.URL.Query().Get("duration_hours")); v != "" {
		if v != "1" && v != "2" {
			http.Error(w, "duration_hours must be 1 or 2", http.StatusBadRequest)
			return
		}
		if v == "2" {
			durationHours = 2
		}
	}
	courseID := strings.TrimSpace(r.URL.Query().Get("course_id"))
	startSlot := strings.TrimSpace(r.URL.Query().Get("start_slot"))

	occs, err := recurrence.Occurrences(courseID, start, weekday, startSlot, time.Duration(durationHours)*time.Hour)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	items := make([]occurrenceItem, 0, len(occs))
	for _, o := range occs {
		items = append(items, occurrenceItem{
			CourseID: o.CourseID,
			Date:     o.Date.Format("2006-01-02"),
			Weekday:  strings.ToLower(o.Weekday.String()),
			Start:    o.Start.Format("15:04"),
			End:      o.End.Format("15:04"),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

type createLeadRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (h *FrontdeskHandler) CreateLead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	lead := model.Lead{
		ID:     uuid.NewString(),
		Name:   req.Name,
		Email:  strings.TrimSpace(req.Email),
		Phone:  strings.TrimSpace(req.Phone),
		Status: model.LeadStatusNew,
	}
	id, err := h.leads.Create(r.Context(), &lead)
	if err != nil {
		h.internalError(w, "create lead", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"lead_id": id})
}

type bookRequest struct {
	LeadID        string `json:"lead_id"`
	AgentID       string `json:"agent_id"`
	ServiceDate   string `json:"service_date"`
	ScheduledHour string `json:"scheduled_hour"`
	Notes         string `json:"notes"`
}

func (h *FrontdeskHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	date, err := time.Parse("2006-01-02", strings.TrimSpace(req.ServiceDate))
	if err != nil {
		http.Error(w, "invalid service_date", http.StatusBadRequest)
		return
	}

	appt, err := h.booker.Book(r.Context(), booking.Request{
		LeadID:        req.LeadID,
		AgentID:       req.AgentID,
		ServiceDate:   date,
		ScheduledHour: strings.TrimSpace(req.ScheduledHour),
		Notes:         req.Notes,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"appointment_id": appt.ID})
}

type appointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

func (h *FrontdeskHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req appointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	if err := h.workflow.Confirm(r.Context(), req.AppointmentID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"appointment_id": req.AppointmentID, "status": "confirmed"})
}

type attendanceRequest struct {
	AppointmentID string `json:"appointment_id"`
	Outcome       string `json:"outcome"`
}

func (h *FrontdeskHandler) Attendance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req attendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}
	outcome, err := model.ParseAttendance(strings.TrimSpace(req.Outcome))
	if err != nil || !outcome.Terminal() {
		http.Error(w, "outcome must be attended or no-show", http.StatusBadRequest)
		return
	}

	if err := h.workflow.MarkAttendance(r.Context(), req.AppointmentID, outcome); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"appointment_id": req.AppointmentID, "outcome": outcome.String()})
}

type checkInRequest struct {
	Payload string `json:"payload"`
}

// CheckIn relays one scanned payload from the console's scanning surface.
// Unrelated codes are acknowledged without error so the scanner keeps going.
func (h *FrontdeskHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req checkInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	handled, err := h.workflow.CheckIn(r.Context(), []byte(req.Payload))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"handled": handled})
}

func (h *FrontdeskHandler) Badge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("appointment_id"))
	if id == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}
	_, found, err := h.appts.Get(r.Context(), id)
	if err != nil {
		h.internalError(w, "load appointment", err)
		return
	}
	if !found {
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	}

	png, err := checkin.TokenPNG(id, 256)
	if err != nil {
		h.internalError(w, "render badge", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

type notificationsResponse struct {
	Loading  bool            `json:"loading"`
	Counters notify.Counters `json:"counters"`
}

func (h *FrontdeskHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, notificationsResponse{
		Loading:  h.counters.Loading(),
		Counters: h.counters.Counters(),
	})
}

type serviceDayRequest struct {
	ServiceDate string `json:"service_date"`
	Active      bool   `json:"active"`
	MaxPerHour  int    `json:"max_per_hour"`
}

func (h *FrontdeskHandler) UpsertServiceDay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req serviceDayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	date, err := time.Parse("2006-01-02", strings.TrimSpace(req.ServiceDate))
	if err != nil {
		http.Error(w, "invalid service_date", http.StatusBadRequest)
		return
	}
	if req.MaxPerHour < 0 {
		http.Error(w, "max_per_hour must not be negative", http.StatusBadRequest)
		return
	}

	day := model.ServiceDay{
		Date:       date,
		Active:     req.Active,
		MaxPerHour: req.MaxPerHour,
		Weekday:    strings.ToLower(date.Weekday().String()),
	}
	if err := h.days.Upsert(r.Context(), day); err != nil {
		h.internalError(w, "upsert service day", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"service_date": req.ServiceDate})
}

func (h *FrontdeskHandler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkin.ErrNotFound), errors.Is(err, checkin.ErrInvalidToken):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, checkin.ErrPreconditionFailed), errors.Is(err, booking.ErrDayUnavailable):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, checkin.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, booking.ErrInvalidSlot):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.internalError(w, "request failed", err)
	}
}

func (h *FrontdeskHandler) internalError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func parseDateParam(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		http.Error(w, name+" is required", http.StatusBadRequest)
		return time.Time{}, false
	}
	date, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid %s", name), http.StatusBadRequest)
		return time.Time{}, false
	}
	return date, true
}

func parseWeekday(raw string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sunday":
		return time.Sunday, nil
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday":
		return time.Saturday, nil
	default:
		return time.Sunday, fmt.Errorf("invalid weekday %q", raw)
	}
}
