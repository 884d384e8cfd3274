package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/frontdesk/internal/booking"
	"github.com/md-rashed-zaman/frontdesk/internal/capacity"
	"github.com/md-rashed-zaman/frontdesk/internal/checkin"
	"github.com/md-rashed-zaman/frontdesk/internal/model"
	"github.com/md-rashed-zaman/frontdesk/internal/notify"
)

type fakeAppts struct {
	byID    map[string]model.Appointment
	created []model.Appointment
}

func (f *fakeAppts) Get(_ context.Context, id string) (model.Appointment, bool, error) {
	appt, ok := f.byID[id]
	return appt, ok, nil
}

func (f *fakeAppts) Create(_ context.Context, appt *model.Appointment) (string, error) {
	f.created = append(f.created, *appt)
	return appt.ID, nil
}

func (f *fakeAppts) ListByServiceDate(_ context.Context, _ time.Time) ([]model.Appointment, error) {
	out := make([]model.Appointment, 0, len(f.byID))
	for _, appt := range f.byID {
		out = append(out, appt)
	}
	return append(out, f.created...), nil
}

type fakeDays struct {
	day      model.ServiceDay
	found    bool
	upserted []model.ServiceDay
}

func (f *fakeDays) Get(_ context.Context, _ time.Time) (model.ServiceDay, bool, error) {
	return f.day, f.found, nil
}

func (f *fakeDays) Upsert(_ context.Context, day model.ServiceDay) error {
	f.upserted = append(f.upserted, day)
	return nil
}

type fakeLeads struct {
	created []model.Lead
}

func (f *fakeLeads) Create(_ context.Context, lead *model.Lead) (string, error) {
	f.created = append(f.created, *lead)
	return lead.ID, nil
}

type fakeWorkflow struct {
	confirmErr    error
	attendanceErr error
	checkInOK     bool
	checkInErr    error
	lastOutcome   model.Attendance
}

func (f *fakeWorkflow) Confirm(context.Context, string) error { return f.confirmErr }

func (f *fakeWorkflow) MarkAttendance(_ context.Context, _ string, outcome model.Attendance) error {
	f.lastOutcome = outcome
	return f.attendanceErr
}

func (f *fakeWorkflow) CheckIn(context.Context, []byte) (bool, error) {
	return f.checkInOK, f.checkInErr
}

type fakeCounters struct {
	counters notify.Counters
	loading  bool
}

func (f *fakeCounters) Counters() notify.Counters { return f.counters }
func (f *fakeCounters) Loading() bool             { return f.loading }

type fixture struct {
	handler  *FrontdeskHandler
	appts    *fakeAppts
	days     *fakeDays
	leads    *fakeLeads
	workflow *fakeWorkflow
	counters *fakeCounters
}

func newFixture() *fixture {
	appts := &fakeAppts{byID: map[string]model.Appointment{}}
	days := &fakeDays{day: model.ServiceDay{Active: true}, found: true}
	leads := &fakeLeads{}
	workflow := &fakeWorkflow{}
	counters := &fakeCounters{}
	ledger := capacity.NewLedger(appts)
	booker := booking.NewService(appts, days, ledger, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := NewFrontdeskHandler(ledger, days, leads, appts, booker, workflow, counters, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return &fixture{handler: h, appts: appts, days: days, leads: leads, workflow: workflow, counters: counters}
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestCapacity(t *testing.T) {
	f := newFixture()
	f.days.day = model.ServiceDay{Active: true, MaxPerHour: 10}
	for i := 0; i < 10; i++ {
		id := "a" + string(rune('0'+i))
		f.appts.byID[id] = model.Appointment{ID: id, ScheduledHour: "10:00"}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/capacity?date=2024-07-01", nil)
	rec := httptest.NewRecorder()
	f.handler.Capacity(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var items []hourCountItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != len(capacity.CommercialHours) {
		t.Fatalf("expected %d slots, got %d", len(capacity.CommercialHours), len(items))
	}
	if !items[1].IsFull || items[1].Count != 10 {
		t.Fatalf("10:00 slot should be full at the day's override: %+v", items[1])
	}
}

func TestCapacity_MissingDate(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/capacity", nil)
	rec := httptest.NewRecorder()
	f.handler.Capacity(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestOccurrences(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/occurrences?course_id=c1&start=2024-07-01&weekday=monday&start_slot=14:00&duration_hours=2", nil)
	rec := httptest.NewRecorder()
	f.handler.Occurrences(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var items []occurrenceItem
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 8 {
		t.Fatalf("expected 8 occurrences, got %d", len(items))
	}
	if items[0].Date != "2024-07-01" || items[0].End != "16:00" {
		t.Fatalf("unexpected first occurrence: %+v", items[0])
	}
	if items[7].Date != "2024-08-19" {
		t.Fatalf("unexpected last occurrence: %+v", items[7])
	}
}

func TestOccurrences_IneligibleSlot(t *testing.T) {
	f := newFixture()
	// A two-hour offering cannot start at the last commercial slot.
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/occurrences?start=2024-07-01&weekday=monday&start_slot=16:00&duration_hours=2", nil)
	rec := httptest.NewRecorder()
	f.handler.Occurrences(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestCreateLead(t *testing.T) {
	f := newFixture()
	rec := postJSON(t, f.handler.CreateLead, "/api/v1/leads", createLeadRequest{Name: "  Dana  ", Email: "d@x.io"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if len(f.leads.created) != 1 {
		t.Fatalf("created %d leads", len(f.leads.created))
	}
	lead := f.leads.created[0]
	if lead.Name != "Dana" || lead.Status != model.LeadStatusNew || lead.ID == "" {
		t.Fatalf("unexpected lead: %+v", lead)
	}
}

func TestBook(t *testing.T) {
	f := newFixture()
	rec := postJSON(t, f.handler.Book, "/api/v1/appointments", bookRequest{
		LeadID:        "lead-1",
		AgentID:       "agent-1",
		ServiceDate:   "2024-07-01",
		ScheduledHour: "09:00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if len(f.appts.created) != 1 {
		t.Fatalf("created %d appointments", len(f.appts.created))
	}
}

func TestBook_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		prep func(f *fixture)
		req  bookRequest
		want int
	}{
		{
			name: "inactive day",
			prep: func(f *fixture) { f.days.day.Active = false },
			req:  bookRequest{LeadID: "l", AgentID: "a", ServiceDate: "2024-07-01", ScheduledHour: "09:00"},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "invalid slot",
			prep: func(f *fixture) {},
			req:  bookRequest{LeadID: "l", AgentID: "a", ServiceDate: "2024-07-01", ScheduledHour: "17:00"},
			want: http.StatusBadRequest,
		},
		{
			name: "bad date",
			prep: func(f *fixture) {},
			req:  bookRequest{LeadID: "l", AgentID: "a", ServiceDate: "July 1st", ScheduledHour: "09:00"},
			want: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.prep(f)
			rec := postJSON(t, f.handler.Book, "/api/v1/appointments", tt.req)
			if rec.Code != tt.want {
				t.Fatalf("status %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestConfirm_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusOK},
		{"not found", checkin.ErrNotFound, http.StatusNotFound},
		{"terminal", checkin.ErrInvalidTransition, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.workflow.confirmErr = tt.err
			rec := postJSON(t, f.handler.Confirm, "/api/v1/appointments/confirm", appointmentRequest{AppointmentID: "a1"})
			if rec.Code != tt.want {
				t.Fatalf("status %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAttendance(t *testing.T) {
	f := newFixture()
	rec := postJSON(t, f.handler.Attendance, "/api/v1/appointments/attendance", attendanceRequest{
		AppointmentID: "a1", Outcome: "no-show",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if f.workflow.lastOutcome != model.AttendanceNoShow {
		t.Fatalf("outcome %v", f.workflow.lastOutcome)
	}
}

func TestAttendance_RejectsUnknownOutcome(t *testing.T) {
	f := newFixture()
	for _, outcome := range []string{"unknown", "", "late"} {
		rec := postJSON(t, f.handler.Attendance, "/api/v1/appointments/attendance", attendanceRequest{
			AppointmentID: "a1", Outcome: outcome,
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("outcome %q: status %d", outcome, rec.Code)
		}
	}
}

func TestAttendance_PreconditionFailed(t *testing.T) {
	f := newFixture()
	f.workflow.attendanceErr = checkin.ErrPreconditionFailed
	rec := postJSON(t, f.handler.Attendance, "/api/v1/appointments/attendance", attendanceRequest{
		AppointmentID: "a1", Outcome: "attended",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestCheckIn(t *testing.T) {
	f := newFixture()
	f.workflow.checkInOK = true
	rec := postJSON(t, f.handler.CheckIn, "/api/v1/checkin", checkInRequest{Payload: `{"type":"frontdesk.checkin","appointment_id":"a1"}`})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp["handled"] {
		t.Fatal("expected handled=true")
	}
}

func TestCheckIn_ForeignCodeIsNotAnError(t *testing.T) {
	f := newFixture()
	f.workflow.checkInOK = false
	rec := postJSON(t, f.handler.CheckIn, "/api/v1/checkin", checkInRequest{Payload: "https://example.com/menu"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["handled"] {
		t.Fatal("expected handled=false")
	}
}

func TestCheckIn_UnknownToken(t *testing.T) {
	f := newFixture()
	f.workflow.checkInErr = checkin.ErrInvalidToken
	rec := postJSON(t, f.handler.CheckIn, "/api/v1/checkin", checkInRequest{Payload: `{"type":"frontdesk.checkin","appointment_id":"gone"}`})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestBadge(t *testing.T) {
	f := newFixture()
	f.appts.byID["a1"] = model.Appointment{ID: "a1"}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments/badge?appointment_id=a1", nil)
	rec := httptest.NewRecorder()
	f.handler.Badge(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Fatal("body is not a PNG")
	}
}

func TestBadge_UnknownAppointment(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments/badge?appointment_id=nope", nil)
	rec := httptest.NewRecorder()
	f.handler.Badge(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestNotifications(t *testing.T) {
	f := newFixture()
	f.counters.counters = notify.Counters{CRM: 2, Appointments: 1, Overdue: 3, Reception: 4}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	rec := httptest.NewRecorder()
	f.handler.Notifications(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp notificationsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Loading || resp.Counters != f.counters.counters {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestUpsertServiceDay(t *testing.T) {
	f := newFixture()
	rec := postJSON(t, f.handler.UpsertServiceDay, "/api/v1/service-days", serviceDayRequest{
		ServiceDate: "2024-07-01", Active: true, MaxPerHour: 12,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if len(f.days.upserted) != 1 {
		t.Fatalf("upserted %d days", len(f.days.upserted))
	}
	if got := f.days.upserted[0].Weekday; got != "monday" {
		t.Fatalf("weekday %q", got)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/notifications", strings.NewReader(""))
	rec := httptest.NewRecorder()
	f.handler.Notifications(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status %d", rec.Code)
	}
}
