package http

import (
	"net/http"
	"strconv"
	"time"

	mongoadapter "github.com/blacknight/storefront/internal/adapters/mongo"
	"github.com/blacknight/storefront/internal/admin"
	"github.com/blacknight/storefront/internal/backend"
	"github.com/blacknight/storefront/internal/domain"
	"github.com/cockroachdb/errors"
)

const activityLimit = 100

type adminEventsData struct {
	Status   string
	Statuses []string
	Events   []domain.Event
}

func (h *Handlers) AdminEvents(w http.ResponseWriter, r *http.Request) {
	user := h.user(r)
	status := r.URL.Query().Get("status")
	if !admin.ValidStatus(status) {
		status = ""
	}
	events, err := h.console.Events(r.Context(), status)
	if err != nil {
		h.fail(w, r, user, err, "We could not load the events.")
		return
	}
	h.page(w, r, http.StatusOK, "admin_events", "Manage events", user, adminEventsData{
		Status:   status,
		Statuses: []string{admin.StatusPublished, admin.StatusDraft, admin.StatusCancelled},
		Events:   events,
	})
}

type eventFormData struct {
	ID       int
	Form     admin.EventForm
	Problems []string
	Error    string
}

func (d eventFormData) Action() string {
	if d.ID == 0 {
		return "/admin/events"
	}
	return "/admin/events/" + strconv.Itoa(d.ID)
}

func (h *Handlers) NewEventForm(w http.ResponseWriter, r *http.Request) {
	f := admin.EventForm{
		Status:      admin.StatusDraft,
		TicketTypes: []admin.TicketTypeForm{{Color: admin.DefaultTicketColor, Active: true}},
	}
	h.page(w, r, http.StatusOK, "admin_event_form", "New event", h.user(r), eventFormData{Form: f})
}

func (h *Handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	f := admin.ParseEventForm(r.PostForm)
	err := h.console.Create(r.Context(), ClaimsFrom(r.Context()).Actor(), f)
	if err != nil {
		h.formFailed(w, r, eventFormData{Form: f}, err)
		return
	}
	h.flash(w, r, "Event created.")
	http.Redirect(w, r, "/admin/events", http.StatusSeeOther)
}

func (h *Handlers) EditEventForm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.eventID(w, r)
	if !ok {
		return
	}
	user := h.user(r)
	ev, err := h.console.Event(r.Context(), id)
	if err != nil {
		h.fail(w, r, user, err, "We could not load the event.")
		return
	}
	h.page(w, r, http.StatusOK, "admin_event_form", "Edit "+ev.Title, user, eventFormData{
		ID:   id,
		Form: admin.FormFromEvent(*ev, time.Local),
	})
}

func (h *Handlers) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.eventID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	f := admin.ParseEventForm(r.PostForm)
	if err := h.console.Update(r.Context(), ClaimsFrom(r.Context()).Actor(), id, f); err != nil {
		h.formFailed(w, r, eventFormData{ID: id, Form: f}, err)
		return
	}
	h.flash(w, r, "Event saved.")
	http.Redirect(w, r, "/admin/events", http.StatusSeeOther)
}

// formFailed re-renders the editor with what went wrong. Authorization
// failures leave the form for the error page or the login screen.
func (h *Handlers) formFailed(w http.ResponseWriter, r *http.Request, d eventFormData, err error) {
	user := h.user(r)
	var ve *admin.ValidationError
	switch {
	case errors.As(err, &ve):
		d.Problems = ve.Problems
	case backend.IsKind(err, backend.KindUnauthorized), backend.IsKind(err, backend.KindForbidden):
		h.fail(w, r, user, err, backend.MsgForbidden)
		return
	default:
		d.Error = backend.UserMessage(err, "We could not save the event.")
	}
	title := "New event"
	if d.ID != 0 {
		title = "Edit event"
	}
	h.page(w, r, http.StatusUnprocessableEntity, "admin_event_form", title, user, d)
}

func (h *Handlers) SetEventStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.eventID(w, r)
	if !ok {
		return
	}
	err := h.console.SetStatus(r.Context(), ClaimsFrom(r.Context()).Actor(), id, r.PostFormValue("status"))
	if h.adminMutationFailed(w, r, err, "We could not change the event status.") {
		return
	}
	h.flash(w, r, "Event status updated.")
	http.Redirect(w, r, "/admin/events", http.StatusSeeOther)
}

func (h *Handlers) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.eventID(w, r)
	if !ok {
		return
	}
	err := h.console.Delete(r.Context(), ClaimsFrom(r.Context()).Actor(), id)
	if h.adminMutationFailed(w, r, err, "We could not delete the event.") {
		return
	}
	h.flash(w, r, "Event deleted.")
	http.Redirect(w, r, "/admin/events", http.StatusSeeOther)
}

func (h *Handlers) adminMutationFailed(w http.ResponseWriter, r *http.Request, err error, fallback string) bool {
	switch {
	case err == nil:
		return false
	case backend.IsKind(err, backend.KindUnauthorized), backend.IsKind(err, backend.KindForbidden):
		h.fail(w, r, h.user(r), err, backend.MsgForbidden)
	case errors.Is(err, domain.ErrInvalidInput):
		h.flash(w, r, "Unknown event status.")
		http.Redirect(w, r, "/admin/events", http.StatusSeeOther)
	default:
		h.flash(w, r, backend.UserMessage(err, fallback))
		http.Redirect(w, r, "/admin/events", http.StatusSeeOther)
	}
	return true
}

func (h *Handlers) Organizers(w http.ResponseWriter, r *http.Request) {
	user := h.user(r)
	orgs, err := h.console.Organizers(r.Context())
	if err != nil {
		h.fail(w, r, user, err, "We could not load the organizers.")
		return
	}
	h.page(w, r, http.StatusOK, "admin_organizers", "Organizers", user, orgs)
}

type activityData struct {
	Action  string
	Entries []mongoadapter.AuditLog
	Enabled bool
}

// Activity shows the audit trail when an audit store is configured.
func (h *Handlers) Activity(w http.ResponseWriter, r *http.Request) {
	user := h.user(r)
	d := activityData{Action: r.URL.Query().Get("action"), Enabled: h.activity != nil}
	if h.activity != nil {
		entries, err := h.activity.Recent(r.Context(), d.Action, activityLimit)
		if err != nil {
			h.log(r).WithError(err).Error("load audit log")
			h.page(w, r, http.StatusInternalServerError, "error", "Something went wrong", user, "We could not load the activity log.")
			return
		}
		d.Entries = entries
	}
	h.page(w, r, http.StatusOK, "admin_activity", "Activity", user, d)
}
