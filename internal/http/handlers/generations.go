package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"mediagen/internal/domain"
	"mediagen/internal/domain/jsoncfg"
	"mediagen/internal/middleware"
	"mediagen/internal/notify"
)

// GenerationsSubmit starts a generation for the caller's session. The
// response is the generating snapshot; progress arrives on the event stream.
func (a *App) GenerationsSubmit(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req domain.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := jsoncfg.Normalize(&req, middleware.LocaleFromContext(r.Context())); err != nil {
		a.fail(w, r, err)
		return
	}
	view, err := a.Sessions.Get(userID).Submit(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, view)
}

func (a *App) GenerationsCurrent(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	a.json(w, http.StatusOK, a.Sessions.Get(userID).Current())
}

func (a *App) GenerationsCancel(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	view, err := a.Sessions.Get(userID).Cancel(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, view)
}

func (a *App) GenerationsReset(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	a.json(w, http.StatusOK, a.Sessions.Get(userID).Reset())
}

// GenerationsEvents streams snapshots and notices as server-sent events,
// starting with the current snapshot.
func (a *App) GenerationsEvents(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	client, leave := a.Hub.Subscribe(userID)
	defer leave()
	if a.Notices != nil {
		err := a.Notices.Forward(r.Context(), userID, func(n notify.Notice) {
			a.Hub.Deliver(client, notify.Event{Type: notify.EventNotice, Data: n})
		})
		if err != nil {
			a.Logger.Warn().Err(err).Str("user_id", userID).Msg("events: notice forwarding unavailable")
		}
	}
	initial := notify.Event{Type: notify.EventSnapshot, Data: a.Sessions.Get(userID).Current()}
	a.Hub.Stream(w, r, client, &initial)
}
