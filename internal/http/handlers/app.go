package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"mediagen/internal/credits"
	"mediagen/internal/domain"
	"mediagen/internal/gallery"
	"mediagen/internal/middleware"
	"mediagen/internal/notify"
	"mediagen/internal/session"
)

// Forwarder relays notices published by other replicas.
type Forwarder interface {
	Forward(ctx context.Context, userID string, fn func(notify.Notice)) error
}

// App carries the dependencies shared by every handler.
type App struct {
	Sessions *session.Registry
	Gallery  *gallery.Service
	Credits  *credits.Ledger
	Prices   credits.PriceTable
	Hub      *notify.Hub
	Auth     domain.AuthProvider
	Logger   zerolog.Logger

	// Notices, when set, feeds event streams instead of the local hub sink.
	Notices Forwarder
}

// Denied records an anonymous request to a protected route. There is no user
// to deliver to, so the notice only reaches the log.
func (a *App) Denied(r *http.Request) {
	notify.LogSink{Logger: a.Logger}.Notify(r.Context(), notify.Render(notify.Notice{
		Kind:   notify.KindUnauthorized,
		Locale: middleware.LocaleFromContext(r.Context()),
		Detail: r.URL.Path,
	}, 0))
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, msg string) {
	a.json(w, status, map[string]any{"error": errorBody{Code: code, Message: msg}})
}

// fail maps a domain error onto a response. Only user-facing messages leave
// the process; causes are logged.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
		return
	case errors.Is(err, domain.ErrInvalidTransition):
		a.error(w, http.StatusConflict, "invalid_state", "no active generation")
		return
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "sign in required")
		return
	}
	code := domain.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case domain.CodeValidation:
		status = http.StatusBadRequest
	case domain.CodeInsufficientCredits:
		status = http.StatusPaymentRequired
	case domain.CodeCreditService:
		status = http.StatusServiceUnavailable
	case domain.CodeSubmission, domain.CodePolling:
		status = http.StatusBadGateway
	case domain.CodeTimeout:
		status = http.StatusGatewayTimeout
	case "":
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("handler: unexpected error")
		a.error(w, status, "internal", "internal error")
		return
	}
	a.error(w, status, string(code), domain.MessageOf(err))
}

func (a *App) currentUserID(r *http.Request) string {
	if a.Auth == nil {
		return ""
	}
	id := a.Auth.CurrentUser(r.Context())
	if !id.Authenticated {
		return ""
	}
	return id.ID
}
