package tracking

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pagenotify/internal/types"
)

// transparentGIF is a 1x1 transparent pixel, served verbatim for tracking
// requests.
const transparentGIF = "R0lGODlhAQABAIAAAP///wAAACH5BAEAAAAALAAAAAABAAEAAAICRAEAOw=="

// EventStore records engagement events.
type EventStore interface {
	Insert(ctx context.Context, ev *types.EngagementEvent) error
}

// UnsubscribeWriter records per-rule unsubscribes.
type UnsubscribeWriter interface {
	Insert(ctx context.Context, notificationID, userID int64) error
}

// RuleReader answers the subject lookups the confirmation page needs.
type RuleReader interface {
	Subject(ctx context.Context, id int64) (string, error)
}

// UserResolver identifies the acting user behind an unsubscribe request.
// The host platform supplies this; stubs return a fixed id in local mode.
type UserResolver func(r *http.Request) (int64, error)

// Handler serves the /events endpoints linked from sent email.
type Handler struct {
	codec        *Codec
	events       EventStore
	unsubscribes UnsubscribeWriter
	rules        RuleReader
	userFrom     UserResolver
	clock        types.Clock
	logger       types.Logger
}

// NewHandler creates the events handler. A nil clock selects the real one.
func NewHandler(codec *Codec, events EventStore, unsubscribes UnsubscribeWriter, rules RuleReader, userFrom UserResolver, clock types.Clock, logger types.Logger) *Handler {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Handler{
		codec:        codec,
		events:       events,
		unsubscribes: unsubscribes,
		rules:        rules,
		userFrom:     userFrom,
		clock:        clock,
		logger:       logger,
	}
}

// Routes mounts the handler on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/events/{notificationID}", h.HandleEvent)
}

// HandleEvent dispatches on the action query parameter: "tracking" records
// a read event and answers with the pixel, "unsubscribe" records an
// unsubscribe for the acting user and answers with a confirmation.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	notificationID, err := strconv.ParseInt(chi.URLParam(r, "notificationID"), 10, 64)
	if err != nil || notificationID <= 0 {
		http.Error(w, "invalid notification id", http.StatusBadRequest)
		return
	}
	switch r.URL.Query().Get("action") {
	case "tracking":
		h.handleTracking(w, r, notificationID)
	case "unsubscribe":
		h.handleUnsubscribe(w, r, notificationID)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
	}
}

func (h *Handler) handleTracking(w http.ResponseWriter, r *http.Request, notificationID int64) {
	token := r.URL.Query().Get("msgId")
	if token == "" {
		http.Error(w, "missing msgId", http.StatusBadRequest)
		return
	}
	decoded, err := h.codec.Decode(token)
	if err != nil {
		http.Error(w, "malformed token", http.StatusBadRequest)
		return
	}
	ev := &types.EngagementEvent{
		NotificationID:       decoded.NotificationID,
		NotificationDatetime: decoded.Timestamp,
		MessageID:            token,
		Type:                 types.EventTypeRead,
		CreatedAt:            h.clock.Now(),
	}
	// Repeated opens of the same message collapse onto the first row.
	if err := h.events.Insert(r.Context(), ev); err != nil {
		h.logger.Error("recording read event",
			"notification_id", decoded.NotificationID, "error", err.Error())
		// The pixel is still served; the sender's mail client should never
		// see a broken image because our store hiccuped.
	}
	h.writePixel(w)
}

func (h *Handler) handleUnsubscribe(w http.ResponseWriter, r *http.Request, notificationID int64) {
	userID, err := h.userFrom(r)
	if err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	subject, err := h.rules.Subject(r.Context(), notificationID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundRule {
			http.Error(w, "unknown notification", http.StatusNotFound)
			return
		}
		h.logger.Error("loading rule subject", "notification_id", notificationID, "error", err.Error())
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := h.unsubscribes.Insert(r.Context(), notificationID, userID); err != nil {
		h.logger.Error("recording unsubscribe",
			"notification_id", notificationID, "user_id", userID, "error", err.Error())
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "You have been unsubscribed from %q.\n", subject)
}

func (h *Handler) writePixel(w http.ResponseWriter) {
	pixel, err := base64.StdEncoding.DecodeString(transparentGIF)
	if err != nil {
		// The constant is fixed; this cannot happen at runtime.
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Content-Length", strconv.Itoa(len(pixel)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pixel)
}
