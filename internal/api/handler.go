package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/teemow/slotbook/internal/booking"
	"github.com/teemow/slotbook/internal/calendar"
	"github.com/teemow/slotbook/internal/instrumentation"
	"github.com/teemow/slotbook/internal/logging"
	"github.com/teemow/slotbook/internal/notify"
	"github.com/teemow/slotbook/internal/slots"
)

const (
	maxBodyBytes       = 1 << 20
	defaultSlotMinutes = 30
	oauthStateTTL      = 10 * time.Minute
)

// BlockLister lists the free blocks in the booking horizon.
type BlockLister interface {
	ListFreeBlocks(ctx context.Context, horizonDays int) ([]calendar.FreeBlock, error)
}

// Booker reserves one slot.
type Booker interface {
	Book(ctx context.Context, req booking.Request) (*booking.Result, error)
}

// TokenProvider yields a valid access token, refreshing it when needed.
type TokenProvider interface {
	GetValidAccessToken(ctx context.Context) (string, error)
}

// Authorizer runs the calendar authorization handshake.
type Authorizer interface {
	AuthURL(state string) string
	Complete(ctx context.Context, code string) error
}

// ContactRelay forwards contact form messages.
type ContactRelay interface {
	Relay(ctx context.Context, m notify.ContactMessage) (string, error)
}

// Config wires the public handler to the engine. Nil dependencies leave
// their routes unregistered. The token and authorization endpoints are
// served by AdminHandler only.
type Config struct {
	Blocks  BlockLister
	Booker  Booker
	Contact ContactRelay

	HorizonDays int

	// AllowedOrigins lists the origins echoed in CORS responses. Empty or
	// containing "*" allows any origin.
	AllowedOrigins []string

	// RateLimiter is applied to every request when set.
	RateLimiter *RateLimiter

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
}

// Handler is the public HTTP API called by the portfolio site.
type Handler struct {
	cfg    Config
	logger *slog.Logger
	mux    *http.ServeMux
	root   http.Handler
}

// NewHandler builds the API and its middleware chain.
func NewHandler(cfg Config) *Handler {
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = calendar.DefaultHorizonDays
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		cfg:    cfg,
		logger: logging.WithComponent(logger, "api"),
		mux:    http.NewServeMux(),
	}
	h.routes()

	var next http.Handler = h.mux
	if cfg.RateLimiter != nil {
		next = cfg.RateLimiter.Middleware(next)
	}
	next = corsMiddleware(cfg.AllowedOrigins, next)
	next = metricsMiddleware(cfg.Metrics, h.mux, next)
	h.root = recoverMiddleware(h.logger, next)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

// Mux exposes the route table so other handlers can be mounted beside the API.
func (h *Handler) Mux() *http.ServeMux {
	return h.mux
}

func (h *Handler) routes() {
	if h.cfg.Blocks != nil {
		h.mux.HandleFunc("GET /available-slots", h.availableSlots)
		h.mux.HandleFunc("GET /bookable-slots", h.bookableSlots)
	}
	if h.cfg.Booker != nil {
		h.mux.HandleFunc("POST /book", h.book)
	}
	if h.cfg.Contact != nil {
		h.mux.HandleFunc("POST /contact", h.contact)
	}
}

type blockJSON struct {
	ID    string `json:"id"`
	Start string `json:"start"`
	End   string `json:"end"`
}

func (h *Handler) availableSlots(w http.ResponseWriter, r *http.Request) {
	blocks, err := h.cfg.Blocks.ListFreeBlocks(r.Context(), h.cfg.HorizonDays)
	if err != nil {
		h.writeEngineError(w, "failed to list free blocks", err)
		return
	}

	out := make([]blockJSON, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, blockJSON{
			ID:    b.ID,
			Start: b.Start.Format(time.RFC3339),
			End:   b.End.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": out})
}

func (h *Handler) bookableSlots(w http.ResponseWriter, r *http.Request) {
	minutes := defaultSlotMinutes
	if raw := r.URL.Query().Get("duration"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "duration must be a positive number of minutes")
			return
		}
		minutes = n
	}

	blocks, err := h.cfg.Blocks.ListFreeBlocks(r.Context(), h.cfg.HorizonDays)
	if err != nil {
		h.writeEngineError(w, "failed to list free blocks", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots.DecomposeMinutes(blocks, minutes)})
}

type bookRequest struct {
	SlotID         string `json:"slotId"`
	SlotStart      string `json:"slotStart"`
	Duration       int    `json:"duration"`
	AttendeeEmail  string `json:"attendeeEmail"`
	AttendeeName   string `json:"attendeeName"`
	Description    string `json:"description"`
	AttachmentPath string `json:"attachmentPath,omitempty"`
}

type bookResponse struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	EventID  string   `json:"eventId,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func (h *Handler) book(w http.ResponseWriter, r *http.Request) {
	var body bookRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, booking.InvalidRequest.HTTPStatus(), "Invalid request body")
		return
	}

	req := booking.Request{
		SourceBlockID: body.SlotID,
		Duration:      time.Duration(body.Duration) * time.Minute,
		AttendeeName:  body.AttendeeName,
		AttendeeEmail: body.AttendeeEmail,
		Topic:         body.Description,
		AttachmentRef: body.AttachmentPath,
	}
	if body.SlotStart != "" {
		start, err := time.Parse(time.RFC3339, body.SlotStart)
		if err != nil {
			writeError(w, booking.InvalidRequest.HTTPStatus(), "Invalid slotStart: expected RFC3339 timestamp")
			return
		}
		req.SlotStart = start
	}

	result, err := h.cfg.Booker.Book(r.Context(), req)
	if err != nil {
		var be *booking.Error
		if errors.As(err, &be) {
			writeError(w, be.Kind.HTTPStatus(), be.Message)
			return
		}
		h.writeEngineError(w, "booking failed", err)
		return
	}

	writeJSON(w, http.StatusOK, bookResponse{
		Success:  true,
		Message:  result.Message,
		EventID:  result.EventID,
		Warnings: result.Warnings,
	})
}

func (h *Handler) contact(w http.ResponseWriter, r *http.Request) {
	var msg notify.ContactMessage
	if err := decodeJSON(w, r, &msg); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, err := h.cfg.Contact.Relay(r.Context(), msg); err != nil {
		if errors.Is(err, notify.ErrIncompleteContact) {
			writeError(w, http.StatusBadRequest, "All fields are required")
			return
		}
		if errors.Is(err, notify.ErrInvalidContact) {
			writeError(w, http.StatusBadRequest, "Invalid name or email")
			return
		}
		h.logger.Error("failed to queue contact message", logging.Err(err))
		writeError(w, http.StatusInternalServerError, "Failed to send message")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// writeEngineError maps credential and provider failures onto a status.
func (h *Handler) writeEngineError(w http.ResponseWriter, msg string, err error) {
	kind := booking.KindOf(err)
	if kind == booking.Unauthorized {
		writeError(w, kind.HTTPStatus(), "Calendar authorization required")
		return
	}
	h.logger.Error(msg, logging.Err(err))

	var apiErr *calendar.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		writeError(w, http.StatusInternalServerError, apiErr.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
