package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gwi.com/chatbot-backend/internal/auth"
	"gwi.com/chatbot-backend/internal/core"
	"gwi.com/chatbot-backend/internal/errs"
)

const (
	defaultPageLimit = 10
	maxBodyBytes     = 1 << 20
)

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// ReadinessCheck is one dependency probed by /ready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type APIHandler struct {
	chatService *core.ChatService
	verifier    TokenVerifier
	checks      []ReadinessCheck
	validate    *validator.Validate
	log         zerolog.Logger
}

func NewAPIHandler(cs *core.ChatService, verifier TokenVerifier, logger zerolog.Logger, checks ...ReadinessCheck) *APIHandler {
	return &APIHandler{
		chatService: cs,
		verifier:    verifier,
		checks:      checks,
		validate:    newValidator(),
		log:         logger,
	}
}

// newValidator reports json field names in validation errors.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// JSON sends a JSON response with the given status code.
func (h *APIHandler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("failed to encode response")
	}
}

// Error sends a JSON error response with the given status code.
func (h *APIHandler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// fail maps err to its HTTP status. Server-side failures are logged and
// reported with a generic message.
func (h *APIHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Msg("request failed")
	}
	h.Error(w, status, errs.PublicMessage(err))
}

// decode reads a JSON body into dst and validates it.
func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errs.Wrap(errs.ErrInvalidArgument, err, "invalid request body: %v", err)
	}
	return h.check(dst)
}

func (h *APIHandler) check(v interface{}) error {
	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return errs.Wrap(errs.ErrInvalidArgument, err, "field %s failed validation: %s", fe.Field(), describeTag(fe))
		}
		return errs.Wrap(errs.ErrInvalidArgument, err, "invalid request")
	}
	return nil
}

func describeTag(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
}

type pagination struct {
	Skip  int `json:"skip" validate:"gte=0"`
	Limit int `json:"limit" validate:"gte=1,lte=100"`
}

// parsePagination reads skip and limit from the query string.
func (h *APIHandler) parsePagination(r *http.Request) (pagination, error) {
	p := pagination{Skip: 0, Limit: defaultPageLimit}
	q := r.URL.Query()
	for name, dst := range map[string]*int{"skip": &p.Skip, "limit": &p.Limit} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, errs.Wrap(errs.ErrInvalidArgument, err, "query parameter %s must be an integer", name)
		}
		*dst = n
	}
	return p, h.check(p)
}

func urlUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, errs.Wrap(errs.ErrInvalidArgument, err, "%s must be a valid UUID", name)
	}
	return id, nil
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "app",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadyHandler runs every readiness check and answers 503 if any fails.
func (h *APIHandler) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	status := http.StatusOK
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			h.log.Warn().Err(err).Str("check", c.Name).Msg("readiness check failed")
			results[c.Name] = "error"
			status = http.StatusServiceUnavailable
			continue
		}
		results[c.Name] = "ok"
	}

	overall := "ready"
	if status != http.StatusOK {
		overall = "not ready"
	}
	h.JSON(w, status, map[string]interface{}{
		"status": overall,
		"checks": results,
	})
}

func (h *APIHandler) SecureHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	claims := claimsFrom(r.Context())
	h.JSON(w, http.StatusOK, map[string]interface{}{
		"message": "Access Granted",
		"user": map[string]string{
			"sub": claims.Subject,
			"id":  userID.String(),
		},
	})
}
