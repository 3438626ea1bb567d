package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"faixabet-api/internal/models"
	"faixabet-api/internal/payment"
	"faixabet-api/internal/registration"
	"faixabet-api/pkg/logger"
)

const maxWebhookBody = 1 << 20

type Registrar interface {
	Register(ctx context.Context, in registration.Input) (*registration.Result, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}

type Confirmer interface {
	Resolve(ctx context.Context, sessionID string) (payment.Resolution, error)
}

type PaymentApplier interface {
	Apply(ctx context.Context, p models.ConfirmedPayment) (bool, error)
}

type WebhookHandler interface {
	Handle(ctx context.Context, payload []byte, sig string) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	PublishableKey string
	Registrar      Registrar
	Confirmer      Confirmer
	Ledger         PaymentApplier
	Webhooks       WebhookHandler
	DB             Pinger
	Logger         *logger.Logger
}

func (h *Handlers) PublicKey(w http.ResponseWriter, r *http.Request) {
	if h.PublishableKey == "" {
		writeError(w, r, h.Logger, errors.New("publishable key is not configured"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publishableKey": h.PublishableKey})
}

func (h *Handlers) CheckEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	exists, err := h.Registrar.EmailExists(r.Context(), req.Email)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

func (h *Handlers) RegisterAndCheckout(w http.ResponseWriter, r *http.Request) {
	var in registration.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	res, err := h.Registrar.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PaymentSuccess confirms a checkout session when the client returns from
// the provider. A session that is not paid yet answers 202 with its status.
func (h *Handlers) PaymentSuccess(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		writeError(w, r, h.Logger, fmt.Errorf("%w: session_id is required", models.ErrValidation))
		return
	}

	res, err := h.Confirmer.Resolve(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if res.Pending {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": res.Status})
		return
	}

	applied, err := h.Ledger.Apply(r.Context(), res.Payment)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true, "applied": applied})
}

func (h *Handlers) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, r, h.Logger, fmt.Errorf("%w: read body: %v", models.ErrValidation, err))
		return
	}

	if err := h.Webhooks.Handle(r.Context(), body, r.Header.Get("Stripe-Signature")); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.Ping(r.Context()); err != nil {
		h.Logger.Warnw("Health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body", models.ErrValidation)
	}
	return nil
}
