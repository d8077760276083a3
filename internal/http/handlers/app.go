package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"giveserver/internal/domain"
	"giveserver/internal/flood"
	"giveserver/internal/infra/geoip"
	"giveserver/internal/settlement"
)

// Settler runs one settlement attempt for a captured pledge.
type Settler interface {
	Settle(ctx context.Context, donationUUID string, in settlement.PaymentInput) (*domain.DonationRecord, error)
}

// PublishableKeySource supplies the client-side tokenization key embedded in
// the form payload.
type PublishableKeySource interface {
	StripePublishableKey(ctx context.Context) (string, error)
}

type App struct {
	Logger    zerolog.Logger
	Donations domain.DonationRepository
	Forms     domain.GiveFormRepository
	Problems  domain.ProblemLogRepository
	Settler   Settler
	Flood     *flood.Limiter
	PubKeys   PublishableKeySource
	GeoIP     geoip.CountryResolver

	FloodLimit    int
	FloodInterval time.Duration
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, msg string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{"code": errCode, "message": msg},
	})
}

func (a *App) fieldError(w http.ResponseWriter, code int, errCode, field, msg string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{"code": errCode, "field": field, "message": msg},
	})
}

// domainError maps the settlement error taxonomy onto HTTP responses. Card
// and connection failures are surfaced as retryable so the client keeps the
// form filled and lets the donor resubmit.
func (a *App) domainError(w http.ResponseWriter, err error) {
	var vErr *domain.ValidationError
	var gErr *domain.GatewayError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "donation not found")
	case errors.Is(err, domain.ErrAlreadyCompleted):
		a.error(w, http.StatusConflict, "already_completed", "this donation has already been completed")
	case errors.Is(err, domain.ErrRateLimitExceeded):
		a.error(w, http.StatusTooManyRequests, "rate_limited", "too many donation attempts, try again later")
	case errors.As(err, &vErr):
		a.fieldError(w, http.StatusUnprocessableEntity, "validation_failed", vErr.Field, vErr.Reason)
	case errors.As(err, &gErr):
		switch gErr.Category {
		case domain.GatewayCard:
			a.error(w, http.StatusPaymentRequired, "card_declined", gErr.Message)
		case domain.GatewayConnection:
			a.error(w, http.StatusBadGateway, "gateway_unreachable", "could not reach the payment gateway, please try again")
		case domain.GatewayInvalidRequest:
			a.error(w, http.StatusBadGateway, "gateway_rejected", gErr.Message)
		default:
			a.error(w, http.StatusBadGateway, "gateway_error", "payment could not be processed")
		}
	default:
		a.Logger.Error().Err(err).Msg("unhandled error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
