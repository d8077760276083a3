package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"giveserver/internal/display"
	"giveserver/internal/domain"
	"giveserver/internal/middleware"
	"giveserver/internal/settlement"
)

type donationCreateRequest struct {
	FormID          string `json:"form_id"`
	Name            string `json:"name"`
	Mail            string `json:"mail"`
	Amount          string `json:"amount"`
	RecurrenceIndex *int   `json:"recurrence_index"`
}

type donationPayRequest struct {
	Method           string `json:"method"`
	PaymentToken     string `json:"payment_token"`
	Telephone        string `json:"telephone"`
	CheckOrOtherNote string `json:"check_or_other_note"`

	BillingName    string `json:"billing_name"`
	AddressLine1   string `json:"address_line1"`
	AddressLine2   string `json:"address_line2"`
	AddressCity    string `json:"address_city"`
	AddressState   string `json:"address_state"`
	AddressZip     string `json:"address_zip"`
	AddressCountry string `json:"address_country"`
}

type donationResponse struct {
	UUID            string `json:"uuid"`
	FormID          string `json:"form_id"`
	Name            string `json:"name"`
	Mail            string `json:"mail"`
	Amount          string `json:"amount"`
	RecurrenceIndex int    `json:"recurrence_index"`
	Recurring       bool   `json:"recurring"`
	Method          string `json:"method,omitempty"`
	CardSummary     string `json:"card_summary,omitempty"`
	Completed       bool   `json:"completed"`
	CreatedAt       string `json:"created_at"`
}

func renderDonation(d *domain.DonationRecord) donationResponse {
	return donationResponse{
		UUID:            d.UUID,
		FormID:          d.FormID,
		Name:            d.DonorName,
		Mail:            d.DonorMail,
		Amount:          d.DollarAmount(),
		RecurrenceIndex: d.RecurrenceIndex,
		Recurring:       d.Recurring(),
		Method:          string(d.Method),
		CardSummary:     display.CardSummary(d.CardBrand, d.CardLast4),
		Completed:       d.Completed,
		CreatedAt:       d.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// DonationsCreate captures a pledge: who gives, how much, against which form,
// and at which recurrence. Payment details come later on the pay step.
func (a *App) DonationsCreate(w http.ResponseWriter, r *http.Request) {
	var req donationCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	form, err := a.Forms.GetByID(r.Context(), req.FormID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.fieldError(w, http.StatusUnprocessableEntity, "validation_failed", "form_id", "unknown form")
			return
		}
		a.Logger.Error().Err(err).Str("form_id", req.FormID).Msg("form lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "could not load form")
		return
	}

	if req.Mail == "" {
		a.fieldError(w, http.StatusUnprocessableEntity, "validation_failed", "mail", "an email address is required")
		return
	}

	amountCents, err := domain.ParseDollarAmount(req.Amount)
	if err != nil {
		a.fieldError(w, http.StatusUnprocessableEntity, "validation_failed", "amount", err.Error())
		return
	}
	if amountCents <= 0 {
		a.fieldError(w, http.StatusUnprocessableEntity, "validation_failed", "amount", "amount must be positive")
		return
	}

	recurrence := domain.RecurrenceNone
	if req.RecurrenceIndex != nil {
		recurrence = *req.RecurrenceIndex
	}
	if !form.Frequencies.ValidIndex(recurrence) {
		a.fieldError(w, http.StatusUnprocessableEntity, "validation_failed", "recurrence_index", "recurrence choice is not offered by this form")
		return
	}

	// Administrators are exempt from flood control; everyone else gets a
	// rolling per-address window. The slot is claimed atomically before the
	// insert and released again if the insert fails.
	floodBucket := "donation:" + middleware.ClientIP(r)
	throttled := !middleware.IsAdmin(r.Context())
	if throttled && !a.Flood.Attempt(floodBucket, a.FloodLimit, a.FloodInterval) {
		a.domainError(w, domain.ErrRateLimitExceeded)
		return
	}

	now := time.Now().UTC()
	record := &domain.DonationRecord{
		UUID:            uuid.NewString(),
		FormID:          form.ID,
		DonorName:       req.Name,
		DonorMail:       req.Mail,
		Label:           domain.BuildLabel(form.Label, req.Name, req.Mail),
		AmountCents:     amountCents,
		RecurrenceIndex: recurrence,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := a.Donations.Create(r.Context(), record); err != nil {
		if throttled {
			a.Flood.Unregister(floodBucket)
		}
		a.Logger.Error().Err(err).Msg("donation create failed")
		a.error(w, http.StatusInternalServerError, "internal", "could not save donation")
		return
	}

	a.json(w, http.StatusCreated, renderDonation(record))
}

// DonationsPay runs the settlement attempt for a captured pledge.
func (a *App) DonationsPay(w http.ResponseWriter, r *http.Request) {
	donationUUID := chi.URLParam(r, "uuid")
	if _, err := uuid.Parse(donationUUID); err != nil {
		a.error(w, http.StatusNotFound, "not_found", "donation not found")
		return
	}

	var req donationPayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	method := domain.Method(req.Method)
	switch method {
	case domain.MethodCard, domain.MethodCheckOrOther:
	default:
		a.fieldError(w, http.StatusUnprocessableEntity, "validation_failed", "method", "unknown payment method")
		return
	}

	record, err := a.Settler.Settle(r.Context(), donationUUID, settlement.PaymentInput{
		Method:           method,
		PaymentToken:     req.PaymentToken,
		Telephone:        req.Telephone,
		CheckOrOtherNote: req.CheckOrOtherNote,
		BillingName:      req.BillingName,
		AddressLine1:     req.AddressLine1,
		AddressLine2:     req.AddressLine2,
		AddressCity:      req.AddressCity,
		AddressState:     req.AddressState,
		AddressZip:       req.AddressZip,
		AddressCountry:   req.AddressCountry,
		CountryHint:      a.countryHint(r),
	})
	if err != nil {
		a.domainError(w, err)
		return
	}

	a.json(w, http.StatusOK, renderDonation(record))
}

// DonationsRecent lists the latest donations for administrators.
func (a *App) DonationsRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			a.error(w, http.StatusBadRequest, "bad_request", "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	records, err := a.Donations.ListRecent(r.Context(), limit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("donation list failed")
		a.error(w, http.StatusInternalServerError, "internal", "could not list donations")
		return
	}

	out := make([]donationResponse, 0, len(records))
	for i := range records {
		out = append(out, renderDonation(&records[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"donations": out})
}

// countryHint resolves a best-effort donor country from GeoIP. Lookups are
// advisory; failures return an empty hint.
func (a *App) countryHint(r *http.Request) string {
	if a.GeoIP == nil {
		return ""
	}
	code, err := a.GeoIP.CountryCode(middleware.ClientIP(r))
	if err != nil {
		return ""
	}
	return code
}
