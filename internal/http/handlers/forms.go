package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"giveserver/internal/domain"
)

type formResponse struct {
	ID                  string             `json:"id"`
	Label               string             `json:"label"`
	Frequencies         []frequencyPayload `json:"frequencies"`
	CollectAddress      bool               `json:"collect_address"`
	CheckOrOtherText    string             `json:"check_or_other_text,omitempty"`
	CreditCardExtraText string             `json:"credit_card_extra_text,omitempty"`
	SubmitText          string             `json:"submit_text,omitempty"`
	PaymentSubmitText   string             `json:"payment_submit_text,omitempty"`
	RedirectURI         string             `json:"redirect_uri,omitempty"`
	PublishableKey      string             `json:"publishable_key,omitempty"`
}

type frequencyPayload struct {
	Interval      string `json:"interval"`
	IntervalCount int    `json:"interval_count"`
	Description   string `json:"description"`
}

func renderForm(f *domain.GiveFormConfig, publishableKey string) formResponse {
	freqs := make([]frequencyPayload, 0, len(f.Frequencies))
	for _, fr := range f.Frequencies {
		freqs = append(freqs, frequencyPayload{
			Interval:      fr.IntervalUnit,
			IntervalCount: fr.IntervalCount,
			Description:   fr.Description,
		})
	}
	return formResponse{
		ID:                  f.ID,
		Label:               f.Label,
		Frequencies:         freqs,
		CollectAddress:      f.CollectAddress,
		CheckOrOtherText:    f.CheckOrOtherText,
		CreditCardExtraText: f.CreditCardExtraText,
		SubmitText:          f.SubmitText,
		PaymentSubmitText:   f.PaymentSubmitText,
		RedirectURI:         f.RedirectURI,
		PublishableKey:      publishableKey,
	}
}

// FormShow returns the public configuration a donation page needs, including
// the client-side tokenization key.
func (a *App) FormShow(w http.ResponseWriter, r *http.Request) {
	formID := chi.URLParam(r, "id")
	form, err := a.Forms.GetByID(r.Context(), formID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "form not found")
			return
		}
		a.Logger.Error().Err(err).Str("form_id", formID).Msg("form lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "could not load form")
		return
	}

	pubKey := ""
	if a.PubKeys != nil {
		pubKey, err = a.PubKeys.StripePublishableKey(r.Context())
		if err != nil {
			a.Logger.Error().Err(err).Msg("publishable key lookup failed")
		}
	}

	a.json(w, http.StatusOK, renderForm(form, pubKey))
}

// FormsList returns all form configurations for administrators.
func (a *App) FormsList(w http.ResponseWriter, r *http.Request) {
	forms, err := a.Forms.List(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("form list failed")
		a.error(w, http.StatusInternalServerError, "internal", "could not list forms")
		return
	}

	out := make([]formResponse, 0, len(forms))
	for i := range forms {
		out = append(out, renderForm(&forms[i], ""))
	}
	a.json(w, http.StatusOK, map[string]any{"forms": out})
}

// FormFrequenciesUpdate replaces a form's recurrence catalog. Existing
// donations keep their recorded index; the catalog is an ordered list and
// replacement is wholesale.
func (a *App) FormFrequenciesUpdate(w http.ResponseWriter, r *http.Request) {
	formID := chi.URLParam(r, "id")

	var req struct {
		Frequencies []frequencyPayload `json:"frequencies"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	catalog := make(domain.FrequencyCatalog, 0, len(req.Frequencies))
	for _, fr := range req.Frequencies {
		catalog = append(catalog, domain.Frequency{
			IntervalUnit:  fr.Interval,
			IntervalCount: fr.IntervalCount,
			Description:   fr.Description,
		})
	}
	if err := catalog.Validate(); err != nil {
		a.fieldError(w, http.StatusUnprocessableEntity, "validation_failed", "frequencies", err.Error())
		return
	}

	if err := a.Forms.ReplaceFrequencies(r.Context(), formID, catalog); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "form not found")
			return
		}
		a.Logger.Error().Err(err).Str("form_id", formID).Msg("frequency update failed")
		a.error(w, http.StatusInternalServerError, "internal", "could not update frequencies")
		return
	}

	form, err := a.Forms.GetByID(r.Context(), formID)
	if err != nil {
		a.Logger.Error().Err(err).Str("form_id", formID).Msg("form reload failed")
		a.error(w, http.StatusInternalServerError, "internal", "could not load form")
		return
	}
	a.json(w, http.StatusOK, renderForm(form, ""))
}
