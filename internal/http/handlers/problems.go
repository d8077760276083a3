package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type problemRequest struct {
	DonationUUID string `json:"donation_uuid"`
	Type         string `json:"type"`
	Detail       string `json:"detail"`
}

// ProblemCreate is the diagnostic sink for the client-side payment script.
// Entries never affect settlement; the endpoint accepts and stores them, and
// that is all.
func (a *App) ProblemCreate(w http.ResponseWriter, r *http.Request) {
	var req problemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if _, err := uuid.Parse(req.DonationUUID); err != nil {
		a.fieldError(w, http.StatusUnprocessableEntity, "validation_failed", "donation_uuid", "a donation uuid is required")
		return
	}
	if req.Type == "" {
		a.fieldError(w, http.StatusUnprocessableEntity, "validation_failed", "type", "a problem type is required")
		return
	}

	if err := a.Problems.Log(r.Context(), req.DonationUUID, req.Type, req.Detail); err != nil {
		a.Logger.Error().Err(err).Str("donation_uuid", req.DonationUUID).Msg("problem log failed")
		a.error(w, http.StatusInternalServerError, "internal", "could not record problem")
		return
	}

	a.json(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

// ProblemList returns the diagnostic entries for one donation.
func (a *App) ProblemList(w http.ResponseWriter, r *http.Request) {
	donationUUID := chi.URLParam(r, "uuid")

	problems, err := a.Problems.ListByDonation(r.Context(), donationUUID)
	if err != nil {
		a.Logger.Error().Err(err).Str("donation_uuid", donationUUID).Msg("problem list failed")
		a.error(w, http.StatusInternalServerError, "internal", "could not list problems")
		return
	}

	type problemPayload struct {
		Type      string `json:"type"`
		Detail    string `json:"detail"`
		CreatedAt string `json:"created_at"`
	}
	out := make([]problemPayload, 0, len(problems))
	for _, p := range problems {
		out = append(out, problemPayload{
			Type:      p.Type,
			Detail:    p.Detail,
			CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	a.json(w, http.StatusOK, map[string]any{"problems": out})
}
