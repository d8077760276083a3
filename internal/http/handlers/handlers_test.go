package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"giveserver/internal/domain"
	"giveserver/internal/flood"
	"giveserver/internal/http/handlers"
	"giveserver/internal/http/httpapi"
	"giveserver/internal/middleware"
	"giveserver/internal/settlement"
)

const testSecret = "test-secret"

type fakeDonations struct {
	created []*domain.DonationRecord
	byUUID  map[string]*domain.DonationRecord
}

func newFakeDonations() *fakeDonations {
	return &fakeDonations{byUUID: map[string]*domain.DonationRecord{}}
}

func (f *fakeDonations) Create(ctx context.Context, d *domain.DonationRecord) error {
	d.ID = int64(len(f.created) + 1)
	f.created = append(f.created, d)
	f.byUUID[d.UUID] = d
	return nil
}

func (f *fakeDonations) GetByUUID(ctx context.Context, uuid string) (*domain.DonationRecord, error) {
	d, ok := f.byUUID[uuid]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDonations) Update(ctx context.Context, d *domain.DonationRecord) error { return nil }

func (f *fakeDonations) Complete(ctx context.Context, d *domain.DonationRecord) (bool, error) {
	return true, nil
}

func (f *fakeDonations) ListRecent(ctx context.Context, limit int) ([]domain.DonationRecord, error) {
	out := make([]domain.DonationRecord, 0, len(f.created))
	for i := len(f.created) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *f.created[i])
	}
	return out, nil
}

type fakeForms struct {
	forms map[string]*domain.GiveFormConfig
}

func (f *fakeForms) GetByID(ctx context.Context, id string) (*domain.GiveFormConfig, error) {
	form, ok := f.forms[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *form
	return &cp, nil
}

func (f *fakeForms) List(ctx context.Context) ([]domain.GiveFormConfig, error) {
	out := make([]domain.GiveFormConfig, 0, len(f.forms))
	for _, form := range f.forms {
		out = append(out, *form)
	}
	return out, nil
}

func (f *fakeForms) ReplaceFrequencies(ctx context.Context, formID string, freqs domain.FrequencyCatalog) error {
	form, ok := f.forms[formID]
	if !ok {
		return domain.ErrNotFound
	}
	form.Frequencies = freqs
	return nil
}

type fakeProblems struct {
	logged []domain.Problem
}

func (f *fakeProblems) Log(ctx context.Context, donationUUID, problemType, detail string) error {
	f.logged = append(f.logged, domain.Problem{DonationUUID: donationUUID, Type: problemType, Detail: detail})
	return nil
}

func (f *fakeProblems) ListByDonation(ctx context.Context, donationUUID string) ([]domain.Problem, error) {
	var out []domain.Problem
	for _, p := range f.logged {
		if p.DonationUUID == donationUUID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeSettler struct {
	err    error
	record *domain.DonationRecord
	gotIn  settlement.PaymentInput
}

func (f *fakeSettler) Settle(ctx context.Context, donationUUID string, in settlement.PaymentInput) (*domain.DonationRecord, error) {
	f.gotIn = in
	if f.err != nil {
		return nil, f.err
	}
	return f.record, nil
}

type staticPubKey string

func (s staticPubKey) StripePublishableKey(ctx context.Context) (string, error) {
	return string(s), nil
}

func testApp(t *testing.T) (*handlers.App, *fakeDonations, *fakeForms, *fakeProblems, *fakeSettler) {
	t.Helper()
	donations := newFakeDonations()
	forms := &fakeForms{forms: map[string]*domain.GiveFormConfig{
		"general": {
			ID:          "general",
			Label:       "General Fund",
			Frequencies: domain.DefaultFrequencies(),
		},
	}}
	problems := &fakeProblems{}
	settler := &fakeSettler{}
	app := &handlers.App{
		Logger:        zerolog.Nop(),
		Donations:     donations,
		Forms:         forms,
		Problems:      problems,
		Settler:       settler,
		Flood:         flood.NewLimiter(nil),
		PubKeys:       staticPubKey("pk_test_123"),
		FloodLimit:    3,
		FloodInterval: 10 * time.Minute,
	}
	return app, donations, forms, problems, settler
}

func testRouter(app *handlers.App) http.Handler {
	return httpapi.NewRouter(app, httpapi.Options{
		AdminJWTSecret: testSecret,
		Logger:         zerolog.Nop(),
	})
}

func adminToken(t *testing.T) string {
	t.Helper()
	token, err := middleware.SignJWT(testSecret, middleware.TokenClaims{
		Sub:   "admin",
		Admin: true,
		Exp:   time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func postJSON(router http.Handler, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestDonationsCreate(t *testing.T) {
	app, donations, _, _, _ := testApp(t)
	router := testRouter(app)

	rec := postJSON(router, "/v1/donations", map[string]any{
		"form_id":          "general",
		"name":             "Ada",
		"mail":             "ada@example.org",
		"amount":           "$22.00",
		"recurrence_index": 1,
	}, nil)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		UUID      string `json:"uuid"`
		Amount    string `json:"amount"`
		Recurring bool   `json:"recurring"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Amount != "$22.00" {
		t.Errorf("amount = %q", resp.Amount)
	}
	if !resp.Recurring {
		t.Error("recurrence_index 1 should be recurring")
	}
	if len(donations.created) != 1 {
		t.Fatalf("created %d records, want 1", len(donations.created))
	}
	if got := donations.created[0].Label; got != "General Fund : Ada (ada@example.org)" {
		t.Errorf("label = %q", got)
	}
	if donations.created[0].AmountCents != 2200 {
		t.Errorf("amount cents = %d", donations.created[0].AmountCents)
	}
}

func TestDonationsCreateValidation(t *testing.T) {
	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{
			name:  "unknown form",
			body:  map[string]any{"form_id": "nope", "mail": "a@b.c", "amount": "5"},
			field: "form_id",
		},
		{
			name:  "missing mail",
			body:  map[string]any{"form_id": "general", "amount": "5"},
			field: "mail",
		},
		{
			name:  "zero amount",
			body:  map[string]any{"form_id": "general", "mail": "a@b.c", "amount": "0"},
			field: "amount",
		},
		{
			name:  "sub cent amount",
			body:  map[string]any{"form_id": "general", "mail": "a@b.c", "amount": "1.999"},
			field: "amount",
		},
		{
			name:  "recurrence out of range",
			body:  map[string]any{"form_id": "general", "mail": "a@b.c", "amount": "5", "recurrence_index": 9},
			field: "recurrence_index",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app, _, _, _, _ := testApp(t)
			router := testRouter(app)
			rec := postJSON(router, "/v1/donations", tc.body, nil)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			var resp struct {
				Error struct {
					Field string `json:"field"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Error.Field != tc.field {
				t.Errorf("field = %q, want %q", resp.Error.Field, tc.field)
			}
		})
	}
}

func TestDonationsCreateFloodControl(t *testing.T) {
	app, _, _, _, _ := testApp(t)
	router := testRouter(app)
	body := map[string]any{"form_id": "general", "mail": "a@b.c", "amount": "5"}

	for i := 0; i < 3; i++ {
		if rec := postJSON(router, "/v1/donations", body, nil); rec.Code != http.StatusCreated {
			t.Fatalf("submission %d: status = %d", i+1, rec.Code)
		}
	}
	rec := postJSON(router, "/v1/donations", body, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("4th submission: status = %d, want 429", rec.Code)
	}
}

func TestDonationsCreateAdminFloodExempt(t *testing.T) {
	app, _, _, _, _ := testApp(t)
	router := testRouter(app)
	body := map[string]any{"form_id": "general", "mail": "a@b.c", "amount": "5"}
	headers := map[string]string{"Authorization": "Bearer " + adminToken(t)}

	for i := 0; i < 6; i++ {
		if rec := postJSON(router, "/v1/donations", body, headers); rec.Code != http.StatusCreated {
			t.Fatalf("admin submission %d: status = %d", i+1, rec.Code)
		}
	}
}

func TestDonationsPayErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"already completed", domain.ErrAlreadyCompleted, http.StatusConflict},
		{"missing token", domain.NewValidationError("payment_token", "Could not retrieve token"), http.StatusUnprocessableEntity},
		{"card declined", &domain.GatewayError{Category: domain.GatewayCard, Message: "Your card was declined."}, http.StatusPaymentRequired},
		{"gateway unreachable", &domain.GatewayError{Category: domain.GatewayConnection, Message: "timeout"}, http.StatusBadGateway},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app, _, _, _, settler := testApp(t)
			settler.err = tc.err
			router := testRouter(app)

			rec := postJSON(router, "/v1/donations/0c27bd72-54c8-4be5-b8f1-4b8bdc1c8e2e/pay", map[string]any{
				"method":        "card",
				"payment_token": "tok_visa",
			}, nil)
			if rec.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.wantCode, rec.Body.String())
			}
		})
	}
}

func TestDonationsPaySuccess(t *testing.T) {
	app, _, _, _, settler := testApp(t)
	settler.record = &domain.DonationRecord{
		UUID:            "0c27bd72-54c8-4be5-b8f1-4b8bdc1c8e2e",
		FormID:          "general",
		DonorName:       "Ada",
		DonorMail:       "ada@example.org",
		AmountCents:     2200,
		RecurrenceIndex: domain.RecurrenceNone,
		Method:          domain.MethodCard,
		CardBrand:       "visa",
		CardLast4:       "4242",
		Completed:       true,
	}
	router := testRouter(app)

	rec := postJSON(router, "/v1/donations/0c27bd72-54c8-4be5-b8f1-4b8bdc1c8e2e/pay", map[string]any{
		"method":        "card",
		"payment_token": "tok_visa",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Completed   bool   `json:"completed"`
		CardSummary string `json:"card_summary"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Completed {
		t.Error("completed = false")
	}
	if resp.CardSummary != "Visa ending 4242" {
		t.Errorf("card_summary = %q", resp.CardSummary)
	}
	if settler.gotIn.Method != domain.MethodCard || settler.gotIn.PaymentToken != "tok_visa" {
		t.Errorf("settler input = %+v", settler.gotIn)
	}
}

func TestDonationsPayUnknownMethod(t *testing.T) {
	app, _, _, _, _ := testApp(t)
	router := testRouter(app)
	rec := postJSON(router, "/v1/donations/0c27bd72-54c8-4be5-b8f1-4b8bdc1c8e2e/pay", map[string]any{
		"method": "bitcoin",
	}, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestFormShow(t *testing.T) {
	app, _, _, _, _ := testApp(t)
	router := testRouter(app)

	req := httptest.NewRequest(http.MethodGet, "/v1/forms/general", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Label          string `json:"label"`
		PublishableKey string `json:"publishable_key"`
		Frequencies    []struct {
			Interval      string `json:"interval"`
			IntervalCount int    `json:"interval_count"`
		} `json:"frequencies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Label != "General Fund" {
		t.Errorf("label = %q", resp.Label)
	}
	if resp.PublishableKey != "pk_test_123" {
		t.Errorf("publishable_key = %q", resp.PublishableKey)
	}
	if len(resp.Frequencies) != 3 || resp.Frequencies[1].IntervalCount != 3 {
		t.Errorf("frequencies = %+v", resp.Frequencies)
	}
}

func TestFormFrequenciesUpdateRequiresAdmin(t *testing.T) {
	app, _, _, _, _ := testApp(t)
	router := testRouter(app)
	raw, _ := json.Marshal(map[string]any{"frequencies": []any{}})

	req := httptest.NewRequest(http.MethodPut, "/v1/forms/general/frequencies", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous update: status = %d, want 401", rec.Code)
	}
}

func TestFormFrequenciesUpdate(t *testing.T) {
	app, _, forms, _, _ := testApp(t)
	router := testRouter(app)
	raw, _ := json.Marshal(map[string]any{"frequencies": []map[string]any{
		{"interval": "month", "interval_count": 6, "description": "Twice a year"},
	}})

	req := httptest.NewRequest(http.MethodPut, "/v1/forms/general/frequencies", bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	got := forms.forms["general"].Frequencies
	if len(got) != 1 || got[0].IntervalCount != 6 {
		t.Errorf("stored catalog = %+v", got)
	}
}

func TestFormFrequenciesUpdateRejectsNonMonth(t *testing.T) {
	app, _, _, _, _ := testApp(t)
	router := testRouter(app)
	raw, _ := json.Marshal(map[string]any{"frequencies": []map[string]any{
		{"interval": "week", "interval_count": 2, "description": "Fortnightly"},
	}})

	req := httptest.NewRequest(http.MethodPut, "/v1/forms/general/frequencies", bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestProblemCreateAndList(t *testing.T) {
	app, _, _, problems, _ := testApp(t)
	router := testRouter(app)

	rec := postJSON(router, "/v1/problems", map[string]any{
		"donation_uuid": "0c27bd72-54c8-4be5-b8f1-4b8bdc1c8e2e",
		"type":          "token_error",
		"detail":        "Stripe.js reported an invalid card number",
	}, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(problems.logged) != 1 {
		t.Fatalf("logged %d problems", len(problems.logged))
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/donations/0c27bd72-54c8-4be5-b8f1-4b8bdc1c8e2e/problems", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, req)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list status = %d", listRec.Code)
	}
	var resp struct {
		Problems []struct {
			Type string `json:"type"`
		} `json:"problems"`
	}
	if err := json.Unmarshal(listRec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Problems) != 1 || resp.Problems[0].Type != "token_error" {
		t.Errorf("problems = %+v", resp.Problems)
	}
}

func TestDonationsRecentRequiresAdmin(t *testing.T) {
	app, _, _, _, _ := testApp(t)
	router := testRouter(app)

	req := httptest.NewRequest(http.MethodGet, "/v1/donations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous list: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/donations?limit=10", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin list: status = %d", rec.Code)
	}
}

type gatedDonations struct {
	*fakeDonations
	mu   sync.Mutex
	gate chan struct{}
}

func (g *gatedDonations) Create(ctx context.Context, d *domain.DonationRecord) error {
	<-g.gate
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fakeDonations.Create(ctx, d)
}

func TestDonationsCreateFloodLastSlotNotOversubscribed(t *testing.T) {
	app, _, _, _, _ := testApp(t)
	donations := &gatedDonations{fakeDonations: newFakeDonations(), gate: make(chan struct{})}
	app.Donations = donations
	router := testRouter(app)

	// Two of three slots already used; one remains for two concurrent donors.
	app.Flood.Register("donation:192.0.2.1", app.FloodInterval)
	app.Flood.Register("donation:192.0.2.1", app.FloodInterval)

	body := map[string]any{"form_id": "general", "mail": "a@b.c", "amount": "5"}
	codes := make(chan int, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- postJSON(router, "/v1/donations", body, nil).Code
		}()
	}

	// Give both requests time to pass the flood check before the repository
	// gate opens; the loser must have been refused already.
	time.Sleep(50 * time.Millisecond)
	close(donations.gate)
	wg.Wait()
	close(codes)

	var created, refused int
	for code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusTooManyRequests:
			refused++
		default:
			t.Fatalf("unexpected status %d", code)
		}
	}
	if created != 1 || refused != 1 {
		t.Fatalf("last slot: %d created, %d refused; want exactly one of each", created, refused)
	}
	if len(donations.created) != 1 {
		t.Fatalf("repository holds %d records, want 1", len(donations.created))
	}
}

func TestDonationsCreateFloodSlotFreedOnSaveFailure(t *testing.T) {
	app, _, _, _, _ := testApp(t)
	failing := &failingDonations{}
	app.Donations = failing
	router := testRouter(app)
	body := map[string]any{"form_id": "general", "mail": "a@b.c", "amount": "5"}

	// A failed save must not consume a flood slot: the limit is never reached
	// however many times the insert fails.
	for i := 0; i < 5; i++ {
		if rec := postJSON(router, "/v1/donations", body, nil); rec.Code != http.StatusInternalServerError {
			t.Fatalf("attempt %d: status = %d, want 500", i+1, rec.Code)
		}
	}

	app.Donations = newFakeDonations()
	if rec := postJSON(router, "/v1/donations", body, nil); rec.Code != http.StatusCreated {
		t.Fatalf("after failures: status = %d, want 201", rec.Code)
	}
}

type failingDonations struct {
	fakeDonations
}

func (f *failingDonations) Create(ctx context.Context, d *domain.DonationRecord) error {
	return errors.New("insert failed")
}
