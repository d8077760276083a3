// Package settlement reconciles captured pledges with the payment gateway
// and marks them complete at most once.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"giveserver/internal/domain"
)

// CredentialSource supplies the gateway secret key for the current tenant.
type CredentialSource interface {
	StripeSecretKey(ctx context.Context) (string, error)
}

// PaymentInput is what the payment boundary (step 2) supplies for a pledge:
// the chosen method, the single-use token for card payments, and the
// contact/address details the form configuration asks for.
type PaymentInput struct {
	Method       domain.Method
	PaymentToken string

	Telephone        string
	CheckOrOtherNote string

	BillingName    string
	AddressLine1   string
	AddressLine2   string
	AddressCity    string
	AddressState   string
	AddressZip     string
	AddressCountry string

	// CountryHint is a best-effort donor country (GeoIP or header) forwarded
	// to the gateway as risk-review metadata. Never required.
	CountryHint string
}

// Service is the donation settlement state machine. All dependencies are
// injected; there is no global state and no automatic retry of gateway calls.
type Service struct {
	donations domain.DonationRepository
	forms     domain.GiveFormRepository
	gateway   domain.PaymentGateway
	notifier  domain.NotificationDispatcher
	creds     CredentialSource
	now       func() time.Time
	logger    zerolog.Logger
	locks     *recordLocks
}

// NewService wires the settlement service. A nil clock means time.Now; the
// notifier may be nil when receipts are disabled.
func NewService(
	donations domain.DonationRepository,
	forms domain.GiveFormRepository,
	gateway domain.PaymentGateway,
	notifier domain.NotificationDispatcher,
	creds CredentialSource,
	now func() time.Time,
	logger zerolog.Logger,
) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		donations: donations,
		forms:     forms,
		gateway:   gateway,
		notifier:  notifier,
		creds:     creds,
		now:       now,
		logger:    logger,
		locks:     newRecordLocks(),
	}
}

// Settle runs one settlement attempt for the donation identified by uuid.
// The per-record lock is held for the whole attempt, gateway call included,
// because the call's outcome decides the completion write. Either the whole
// branch succeeds and the completion flag flips, or the record is left
// untouched and resubmittable.
func (s *Service) Settle(ctx context.Context, donationUUID string, in PaymentInput) (*domain.DonationRecord, error) {
	release := s.locks.acquire(donationUUID)
	defer release()

	record, err := s.donations.GetByUUID(ctx, donationUUID)
	if err != nil {
		return nil, err
	}

	// Sole idempotency mechanism: a settled record refuses resubmission
	// before the gateway is ever contacted.
	if record.Completed {
		return nil, domain.ErrAlreadyCompleted
	}

	form, err := s.forms.GetByID(ctx, record.FormID)
	if err != nil {
		return nil, fmt.Errorf("load form %q: %w", record.FormID, err)
	}

	if err := s.applyInput(record, form, in); err != nil {
		return nil, err
	}

	switch record.Method {
	case domain.MethodCheckOrOther:
		return s.settleCheckOrOther(ctx, record, form)
	case domain.MethodCard:
		return s.settleCard(ctx, record, form, in.CountryHint)
	default:
		return nil, domain.NewValidationError("method", fmt.Sprintf("unknown donation method %q", record.Method))
	}
}

// applyInput copies the payment-step fields onto the record and validates
// what the form configuration requires.
func (s *Service) applyInput(record *domain.DonationRecord, form *domain.GiveFormConfig, in PaymentInput) error {
	record.Method = in.Method
	record.PaymentToken = in.PaymentToken
	record.Telephone = in.Telephone
	record.CheckOrOtherNote = in.CheckOrOtherNote
	record.UpdatedAt = s.now()

	if in.BillingName != "" {
		record.DonorName = in.BillingName
	}

	if form.CollectAddress {
		record.AddressLine1 = in.AddressLine1
		record.AddressLine2 = in.AddressLine2
		record.AddressCity = in.AddressCity
		record.AddressState = in.AddressState
		record.AddressZip = in.AddressZip
		record.AddressCountry = in.AddressCountry
		if record.AddressLine1 == "" || record.AddressCity == "" || record.AddressCountry == "" {
			return domain.NewValidationError("address", "billing address is required for this form")
		}
	}
	return nil
}

// settleCheckOrOther records the donor's follow-up details and leaves the
// pledge pending. Settlement of these donations is a manual administrative
// act; an indefinitely pending record is an expected outcome, not an error.
func (s *Service) settleCheckOrOther(ctx context.Context, record *domain.DonationRecord, form *domain.GiveFormConfig) (*domain.DonationRecord, error) {
	if record.Telephone == "" {
		return nil, domain.NewValidationError("telephone", "a telephone number is required to arrange a donation by check or other means")
	}

	if err := s.donations.Update(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("donation_uuid", record.UUID).
		Str("form_id", record.FormID).
		Msg("pledge recorded, awaiting manual follow-up")

	s.dispatchNotice(ctx, record, form)
	return record, nil
}

func (s *Service) settleCard(ctx context.Context, record *domain.DonationRecord, form *domain.GiveFormConfig, countryHint string) (*domain.DonationRecord, error) {
	if record.PaymentToken == "" {
		return nil, domain.NewValidationError("payment_token", "Could not retrieve token")
	}

	secret, err := s.creds.StripeSecretKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("load gateway credentials: %w", err)
	}
	if secret == "" {
		return nil, &domain.GatewayError{Category: domain.GatewayGeneric, Message: "gateway secret key is not configured"}
	}
	s.gateway.SetCredentials(secret)

	if record.Recurring() {
		if err := s.chargeRecurring(ctx, record, form, countryHint); err != nil {
			return nil, err
		}
	} else {
		if err := s.chargeOneTime(ctx, record, form, countryHint); err != nil {
			return nil, err
		}
	}

	completed, err := s.donations.Complete(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("persist completion for %s: %w", record.UUID, err)
	}
	if !completed {
		// Another process settled the record while we held only the local
		// lock. The durable guard refused the flip; surface it the same way
		// the entry guard would have.
		s.logger.Warn().Str("donation_uuid", record.UUID).Msg("completion CAS lost, record was already settled")
		return nil, domain.ErrAlreadyCompleted
	}
	record.Completed = true
	record.PaymentToken = ""

	s.logger.Info().
		Str("donation_uuid", record.UUID).
		Str("form_id", record.FormID).
		Int64("amount_cents", record.AmountCents).
		Bool("recurring", record.Recurring()).
		Msg("donation settled")

	s.dispatchNotice(ctx, record, form)
	return record, nil
}

// chargeRecurring registers the deterministic plan (idempotent create) and
// subscribes a new customer to it. No card metadata is stored on this path.
func (s *Service) chargeRecurring(ctx context.Context, record *domain.DonationRecord, form *domain.GiveFormConfig, countryHint string) error {
	planID, err := form.Frequencies.PlanID(record.FormID, record.AmountCents, record.RecurrenceIndex)
	if err != nil {
		return domain.NewValidationError("recurrence", err.Error())
	}
	planName, err := form.Frequencies.PlanName(record.AmountCents, record.RecurrenceIndex)
	if err != nil {
		return domain.NewValidationError("recurrence", err.Error())
	}
	freq, err := form.Frequencies.At(record.RecurrenceIndex)
	if err != nil {
		return domain.NewValidationError("recurrence", err.Error())
	}

	plan, err := s.gateway.CreatePlan(ctx, domain.PlanSpec{
		ID:            planID,
		AmountCents:   record.AmountCents,
		Currency:      domain.Currency,
		IntervalUnit:  freq.IntervalUnit,
		IntervalCount: freq.IntervalCount,
		Name:          planName,
	})
	if err != nil {
		return err
	}

	return s.gateway.CreateCustomerWithSubscription(ctx, domain.SubscriptionSpec{
		PlanID:    plan.ID,
		Token:     record.PaymentToken,
		DonorMail: record.DonorMail,
		Metadata:  s.metadata(record, form, countryHint),
	})
}

// chargeOneTime creates a single charge and copies the card metadata Stripe
// reports onto the record.
func (s *Service) chargeOneTime(ctx context.Context, record *domain.DonationRecord, form *domain.GiveFormConfig, countryHint string) error {
	charge, err := s.gateway.CreateCharge(ctx, domain.ChargeSpec{
		AmountCents: record.AmountCents,
		Currency:    domain.Currency,
		Token:       record.PaymentToken,
		Description: record.Label,
		Metadata:    s.metadata(record, form, countryHint),
	})
	if err != nil {
		return err
	}

	record.CardBrand = charge.Brand
	record.CardFunding = charge.Funding
	record.CardLast4 = charge.Last4
	return nil
}

// metadata links gateway objects back to the form and donor.
func (s *Service) metadata(record *domain.DonationRecord, form *domain.GiveFormConfig, countryHint string) map[string]string {
	meta := map[string]string{
		"give_form_id":    form.ID,
		"give_form_label": form.Label,
		"email":           record.DonorMail,
	}
	switch {
	case record.AddressCountry != "":
		meta["country"] = record.AddressCountry
	case countryHint != "":
		meta["country"] = countryHint
	}
	return meta
}

// dispatchNotice fires the receipt notification. Failure is logged and never
// blocks or reverses settlement.
func (s *Service) dispatchNotice(ctx context.Context, record *domain.DonationRecord, form *domain.GiveFormConfig) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendDonationNotice(ctx, record, form); err != nil {
		s.logger.Error().Err(err).
			Str("donation_uuid", record.UUID).
			Msg("donation notice failed")
	}
}
