package domain

import "context"

// PlanSpec describes a recurring-billing plan to register with the gateway.
// The ID is deterministic (FrequencyCatalog.PlanID), so create must be
// idempotent on the gateway side.
type PlanSpec struct {
	ID            string
	AmountCents   int64
	Currency      string
	IntervalUnit  string
	IntervalCount int
	Name          string
}

// PlanHandle is the gateway's reference to a created or retrieved plan.
type PlanHandle struct {
	ID string
}

// ChargeSpec describes a one-time card charge.
type ChargeSpec struct {
	AmountCents int64
	Currency    string
	Token       string
	Description string
	Metadata    map[string]string
}

// ChargeHandle carries the gateway's charge reference plus the card metadata
// captured for one-time charges.
type ChargeHandle struct {
	ID      string
	Brand   string
	Funding string
	Last4   string
}

// SubscriptionSpec describes a customer-with-subscription registration. No
// card metadata is captured on this path.
type SubscriptionSpec struct {
	PlanID    string
	Token     string
	DonorMail string
	Metadata  map[string]string
}

// PaymentGateway is the narrow port to the external payment processor. Every
// call either succeeds or fails with a *GatewayError; SetCredentials selects
// the tenant secret before any operation.
type PaymentGateway interface {
	SetCredentials(secretKey string)
	CreatePlan(ctx context.Context, spec PlanSpec) (*PlanHandle, error)
	CreateCharge(ctx context.Context, spec ChargeSpec) (*ChargeHandle, error)
	CreateCustomerWithSubscription(ctx context.Context, spec SubscriptionSpec) error
}
