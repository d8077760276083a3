// Package givestripe adapts the Stripe SDK to the narrow PaymentGateway port
// the settlement service depends on.
package givestripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	stripe "github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"

	"giveserver/internal/domain"
)

// Gateway implements domain.PaymentGateway against Stripe. SetCredentials
// must be called with the tenant secret key before any operation. One Gateway
// is shared across all settlements, so the client is guarded for concurrent
// use.
type Gateway struct {
	mu  sync.RWMutex
	api *client.API
	key string
}

// New builds an unconfigured gateway.
func New() *Gateway {
	return &Gateway{}
}

// SetCredentials selects the Stripe secret key for subsequent calls. A fresh
// API client is built per key so tenants never share state; a repeated key
// keeps the existing client.
func (g *Gateway) SetCredentials(secretKey string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.api != nil && g.key == secretKey {
		return
	}
	api := &client.API{}
	api.Init(secretKey, nil)
	g.api = api
	g.key = secretKey
}

func (g *Gateway) client() *client.API {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.api
}

// CreatePlan registers a recurring-billing plan. Plan ids are deterministic,
// so "already exists" is not a failure: the existing plan is retrieved and
// returned instead.
func (g *Gateway) CreatePlan(ctx context.Context, spec domain.PlanSpec) (*domain.PlanHandle, error) {
	api := g.client()
	if api == nil {
		return nil, missingCredentials()
	}

	params := &stripe.PlanParams{
		ID:            stripe.String(spec.ID),
		Amount:        stripe.Int64(spec.AmountCents),
		Currency:      stripe.String(spec.Currency),
		Interval:      stripe.String(spec.IntervalUnit),
		IntervalCount: stripe.Int64(int64(spec.IntervalCount)),
		Product: &stripe.PlanProductParams{
			Name: stripe.String(spec.Name),
		},
	}
	params.Context = ctx

	plan, err := api.Plans.New(params)
	if err != nil {
		if !planAlreadyExists(err) {
			return nil, categorize(err)
		}
		getParams := &stripe.PlanParams{}
		getParams.Context = ctx
		plan, err = api.Plans.Get(spec.ID, getParams)
		if err != nil {
			return nil, categorize(err)
		}
	}

	return &domain.PlanHandle{ID: plan.ID}, nil
}

// CreateCharge performs a one-time card charge and returns the card metadata
// Stripe reports for it.
func (g *Gateway) CreateCharge(ctx context.Context, spec domain.ChargeSpec) (*domain.ChargeHandle, error) {
	api := g.client()
	if api == nil {
		return nil, missingCredentials()
	}

	params := &stripe.ChargeParams{
		Amount:      stripe.Int64(spec.AmountCents),
		Currency:    stripe.String(spec.Currency),
		Description: stripe.String(spec.Description),
	}
	params.Context = ctx
	if err := params.SetSource(spec.Token); err != nil {
		return nil, &domain.GatewayError{Category: domain.GatewayInvalidRequest, Message: "invalid payment token", Err: err}
	}
	for key, value := range spec.Metadata {
		params.AddMetadata(key, value)
	}

	charge, err := api.Charges.New(params)
	if err != nil {
		return nil, categorize(err)
	}

	handle := &domain.ChargeHandle{ID: charge.ID}
	if charge.PaymentMethodDetails != nil && charge.PaymentMethodDetails.Card != nil {
		card := charge.PaymentMethodDetails.Card
		handle.Brand = string(card.Brand)
		handle.Funding = string(card.Funding)
		handle.Last4 = card.Last4
	}
	return handle, nil
}

// CreateCustomerWithSubscription creates the customer and immediately
// subscribes them to the plan; Stripe charges the card on subscribe. No card
// metadata is captured on this path.
func (g *Gateway) CreateCustomerWithSubscription(ctx context.Context, spec domain.SubscriptionSpec) error {
	api := g.client()
	if api == nil {
		return missingCredentials()
	}

	custParams := &stripe.CustomerParams{
		Email: stripe.String(spec.DonorMail),
	}
	custParams.Context = ctx
	if err := custParams.SetSource(spec.Token); err != nil {
		return &domain.GatewayError{Category: domain.GatewayInvalidRequest, Message: "invalid payment token", Err: err}
	}
	for key, value := range spec.Metadata {
		custParams.AddMetadata(key, value)
	}

	customer, err := api.Customers.New(custParams)
	if err != nil {
		return categorize(err)
	}

	subParams := &stripe.SubscriptionParams{
		Customer: stripe.String(customer.ID),
		Items: []*stripe.SubscriptionItemsParams{
			{Plan: stripe.String(spec.PlanID)},
		},
	}
	subParams.Context = ctx
	for key, value := range spec.Metadata {
		subParams.AddMetadata(key, value)
	}

	if _, err := api.Subscriptions.New(subParams); err != nil {
		return categorize(err)
	}
	return nil
}

func missingCredentials() error {
	return &domain.GatewayError{
		Category: domain.GatewayGeneric,
		Message:  "gateway credentials not set",
	}
}

// planAlreadyExists recognizes the invalid-request response Stripe returns
// when a plan id is reused.
func planAlreadyExists(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	if stripeErr.Type != stripe.ErrorTypeInvalidRequest {
		return false
	}
	if stripeErr.Code == stripe.ErrorCodeResourceAlreadyExists {
		return true
	}
	return strings.Contains(strings.ToLower(stripeErr.Msg), "already exists")
}

// categorize maps SDK failures onto the settlement error taxonomy. Context
// cancellation and timeouts count as connection problems: transient, safe for
// the donor to retry.
func categorize(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Type {
		case stripe.ErrorTypeAPIConnection:
			return &domain.GatewayError{Category: domain.GatewayConnection, Message: stripeErr.Msg, Err: err}
		case stripe.ErrorTypeCard:
			return &domain.GatewayError{Category: domain.GatewayCard, Message: stripeErr.Msg, Err: err}
		case stripe.ErrorTypeInvalidRequest:
			return &domain.GatewayError{Category: domain.GatewayInvalidRequest, Message: stripeErr.Msg, Err: err}
		default:
			return &domain.GatewayError{Category: domain.GatewayGeneric, Message: stripeErr.Msg, Err: err}
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &domain.GatewayError{Category: domain.GatewayConnection, Message: "gateway call timed out", Err: err}
	}
	return &domain.GatewayError{Category: domain.GatewayGeneric, Message: fmt.Sprintf("unexpected gateway failure: %v", err), Err: err}
}

var _ domain.PaymentGateway = (*Gateway)(nil)
