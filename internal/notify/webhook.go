// Package notify delivers donation receipts to an external webhook. The
// endpoint owns formatting and delivery of the actual email or message.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"giveserver/internal/domain"
)

// WebhookDispatcher posts a donation receipt payload to a configured URL.
// A zero URL disables delivery.
type WebhookDispatcher struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

func NewWebhookDispatcher(url string, logger zerolog.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

type receiptPayload struct {
	Event        string `json:"event"`
	DonationUUID string `json:"donation_uuid"`
	FormID       string `json:"form_id"`
	FormLabel    string `json:"form_label"`
	Label        string `json:"label"`
	Name         string `json:"name"`
	Mail         string `json:"mail"`
	Amount       string `json:"amount"`
	Method       string `json:"method"`
	Recurring    bool   `json:"recurring"`
	ReplyType    string `json:"reply_type"`
	ReplySubject string `json:"reply_subject"`
	ReplyBody    string `json:"reply_body"`
	Completed    bool   `json:"completed"`
}

// SendDonationNotice posts the receipt. Errors are returned to the caller,
// who treats delivery as best effort.
func (d *WebhookDispatcher) SendDonationNotice(ctx context.Context, record *domain.DonationRecord, form *domain.GiveFormConfig) error {
	if d.url == "" {
		return nil
	}

	subject, bodyText := form.ReplyFor(record.ReplyType())
	payload := receiptPayload{
		Event:        "donation.notice",
		DonationUUID: record.UUID,
		FormID:       record.FormID,
		FormLabel:    form.Label,
		Label:        record.Label,
		Name:         record.DonorName,
		Mail:         record.DonorMail,
		Amount:       domain.CentsToDollars(record.AmountCents),
		Method:       string(record.Method),
		Recurring:    record.Recurring(),
		ReplyType:    string(record.ReplyType()),
		ReplySubject: subject,
		ReplyBody:    bodyText,
		Completed:    record.Completed,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal receipt: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post receipt: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned %d", resp.StatusCode)
	}

	d.logger.Debug().
		Str("donation_uuid", record.UUID).
		Str("reply_type", string(record.ReplyType())).
		Msg("donation notice delivered")
	return nil
}

var _ domain.NotificationDispatcher = (*WebhookDispatcher)(nil)
