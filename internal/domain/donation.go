package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Method is the way a donor chose to fulfill a pledge.
type Method string

const (
	MethodCard         Method = "card"
	MethodCheckOrOther Method = "check_or_other"
)

// RecurrenceNone is the sentinel recurrence index for one-time donations. It
// must never be used to look up a frequency catalog entry.
const RecurrenceNone = -1

// Currency is fixed for the whole system; multi-currency is a non-goal.
const Currency = "usd"

// ReplyType selects which receipt template pair a donation should use.
type ReplyType string

const (
	ReplyOneTime   ReplyType = "reply"
	ReplyRecurring ReplyType = "reply_recurring"
	ReplyPledge    ReplyType = "reply_pledge"
)

// DonationRecord is the durable state of a single pledge. It is created by the
// intake step, settled exactly once by the settlement service, and never
// deleted by this process.
type DonationRecord struct {
	ID              int64
	UUID            string
	FormID          string
	DonorName       string
	DonorMail       string
	Label           string
	AmountCents     int64
	RecurrenceIndex int
	Method          Method

	// PaymentToken is the single-use gateway token supplied on the payment
	// step. It is held in memory only and never persisted.
	PaymentToken string

	// Card metadata, populated only after a successful one-time card charge.
	CardBrand   string
	CardFunding string
	CardLast4   string

	Telephone        string
	CheckOrOtherNote string

	AddressLine1   string
	AddressLine2   string
	AddressCity    string
	AddressState   string
	AddressZip     string
	AddressCountry string

	Completed bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Recurring reports whether the pledge points at a recurrence plan.
func (d *DonationRecord) Recurring() bool {
	return d.RecurrenceIndex != RecurrenceNone
}

// ReplyType returns the receipt template class for this donation: pledges by
// check or other means get the pledge reply, card donations get the one-time
// or recurring reply.
func (d *DonationRecord) ReplyType() ReplyType {
	if d.Method == MethodCheckOrOther {
		return ReplyPledge
	}
	if d.Recurring() {
		return ReplyRecurring
	}
	return ReplyOneTime
}

// DollarAmount renders the stored cents as a user-facing dollar string.
func (d *DonationRecord) DollarAmount() string {
	return CentsToDollars(d.AmountCents)
}

// BuildLabel assembles the label a donation carries through receipts, charge
// descriptions and plan names: form label, donor name, donor mail.
func BuildLabel(formLabel, donorName, donorMail string) string {
	var b strings.Builder
	b.WriteString(formLabel)
	b.WriteString(" : ")
	if donorName != "" {
		b.WriteString(donorName)
		b.WriteString(" ")
	}
	if donorMail != "" {
		b.WriteString("(" + donorMail + ") ")
	}
	return strings.TrimSpace(b.String())
}

// CentsToDollars formats an integral cent amount as dollars, e.g. 2200 ->
// "$22.00".
func CentsToDollars(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

// ParseDollarAmount converts a user-facing dollar amount such as "$22.00",
// "22", or "22.5" into cents. Fractions smaller than a cent are rejected, not
// rounded.
func ParseDollarAmount(s string) (int64, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	trimmed = strings.ReplaceAll(trimmed, ",", "")
	if trimmed == "" {
		return 0, fmt.Errorf("amount is required")
	}
	dec, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	cents := dec.Mul(decimal.NewFromInt(100))
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has sub-cent precision", s)
	}
	return cents.IntPart(), nil
}

// Problem is one diagnostic entry from the client-side payment script,
// correlated to a donation by uuid. It never influences settlement.
type Problem struct {
	DonationUUID string
	Type         string
	Detail       string
	CreatedAt    time.Time
}
