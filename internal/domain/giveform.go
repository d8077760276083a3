package domain

import "fmt"

// IntervalUnitMonth is the only recurrence interval unit the system models.
const IntervalUnitMonth = "month"

// Frequency is one recurrence plan offered by a pledge form.
type Frequency struct {
	IntervalUnit  string `json:"interval"`
	IntervalCount int    `json:"interval_count"`
	Description   string `json:"description"`
}

// FrequencyCatalog is the ordered list of recurrence plans a form offers.
// Index RecurrenceNone denotes a one-time donation and is guarded, never
// looked up.
type FrequencyCatalog []Frequency

// At returns the catalog entry at index. The one-time sentinel and any
// out-of-range index are errors, not silently clamped.
func (c FrequencyCatalog) At(index int) (Frequency, error) {
	if index == RecurrenceNone {
		return Frequency{}, fmt.Errorf("recurrence index %d is the one-time sentinel and has no catalog entry", index)
	}
	if index < 0 || index >= len(c) {
		return Frequency{}, fmt.Errorf("recurrence index %d out of range (catalog has %d entries)", index, len(c))
	}
	return c[index], nil
}

// ValidIndex reports whether index is acceptable on a pledge against this
// catalog: either the one-time sentinel or a real entry.
func (c FrequencyCatalog) ValidIndex(index int) bool {
	if index == RecurrenceNone {
		return true
	}
	return index >= 0 && index < len(c)
}

// PlanID derives the gateway plan identifier for a pledge of amountCents at
// the catalog entry index. It is a pure function of its inputs so that
// economically identical pledges share one gateway plan.
func (c FrequencyCatalog) PlanID(formID string, amountCents int64, index int) (string, error) {
	freq, err := c.At(index)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("give-%s-%d-%d%s", formID, amountCents, freq.IntervalCount, freq.IntervalUnit), nil
}

// PlanName composes the human-readable plan label from the amount and the
// catalog entry's description.
func (c FrequencyCatalog) PlanName(amountCents int64, index int) (string, error) {
	freq, err := c.At(index)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s", CentsToDollars(amountCents), freq.Description), nil
}

// Validate checks every entry for the month-multiple constraint.
func (c FrequencyCatalog) Validate() error {
	for i, freq := range c {
		if freq.IntervalUnit != IntervalUnitMonth {
			return fmt.Errorf("frequency %d: interval unit %q not supported, only %q", i, freq.IntervalUnit, IntervalUnitMonth)
		}
		if freq.IntervalCount < 1 {
			return fmt.Errorf("frequency %d: interval count must be positive, got %d", i, freq.IntervalCount)
		}
	}
	return nil
}

// DefaultFrequencies is the catalog new forms start with.
func DefaultFrequencies() FrequencyCatalog {
	return FrequencyCatalog{
		{IntervalUnit: IntervalUnitMonth, IntervalCount: 1, Description: "Monthly"},
		{IntervalUnit: IntervalUnitMonth, IntervalCount: 3, Description: "Quarterly"},
		{IntervalUnit: IntervalUnitMonth, IntervalCount: 12, Description: "Yearly"},
	}
}

// GiveFormConfig is the admin-owned configuration for one pledge form. The
// settlement core consumes it read-only; only the frequency catalog is
// mutable through this service (admin CRUD over an ordered list).
type GiveFormConfig struct {
	ID         string
	Label      string
	Recipients []string

	// Receipt template pairs keyed by donation class.
	Subject          string
	Reply            string
	SubjectRecurring string
	ReplyRecurring   string
	SubjectPledge    string
	ReplyPledge      string

	CheckOrOtherText    string
	CreditCardExtraText string
	CollectAddress      bool
	RedirectURI         string
	SubmitText          string
	PaymentSubmitText   string
	Frequencies         FrequencyCatalog
}

// ReplyFor returns the subject/body template pair for the given reply type.
func (f *GiveFormConfig) ReplyFor(rt ReplyType) (subject, body string) {
	switch rt {
	case ReplyRecurring:
		return f.SubjectRecurring, f.ReplyRecurring
	case ReplyPledge:
		return f.SubjectPledge, f.ReplyPledge
	default:
		return f.Subject, f.Reply
	}
}
