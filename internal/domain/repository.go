package domain

import "context"

// DonationRepository handles donation record persistence.
type DonationRepository interface {
	Create(ctx context.Context, donation *DonationRecord) error
	GetByUUID(ctx context.Context, uuid string) (*DonationRecord, error)
	// Update persists the mutable pre-settlement fields (method, contact,
	// address) of an existing record.
	Update(ctx context.Context, donation *DonationRecord) error
	// Complete flips the completion flag and writes card metadata in one
	// statement guarded by completed = false. It returns false when another
	// writer completed the record first.
	Complete(ctx context.Context, donation *DonationRecord) (bool, error)
	ListRecent(ctx context.Context, limit int) ([]DonationRecord, error)
}

// GiveFormRepository provides read access to form configuration and admin
// replacement of the frequency catalog.
type GiveFormRepository interface {
	GetByID(ctx context.Context, id string) (*GiveFormConfig, error)
	List(ctx context.Context) ([]GiveFormConfig, error)
	ReplaceFrequencies(ctx context.Context, formID string, frequencies FrequencyCatalog) error
}

// ProblemLogRepository is the write-only diagnostic sink for client-side
// payment problems.
type ProblemLogRepository interface {
	Log(ctx context.Context, donationUUID, problemType, detail string) error
	ListByDonation(ctx context.Context, donationUUID string) ([]Problem, error)
}

// NotificationDispatcher sends receipts and recipient notices after a
// donation is accepted. Failures are logged by callers, never fatal.
type NotificationDispatcher interface {
	SendDonationNotice(ctx context.Context, donation *DonationRecord, form *GiveFormConfig) error
}
