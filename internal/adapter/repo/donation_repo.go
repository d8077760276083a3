package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"giveserver/internal/domain"
)

// DonationRepositoryPG implements domain.DonationRepository using PostgreSQL.
// The payment token is deliberately absent from every statement; it is never
// persisted.
type DonationRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewDonationRepository creates a new donation repo.
func NewDonationRepository(pool *pgxpool.Pool) *DonationRepositoryPG {
	return &DonationRepositoryPG{pool: pool}
}

// Create inserts a new donation record in its draft state.
func (r *DonationRepositoryPG) Create(ctx context.Context, donation *domain.DonationRecord) error {
	row := r.pool.QueryRow(ctx, `
INSERT INTO donations (
	uuid, form_id, donor_name, donor_mail, label, amount_cents,
	recurrence_index, method, completed, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, $9, $9)
RETURNING id;
`, donation.UUID, donation.FormID, donation.DonorName, donation.DonorMail,
		donation.Label, donation.AmountCents, donation.RecurrenceIndex,
		string(donation.Method), donation.CreatedAt)
	return row.Scan(&donation.ID)
}

// GetByUUID loads a donation by its correlation uuid.
func (r *DonationRepositoryPG) GetByUUID(ctx context.Context, uuid string) (*domain.DonationRecord, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, uuid, form_id, donor_name, donor_mail, label, amount_cents,
       recurrence_index, method, card_brand, card_funding, card_last4,
       telephone, check_or_other_note,
       address_line1, address_line2, address_city, address_state,
       address_zip, address_country,
       completed, created_at, updated_at
FROM donations
WHERE uuid = $1;
`, uuid)
	return scanDonation(row)
}

// Update persists the pre-settlement mutable fields.
func (r *DonationRepositoryPG) Update(ctx context.Context, donation *domain.DonationRecord) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE donations
SET donor_name = $2, method = $3, telephone = $4, check_or_other_note = $5,
    address_line1 = $6, address_line2 = $7, address_city = $8,
    address_state = $9, address_zip = $10, address_country = $11,
    updated_at = $12
WHERE uuid = $1;
`, donation.UUID, donation.DonorName, string(donation.Method),
		donation.Telephone, donation.CheckOrOtherNote,
		donation.AddressLine1, donation.AddressLine2, donation.AddressCity,
		donation.AddressState, donation.AddressZip, donation.AddressCountry,
		donation.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Complete flips the completion flag and writes card metadata, guarded by
// completed = false so two writers can never both settle the same record.
func (r *DonationRepositoryPG) Complete(ctx context.Context, donation *domain.DonationRecord) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE donations
SET completed = true, method = $2, card_brand = $3, card_funding = $4,
    card_last4 = $5, donor_name = $6,
    address_line1 = $7, address_line2 = $8, address_city = $9,
    address_state = $10, address_zip = $11, address_country = $12,
    updated_at = $13
WHERE uuid = $1 AND completed = false;
`, donation.UUID, string(donation.Method), donation.CardBrand,
		donation.CardFunding, donation.CardLast4, donation.DonorName,
		donation.AddressLine1, donation.AddressLine2, donation.AddressCity,
		donation.AddressState, donation.AddressZip, donation.AddressCountry,
		donation.UpdatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListRecent returns recent donations, newest first.
func (r *DonationRepositoryPG) ListRecent(ctx context.Context, limit int) ([]domain.DonationRecord, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, uuid, form_id, donor_name, donor_mail, label, amount_cents,
       recurrence_index, method, card_brand, card_funding, card_last4,
       telephone, check_or_other_note,
       address_line1, address_line2, address_city, address_state,
       address_zip, address_country,
       completed, created_at, updated_at
FROM donations
ORDER BY created_at DESC
LIMIT $1;
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.DonationRecord
	for rows.Next() {
		donation, err := scanDonation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *donation)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanDonation(row pgx.Row) (*domain.DonationRecord, error) {
	var donation domain.DonationRecord
	var method string
	err := row.Scan(
		&donation.ID, &donation.UUID, &donation.FormID,
		&donation.DonorName, &donation.DonorMail, &donation.Label,
		&donation.AmountCents, &donation.RecurrenceIndex, &method,
		&donation.CardBrand, &donation.CardFunding, &donation.CardLast4,
		&donation.Telephone, &donation.CheckOrOtherNote,
		&donation.AddressLine1, &donation.AddressLine2, &donation.AddressCity,
		&donation.AddressState, &donation.AddressZip, &donation.AddressCountry,
		&donation.Completed, &donation.CreatedAt, &donation.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	donation.Method = domain.Method(method)
	return &donation, nil
}

var _ domain.DonationRepository = (*DonationRepositoryPG)(nil)
