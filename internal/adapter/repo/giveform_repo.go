package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"giveserver/internal/domain"
)

// GiveFormRepositoryPG implements domain.GiveFormRepository using PostgreSQL.
// The frequency catalog is stored as an ordered jsonb array; recipients as a
// text array.
type GiveFormRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewGiveFormRepository creates a new form config repo.
func NewGiveFormRepository(pool *pgxpool.Pool) *GiveFormRepositoryPG {
	return &GiveFormRepositoryPG{pool: pool}
}

const giveFormColumns = `
id, label, recipients,
subject, reply, subject_recurring, reply_recurring, subject_pledge, reply_pledge,
check_or_other_text, credit_card_extra_text, collect_address,
redirect_uri, submit_text, payment_submit_text, frequencies
`

// GetByID loads one form configuration.
func (r *GiveFormRepositoryPG) GetByID(ctx context.Context, id string) (*domain.GiveFormConfig, error) {
	row := r.pool.QueryRow(ctx, `
SELECT `+giveFormColumns+`
FROM give_forms
WHERE id = $1;
`, id)
	return scanGiveForm(row)
}

// List returns all form configurations ordered by id.
func (r *GiveFormRepositoryPG) List(ctx context.Context) ([]domain.GiveFormConfig, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+giveFormColumns+`
FROM give_forms
ORDER BY id;
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.GiveFormConfig
	for rows.Next() {
		form, err := scanGiveForm(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *form)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// ReplaceFrequencies swaps the whole ordered catalog of a form. The catalog
// is validated before it is written.
func (r *GiveFormRepositoryPG) ReplaceFrequencies(ctx context.Context, formID string, frequencies domain.FrequencyCatalog) error {
	if err := frequencies.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(frequencies)
	if err != nil {
		return fmt.Errorf("encode frequencies: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
UPDATE give_forms
SET frequencies = $2
WHERE id = $1;
`, formID, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanGiveForm(row pgx.Row) (*domain.GiveFormConfig, error) {
	var form domain.GiveFormConfig
	var rawFrequencies []byte
	err := row.Scan(
		&form.ID, &form.Label, &form.Recipients,
		&form.Subject, &form.Reply,
		&form.SubjectRecurring, &form.ReplyRecurring,
		&form.SubjectPledge, &form.ReplyPledge,
		&form.CheckOrOtherText, &form.CreditCardExtraText, &form.CollectAddress,
		&form.RedirectURI, &form.SubmitText, &form.PaymentSubmitText,
		&rawFrequencies,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(rawFrequencies) > 0 {
		if err := json.Unmarshal(rawFrequencies, &form.Frequencies); err != nil {
			return nil, fmt.Errorf("decode frequencies for form %q: %w", form.ID, err)
		}
	}
	return &form, nil
}

var _ domain.GiveFormRepository = (*GiveFormRepositoryPG)(nil)
