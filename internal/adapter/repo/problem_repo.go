package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"giveserver/internal/domain"
)

// ProblemLogRepositoryPG implements domain.ProblemLogRepository using
// PostgreSQL. It is a write-mostly diagnostic sink; nothing in settlement
// reads it.
type ProblemLogRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewProblemLogRepository creates a new problem log repo.
func NewProblemLogRepository(pool *pgxpool.Pool) *ProblemLogRepositoryPG {
	return &ProblemLogRepositoryPG{pool: pool}
}

// Log records one client-side payment problem for a donation.
func (r *ProblemLogRepositoryPG) Log(ctx context.Context, donationUUID, problemType, detail string) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO give_problems (donation_uuid, type, detail, created_at)
VALUES ($1, $2, $3, $4);
`, donationUUID, problemType, detail, time.Now().UTC())
	return err
}

// ListByDonation returns problems logged against a donation, oldest first.
func (r *ProblemLogRepositoryPG) ListByDonation(ctx context.Context, donationUUID string) ([]domain.Problem, error) {
	rows, err := r.pool.Query(ctx, `
SELECT donation_uuid, type, detail, created_at
FROM give_problems
WHERE donation_uuid = $1
ORDER BY created_at;
`, donationUUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.Problem
	for rows.Next() {
		var problem domain.Problem
		if err := rows.Scan(&problem.DonationUUID, &problem.Type, &problem.Detail, &problem.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, problem)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

var _ domain.ProblemLogRepository = (*ProblemLogRepositoryPG)(nil)
