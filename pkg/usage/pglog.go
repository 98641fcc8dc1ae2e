package usage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGLog stores entries in the usage_logs table.
type PGLog struct {
	pool *pgxpool.Pool
}

// NewPGLog returns a Log backed by pool.
func NewPGLog(pool *pgxpool.Pool) *PGLog {
	return &PGLog{pool: pool}
}

func (l *PGLog) Append(ctx context.Context, e Entry) error {
	var metadata []byte
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return err
		}
		metadata = b
	}

	var resourceID *string
	if e.ResourceID != "" {
		resourceID = &e.ResourceID
	}

	_, err := l.pool.Exec(ctx,
		`INSERT INTO usage_logs (id, user_id, action, resource_id, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.IdentityID, e.Action, resourceID, metadata, e.CreatedAt,
	)
	return err
}

func (l *PGLog) Count(ctx context.Context, identityID uuid.UUID, action string, since time.Time) (int64, error) {
	var n int64
	err := l.pool.QueryRow(ctx,
		`SELECT count(*) FROM usage_logs
		 WHERE user_id = $1 AND action = $2 AND created_at >= $3`,
		identityID, action, since,
	).Scan(&n)
	return n, err
}
