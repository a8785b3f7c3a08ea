package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
)

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) ListByRequest(ctx context.Context, requestID string) ([]domain.StatusHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, request_id, old_status, new_status, changed_at, changed_by, note
FROM vendor_status_history
WHERE request_id = $1
ORDER BY changed_at, id
`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	out := make([]domain.StatusHistoryEntry, 0)
	for rows.Next() {
		var (
			entry    domain.StatusHistoryEntry
			id       int64
			from, to string
		)
		if err := rows.Scan(&id, &entry.RequestID, &from, &to, &entry.ChangedAt, &entry.ChangedBy, &entry.Note); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		entry.ID = strconv.FormatInt(id, 10)
		entry.OldStatus = domain.RequestStatus(from)
		entry.NewStatus = domain.RequestStatus(to)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status history: %w", err)
	}
	return out, nil
}
