package domain

import "time"

// StatusHistoryEntry is an immutable audit record of one accepted transition.
type StatusHistoryEntry struct {
	ID        string        `json:"id"`
	RequestID string        `json:"request_id"`
	OldStatus RequestStatus `json:"old_status"`
	NewStatus RequestStatus `json:"new_status"`
	ChangedAt time.Time     `json:"changed_at"`
	ChangedBy string        `json:"changed_by"`
	Note      string        `json:"note,omitempty"`
}
