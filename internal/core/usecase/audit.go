package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
	"github.com/kirillkom/vendor-onboarding/internal/core/ports"
)

type AuditTrailUseCase struct {
	requests ports.VendorRequestRepository
	history  ports.HistoryRepository
}

func NewAuditTrailUseCase(requests ports.VendorRequestRepository, history ports.HistoryRepository) *AuditTrailUseCase {
	return &AuditTrailUseCase{requests: requests, history: history}
}

// History returns entries ordered by changed_at, then id.
func (uc *AuditTrailUseCase) History(ctx context.Context, requestID string) ([]domain.StatusHistoryEntry, error) {
	if _, err := uc.requests.Get(ctx, ports.ByID(requestID)); err != nil {
		return nil, fmt.Errorf("load vendor request: %w", err)
	}
	entries, err := uc.history.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	if entries == nil {
		entries = []domain.StatusHistoryEntry{}
	}
	return entries, nil
}
