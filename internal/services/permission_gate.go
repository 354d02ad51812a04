package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/studyflow-backend/internal/logger"
	"github.com/yungbote/studyflow-backend/internal/types"
)

type Decision struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
	Limit     int  `json:"limit"`
	IsPremium bool `json:"is_premium"`
}

// PermissionGateService answers "may this user start this feature right
// now". It is read-only: the actual charge happens in the orchestrator only
// after the pipeline succeeds, so a failed job never consumes allowance.
// Charge-on-success alone would let two concurrent submissions of the same
// source both succeed and double-charge, which is why the processing lock,
// not this gate, is the concurrency guard.
type PermissionGateService interface {
	CheckFeatureUsage(ctx context.Context, userID uuid.UUID, planType, feature string) (Decision, error)
}

type permissionGateService struct {
	log    *logger.Logger
	ledger QuotaLedgerService
}

func NewPermissionGateService(baseLog *logger.Logger, ledger QuotaLedgerService) PermissionGateService {
	return &permissionGateService{
		log:    baseLog.With("service", "PermissionGateService"),
		ledger: ledger,
	}
}

func (s *permissionGateService) CheckFeatureUsage(ctx context.Context, userID uuid.UUID, planType, feature string) (Decision, error) {
	feature = strings.TrimSpace(feature)
	if feature == "" {
		return Decision{}, fmt.Errorf("%w: missing feature", ErrValidation)
	}
	if userID == uuid.Nil {
		return Decision{}, fmt.Errorf("%w: missing user id", ErrValidation)
	}

	usage, err := s.ledger.Check(ctx, userID, feature, planType)
	if err != nil {
		return Decision{}, fmt.Errorf("check feature usage: %w", err)
	}
	return Decision{
		Allowed:   usage.Allowed,
		Remaining: usage.Remaining,
		Limit:     usage.Limit,
		IsPremium: strings.EqualFold(planType, types.PlanTypePremium),
	}, nil
}
