package readiness

import (
	"context"
	"errors"
	"fmt"

	"tokenshare-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Snapshot is the project state the gate decides on.
type Snapshot struct {
	Found           bool
	Status          string
	TotalTokens     int64
	AvailableTokens int64
	HolderCount     int
}

// Result is the gate's answer. HolderCount is only set when Ready.
type Result struct {
	Ready           bool   `json:"ready"`
	Reason          string `json:"reason"`
	Message         string `json:"message"`
	TokensSold      int64  `json:"tokens_sold"`
	TotalTokens     int64  `json:"total_tokens"`
	AvailableTokens int64  `json:"available_tokens"`
	HolderCount     *int   `json:"holder_count,omitempty"`
}

// Evaluate runs the ordered checks; the first failing one wins.
func Evaluate(s Snapshot) Result {
	r := Result{
		TokensSold:      s.TotalTokens - s.AvailableTokens,
		TotalTokens:     s.TotalTokens,
		AvailableTokens: s.AvailableTokens,
	}
	switch {
	case !s.Found:
		r.Reason, r.Message = domain.ReasonNotFound, "Project not found"
		r.TokensSold = 0
	case s.Status == domain.ProjectStatusCompleted:
		r.Reason, r.Message = domain.ReasonCompleted, "Profit has already been distributed for this project"
	case s.Status == domain.ProjectStatusCancelled:
		r.Reason, r.Message = domain.ReasonCancelled, "Project has been cancelled"
	case s.AvailableTokens != 0:
		r.Reason = domain.ReasonNotSoldOut
		r.Message = fmt.Sprintf("%d/%d tokens remaining", s.AvailableTokens, s.TotalTokens)
	case s.HolderCount == 0:
		r.Reason, r.Message = domain.ReasonNoHolders, "No active token holders"
	default:
		n := s.HolderCount
		r.Ready, r.Reason, r.HolderCount = true, domain.ReasonReady, &n
		r.Message = fmt.Sprintf("Ready to distribute to %d holders", n)
	}
	return r
}

// Err converts a failing result into the matching domain error, nil when ready.
func (r Result) Err() error {
	switch r.Reason {
	case domain.ReasonReady:
		return nil
	case domain.ReasonNotFound:
		return domain.ErrProjectNotFound
	case domain.ReasonCompleted:
		return fmt.Errorf("%w: %s", domain.ErrAlreadyDistributed, r.Message)
	}
	return &domain.NotReadyError{Reason: r.Reason, Detail: r.Message}
}

// Load reads the snapshot for projectID through db, which may be a
// transaction; the project row is returned when found.
func Load(ctx context.Context, db *gorm.DB, projectID uuid.UUID) (Snapshot, *domain.Project, error) {
	var project domain.Project
	if err := db.WithContext(ctx).Where("project_id = ?", projectID).First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Snapshot{}, nil, nil
		}
		return Snapshot{}, nil, err
	}
	count, err := CountHolders(ctx, db, projectID)
	if err != nil {
		return Snapshot{}, nil, err
	}
	return Snapshot{
		Found:           true,
		Status:          project.Status,
		TotalTokens:     project.TotalTokens,
		AvailableTokens: project.AvailableTokens,
		HolderCount:     count,
	}, &project, nil
}

// CountHolders counts distinct users with an active holding in the project.
func CountHolders(ctx context.Context, db *gorm.DB, projectID uuid.UUID) (int, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Holding{}).
		Where("project_id = ? AND status = ?", projectID, domain.HoldingStatusActive).
		Distinct("user_id").
		Count(&n).Error
	return int(n), err
}

// Service is the read-only readiness check exposed to callers.
type Service struct {
	DB *gorm.DB
}

// CheckReadiness reports whether profit distribution may proceed. No mutation.
func (s *Service) CheckReadiness(ctx context.Context, projectID uuid.UUID) (Result, error) {
	snap, _, err := Load(ctx, s.DB, projectID)
	if err != nil {
		return Result{}, err
	}
	return Evaluate(snap), nil
}
