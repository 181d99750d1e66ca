package repo

import (
	"context"
	"errors"

	"github.com/vesper-ml/vesper-go/internal/domain"
)

var ErrNotFound = errors.New("not found")

type ModelPackageFilter struct {
	GroupName string
	Status    domain.ApprovalStatus
	Limit     int
}

// ModelPackageRepository manages registered model packages.
type ModelPackageRepository interface {
	Create(ctx context.Context, pkg domain.ModelPackage) (domain.ModelPackage, error)
	Get(ctx context.Context, id string) (domain.ModelPackage, error)
	List(ctx context.Context, filter ModelPackageFilter) ([]domain.ModelPackage, error)
	UpdateApprovalStatus(ctx context.Context, id string, status domain.ApprovalStatus) error
}
