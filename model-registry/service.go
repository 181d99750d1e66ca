package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vesper-ml/vesper-go/internal/domain"
	"github.com/vesper-ml/vesper-go/internal/repo"
)

type registerInput struct {
	GroupName              string
	Description            string
	ModelDataURI           string
	ImageURI               string
	ContentTypes           []string
	ResponseTypes          []string
	InferenceInstanceTypes []string
	TransformInstanceTypes []string
	ApprovalStatus         domain.ApprovalStatus
	Metadata               map[string]any
	Actor                  string
}

type registryService struct {
	packages repo.ModelPackageRepository
	now      func() time.Time
}

func newRegistryService(packages repo.ModelPackageRepository) *registryService {
	return &registryService{
		packages: packages,
		now:      time.Now,
	}
}

func (s *registryService) RegisterPackage(ctx context.Context, in registerInput) (domain.ModelPackage, error) {
	if s == nil || s.packages == nil {
		return domain.ModelPackage{}, fmt.Errorf("registry service not initialized")
	}

	status := in.ApprovalStatus
	if strings.TrimSpace(string(status)) == "" {
		status = domain.ApprovalStatusPending
	}
	metadata := in.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	pkg := domain.ModelPackage{
		ID:                     uuid.NewString(),
		GroupName:              strings.TrimSpace(in.GroupName),
		Description:            strings.TrimSpace(in.Description),
		ModelDataURI:           strings.TrimSpace(in.ModelDataURI),
		ImageURI:               strings.TrimSpace(in.ImageURI),
		ContentTypes:           in.ContentTypes,
		ResponseTypes:          in.ResponseTypes,
		InferenceInstanceTypes: in.InferenceInstanceTypes,
		TransformInstanceTypes: in.TransformInstanceTypes,
		ApprovalStatus:         status,
		Metadata:               domain.Metadata(metadata),
		CreatedAt:              s.now().UTC(),
		CreatedBy:              strings.TrimSpace(in.Actor),
	}
	if err := pkg.Validate(); err != nil {
		return domain.ModelPackage{}, err
	}

	return s.packages.Create(ctx, pkg)
}

func (s *registryService) GetPackage(ctx context.Context, id string) (domain.ModelPackage, error) {
	if s == nil || s.packages == nil {
		return domain.ModelPackage{}, fmt.Errorf("registry service not initialized")
	}
	return s.packages.Get(ctx, id)
}

func (s *registryService) ListPackages(ctx context.Context, group string, status domain.ApprovalStatus, limit int) ([]domain.ModelPackage, error) {
	if s == nil || s.packages == nil {
		return nil, fmt.Errorf("registry service not initialized")
	}
	return s.packages.List(ctx, repo.ModelPackageFilter{
		GroupName: strings.TrimSpace(group),
		Status:    status,
		Limit:     limit,
	})
}

// SetApprovalStatus moves a package through the approval lifecycle. The
// current status is loaded first so illegal transitions fail before any
// write happens.
func (s *registryService) SetApprovalStatus(ctx context.Context, id string, status domain.ApprovalStatus) (domain.ModelPackage, error) {
	if s == nil || s.packages == nil {
		return domain.ModelPackage{}, fmt.Errorf("registry service not initialized")
	}

	pkg, err := s.packages.Get(ctx, id)
	if err != nil {
		return domain.ModelPackage{}, err
	}
	if err := domain.ValidateTransition(pkg.ApprovalStatus, status); err != nil {
		return domain.ModelPackage{}, err
	}
	if pkg.ApprovalStatus == status {
		return pkg, nil
	}
	if err := s.packages.UpdateApprovalStatus(ctx, id, status); err != nil {
		return domain.ModelPackage{}, err
	}
	pkg.ApprovalStatus = status
	return pkg, nil
}
