package workflow

import (
	"errors"
	"strings"
)

// Approval statuses a model package may be registered with.
const (
	ApprovalStatusPending  = "PendingManualApproval"
	ApprovalStatusApproved = "Approved"
	ApprovalStatusRejected = "Rejected"
)

// RegisterModelConfig configures a register model step. Exactly one of
// StepArgs (a consolidated, pre-built argument payload) or the legacy
// field set (content types, response types, inference and transform
// instance types) must be provided. A non-nil empty slice counts as
// provided.
type RegisterModelConfig struct {
	Name                   string
	StepArgs               map[string]any
	ModelPackageGroup      string
	ModelData              any
	ImageURI               string
	ContentTypes           []string
	ResponseTypes          []string
	InferenceInstanceTypes []string
	TransformInstanceTypes []string
	ApprovalStatus         string
	Description            string
	ModelMetrics           map[string]any
	DependsOn              []string
}

// RegisterModelStep publishes a model to the model registry.
type RegisterModelStep struct {
	cfg RegisterModelConfig
}

func NewRegisterModelStep(cfg RegisterModelConfig) (*RegisterModelStep, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, errors.New("step name is required")
	}
	legacy := cfg.ContentTypes != nil || cfg.ResponseTypes != nil ||
		cfg.InferenceInstanceTypes != nil || cfg.TransformInstanceTypes != nil
	if cfg.StepArgs != nil && legacy {
		return nil, errors.New("step args and the legacy parameter set are mutually exclusive; exactly one of them should be provided")
	}
	if cfg.StepArgs == nil && !legacy {
		return nil, errors.New("register model step has no configuration; either step args or the legacy parameter set should be provided")
	}
	if cfg.StepArgs == nil {
		if strings.TrimSpace(cfg.ApprovalStatus) == "" {
			cfg.ApprovalStatus = ApprovalStatusPending
		}
	}
	cfg.Name = strings.TrimSpace(cfg.Name)
	return &RegisterModelStep{cfg: cfg}, nil
}

func (s *RegisterModelStep) Name() string { return s.cfg.Name }

func (s *RegisterModelStep) Type() StepType { return StepTypeRegisterModel }

func (s *RegisterModelStep) DependsOn() []string { return s.cfg.DependsOn }

// Properties references the runtime attributes of the registered package.
func (s *RegisterModelStep) Properties() RegisterModelProperties {
	return registerModelProperties(s.cfg.Name)
}

func (s *RegisterModelStep) Arguments() (map[string]any, error) {
	if s.cfg.StepArgs != nil {
		return cloneArgs(s.cfg.StepArgs), nil
	}

	container := map[string]any{}
	if strings.TrimSpace(s.cfg.ImageURI) != "" {
		container["Image"] = s.cfg.ImageURI
	}
	if s.cfg.ModelData != nil {
		container["ModelDataUrl"] = s.cfg.ModelData
	}

	args := map[string]any{
		"InferenceSpecification": map[string]any{
			"Containers":                              []any{container},
			"SupportedContentTypes":                   stringList(s.cfg.ContentTypes),
			"SupportedResponseMIMETypes":              stringList(s.cfg.ResponseTypes),
			"SupportedRealtimeInferenceInstanceTypes": stringList(s.cfg.InferenceInstanceTypes),
			"SupportedTransformInstanceTypes":         stringList(s.cfg.TransformInstanceTypes),
		},
		"ModelApprovalStatus": s.cfg.ApprovalStatus,
	}
	if strings.TrimSpace(s.cfg.ModelPackageGroup) != "" {
		args["ModelPackageGroupName"] = s.cfg.ModelPackageGroup
	}
	if strings.TrimSpace(s.cfg.Description) != "" {
		args["ModelPackageDescription"] = s.cfg.Description
	}
	if s.cfg.ModelMetrics != nil {
		args["ModelMetrics"] = cloneArgs(s.cfg.ModelMetrics)
	}
	return args, nil
}

// cloneArgs copies an argument map deeply so callers mutating the
// rendered arguments cannot reach back into the step configuration.
// Expressions and other non-container values pass through as-is.
func cloneArgs(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return cloneArgs(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// stringList normalizes nil and empty slices to an empty JSON array so
// renders stay deterministic.
func stringList(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
