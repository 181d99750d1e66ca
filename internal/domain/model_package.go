package domain

import (
	"errors"
	"strings"
	"time"
)

// ApprovalStatus represents the review state of a registered model package.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PendingManualApproval"
	ApprovalStatusApproved ApprovalStatus = "Approved"
	ApprovalStatusRejected ApprovalStatus = "Rejected"
)

// ModelPackage is a versioned model published to the registry together
// with its inference specification.
type ModelPackage struct {
	ID                     string
	GroupName              string
	Version                int
	Description            string
	ModelDataURI           string
	ImageURI               string
	ContentTypes           []string
	ResponseTypes          []string
	InferenceInstanceTypes []string
	TransformInstanceTypes []string
	ApprovalStatus         ApprovalStatus
	Metadata               Metadata
	CreatedAt              time.Time
	CreatedBy              string
}

func (p ModelPackage) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("model package id is required")
	}
	if strings.TrimSpace(p.GroupName) == "" {
		return errors.New("model package group is required")
	}
	if strings.TrimSpace(p.ModelDataURI) == "" {
		return errors.New("model data location is required")
	}
	if strings.TrimSpace(p.ImageURI) == "" {
		return errors.New("image uri is required")
	}
	if !p.ApprovalStatus.Valid() {
		return errors.New("invalid approval status")
	}
	return nil
}

func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalStatusPending, ApprovalStatusApproved, ApprovalStatusRejected:
		return true
	default:
		return false
	}
}
