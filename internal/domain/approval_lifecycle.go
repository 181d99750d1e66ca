package domain

import "fmt"

var approvalTransitions = map[ApprovalStatus][]ApprovalStatus{
	ApprovalStatusPending:  {ApprovalStatusApproved, ApprovalStatusRejected},
	ApprovalStatusApproved: {ApprovalStatusRejected},
	ApprovalStatusRejected: {ApprovalStatusApproved},
}

// CanTransition returns true when an approval transition is allowed.
func CanTransition(from, to ApprovalStatus) bool {
	allowed, ok := approvalTransitions[from]
	if !ok {
		return false
	}
	for _, candidate := range allowed {
		if candidate == to {
			return true
		}
	}
	return false
}

// ValidateTransition ensures an approval status change is valid.
func ValidateTransition(from, to ApprovalStatus) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("invalid approval status transition")
	}
	if from == to {
		return nil
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("approval status transition %q -> %q not allowed", from, to)
	}
	return nil
}
