package enums

import "fmt"

// BalanceRequestStatus tracks a deposit request through admin review.
type BalanceRequestStatus string

const (
	BalanceRequestStatusPending  BalanceRequestStatus = "pending"
	BalanceRequestStatusApproved BalanceRequestStatus = "approved"
	BalanceRequestStatusRejected BalanceRequestStatus = "rejected"
)

var validBalanceRequestStatuses = []BalanceRequestStatus{
	BalanceRequestStatusPending,
	BalanceRequestStatusApproved,
	BalanceRequestStatusRejected,
}

// IsValid reports whether the value is a known BalanceRequestStatus.
func (s BalanceRequestStatus) IsValid() bool {
	for _, candidate := range validBalanceRequestStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseBalanceRequestStatus converts raw input into a BalanceRequestStatus.
func ParseBalanceRequestStatus(value string) (BalanceRequestStatus, error) {
	for _, candidate := range validBalanceRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid balance request status %q", value)
}

// RequestDecision is the admin verdict on a pending balance request.
type RequestDecision string

const (
	RequestDecisionApprove RequestDecision = "approve"
	RequestDecisionReject  RequestDecision = "reject"
)

// ParseRequestDecision converts raw input into a RequestDecision.
func ParseRequestDecision(value string) (RequestDecision, error) {
	switch RequestDecision(value) {
	case RequestDecisionApprove, RequestDecisionReject:
		return RequestDecision(value), nil
	}
	return "", fmt.Errorf("invalid decision %q", value)
}

// IsValid reports whether the decision is approve or reject.
func (d RequestDecision) IsValid() bool {
	return d == RequestDecisionApprove || d == RequestDecisionReject
}

// ResultingStatus maps the decision onto the terminal request status.
func (d RequestDecision) ResultingStatus() BalanceRequestStatus {
	if d == RequestDecisionApprove {
		return BalanceRequestStatusApproved
	}
	return BalanceRequestStatusRejected
}
