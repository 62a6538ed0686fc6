package enums

import "fmt"

// TransactionType classifies a balance ledger entry.
type TransactionType string

const (
	TransactionTypeDeposit  TransactionType = "deposit"
	TransactionTypePurchase TransactionType = "purchase"
	TransactionTypeRefund   TransactionType = "refund"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeDeposit,
	TransactionTypePurchase,
	TransactionTypeRefund,
}

// String implements fmt.Stringer.
func (t TransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionType.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsCredit reports whether entries of this type increase the balance.
func (t TransactionType) IsCredit() bool {
	return t == TransactionTypeDeposit || t == TransactionTypeRefund
}

// ParseTransactionType converts raw input into a TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}

// TransactionReferenceType names the aggregate a ledger entry points at.
type TransactionReferenceType string

const (
	ReferenceTypeOrder           TransactionReferenceType = "order"
	ReferenceTypeBalanceRequest  TransactionReferenceType = "balance_request"
	ReferenceTypeAdminAdjustment TransactionReferenceType = "admin_adjustment"
)

// IsValid reports whether the value is a known reference type.
func (r TransactionReferenceType) IsValid() bool {
	switch r {
	case ReferenceTypeOrder, ReferenceTypeBalanceRequest, ReferenceTypeAdminAdjustment:
		return true
	}
	return false
}
