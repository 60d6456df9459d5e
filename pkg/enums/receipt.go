package enums

import "fmt"

// ReceiptStatus models the one-way DRAFT -> POSTED transition of inbound stock.
type ReceiptStatus string

const (
	ReceiptStatusDraft  ReceiptStatus = "DRAFT"
	ReceiptStatusPosted ReceiptStatus = "POSTED"
)

// IsValid checks whether the given status matches the canonical enum.
func (s ReceiptStatus) IsValid() bool {
	return s == ReceiptStatusDraft || s == ReceiptStatusPosted
}

// ParseReceiptStatus converts raw strings into ReceiptStatus.
func ParseReceiptStatus(value string) (ReceiptStatus, error) {
	switch ReceiptStatus(value) {
	case ReceiptStatusDraft:
		return ReceiptStatusDraft, nil
	case ReceiptStatusPosted:
		return ReceiptStatusPosted, nil
	}
	return "", fmt.Errorf("invalid receipt status %q", value)
}

// ReceiptType distinguishes where inbound stock came from.
type ReceiptType string

const (
	// ReceiptTypeProduction receipts are emitted by production completion and
	// carry a source order reference.
	ReceiptTypeProduction ReceiptType = "PRODUCTION"
	// ReceiptTypePurchase receipts are drafted manually at the receiving dock.
	ReceiptTypePurchase ReceiptType = "PURCHASE"
)

// IsValid checks whether the given type matches the canonical enum.
func (t ReceiptType) IsValid() bool {
	return t == ReceiptTypeProduction || t == ReceiptTypePurchase
}

// ParseReceiptType converts raw strings into ReceiptType.
func ParseReceiptType(value string) (ReceiptType, error) {
	switch ReceiptType(value) {
	case ReceiptTypeProduction:
		return ReceiptTypeProduction, nil
	case ReceiptTypePurchase:
		return ReceiptTypePurchase, nil
	}
	return "", fmt.Errorf("invalid receipt type %q", value)
}
