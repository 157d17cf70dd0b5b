package ledger

import "github.com/nusantara-erp/ledger-core/internal/shared"

// SourceKind enumerates the business documents that may produce a journal
// batch. The posting engine dispatches on this closed set instead of a
// free-form (string, id) pair.
type SourceKind string

const (
	SourceSale           SourceKind = "SALE"
	SourcePurchase       SourceKind = "PURCHASE"
	SourceTransfer       SourceKind = "TRANSFER"
	SourceCompletion     SourceKind = "COMPLETION"
	SourceReturn         SourceKind = "RETURN"
	SourcePaymentRequest SourceKind = "PAYMENT_REQUEST"
	SourceVendorPayment  SourceKind = "VENDOR_PAYMENT"
	SourceOtherSale      SourceKind = "OTHER_SALE"
	SourceAdjustment     SourceKind = "ADJUSTMENT"
	SourceReversal       SourceKind = "REVERSAL"
)

// Valid reports whether the kind belongs to the closed set.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceSale, SourcePurchase, SourceTransfer, SourceCompletion, SourceReturn,
		SourcePaymentRequest, SourceVendorPayment, SourceOtherSale, SourceAdjustment, SourceReversal:
		return true
	}
	return false
}

// SourceRef links a journal batch back to the originating business document.
type SourceRef struct {
	Kind SourceKind `json:"kind"`
	ID   int64      `json:"id"`
}

// Validate checks the reference is complete.
func (s SourceRef) Validate() error {
	if !s.Kind.Valid() {
		return shared.Validationf("unknown source kind %q", s.Kind)
	}
	if s.ID <= 0 {
		return shared.Validationf("source id required")
	}
	return nil
}
