package domain

// PaymentStatus is the status string reported by the backend for a payment id.
type PaymentStatus string

const (
	PaymentApproved        PaymentStatus = "approved"
	PaymentApprovedInvalid PaymentStatus = "approved_invalid"
	PaymentRejected        PaymentStatus = "rejected"
	PaymentCancelled       PaymentStatus = "cancelled"
	PaymentPending         PaymentStatus = "pending"
	PaymentInProcess       PaymentStatus = "in_process"
)

func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentApproved, PaymentApprovedInvalid, PaymentRejected, PaymentCancelled:
		return true
	}
	return false
}

// Known reports whether the backend sent one of the documented statuses.
func (s PaymentStatus) Known() bool {
	return s.Terminal() || s == PaymentPending || s == PaymentInProcess
}
