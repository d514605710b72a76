package model

import "time"

// Payment status values. A payment starts pending and either gets approved
// (webhook or status poll) or expires after one hour unpaid.
const (
	PaymentStatusPending  = "pending"
	PaymentStatusApproved = "approved"
	PaymentStatusExpired  = "expired"
)

// Payment is one PIX credit purchase.
//
// MPPaymentID is Mercado Pago's identifier for the transaction; it is empty
// until the provider accepts the payment request. CreditsPurchased is what
// the webhook adds to the user's balance once the payment is approved.
type Payment struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	CreditsPurchased int       `json:"creditsPurchased"`
	AmountCents      int64     `json:"amountCents"`
	Status           string    `json:"status"`
	MPPaymentID      string    `json:"mpPaymentId,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
