package domain

import "time"

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentShipped    PaymentStatus = "shipped"
	PaymentDelivered  PaymentStatus = "delivered"
	PaymentCancelled  PaymentStatus = "cancelled"
)

// Payment is created pending before the gateway redirect and settled at most once.
type Payment struct {
	PaymentID string        `json:"id" dynamodbav:"payment_id"`
	UserID    string        `json:"user_id" dynamodbav:"user_id"`
	ProductID string        `json:"product_id" dynamodbav:"product_id"`
	Amount    int64         `json:"price" dynamodbav:"amount"`
	Title     string        `json:"title" dynamodbav:"title"`
	Version   int           `json:"version" dynamodbav:"version"`
	Authority string        `json:"authority" dynamodbav:"authority"`
	RefID     *string       `json:"ref_id" dynamodbav:"ref_id"`
	Success   bool          `json:"success" dynamodbav:"success"`
	Status    PaymentStatus `json:"status" dynamodbav:"status"`
	CreatedAt time.Time     `json:"created" dynamodbav:"created_at"`
	UpdatedAt time.Time     `json:"updated" dynamodbav:"updated_at"`
}

// Entitlement is what a settled payment grants.
func (p *Payment) Entitlement() Entitlement {
	return Entitlement{ProductID: p.ProductID, Version: p.Version}
}

// Settlement is the single atomic write that completes a purchase: the
// payment flips to success and the user's entitlements are replaced.
type Settlement struct {
	PaymentID     string
	RefID         string
	UserID        string
	Entitlements  []Entitlement
	UserUpdatedAt time.Time // optimistic lock on the user record as it was read
}
