package payments

import (
	"fmt"
	"time"
)

// Selection is one line of a commuter's purchase: a route and how many seats.
type Selection struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	Fare        int64  `json:"fare"`
}

// Payment is a confirmed M-PESA payment to an operator. Amounts are whole
// Kenyan shillings.
type Payment struct {
	ID                  string      `json:"id"`
	OwnerID             string      `json:"owner_id"`
	AmountPaid          int64       `json:"amount_paid"`
	PaidAt              time.Time   `json:"paid_at"`
	MpesaReceiptNumber  string      `json:"mpesa_receipt_number"`
	CommuterPhoneNumber string      `json:"commuter_phone_number"`
	PassengerCount      int         `json:"passenger_count"`
	Selections          []Selection `json:"selections"`
}

// Summary describes the payment in one line, e.g. "CBD - Rongai & 2 more".
func (p Payment) Summary() string {
	switch len(p.Selections) {
	case 0:
		return "Payment"
	case 1:
		return p.Selections[0].Description
	default:
		return fmt.Sprintf("%s & %d more", p.Selections[0].Description, len(p.Selections)-1)
	}
}

// RecordInput is the confirmation the payment gateway posts for an operator.
type RecordInput struct {
	MpesaReceiptNumber  string
	AmountPaid          int64
	PaidAt              time.Time
	CommuterPhoneNumber string
	PassengerCount      int
	Selections          []Selection
}

// FormatCurrency renders an amount the way the reports screen shows it.
func FormatCurrency(amount int64) string {
	return fmt.Sprintf("KSH %d.00", amount)
}
