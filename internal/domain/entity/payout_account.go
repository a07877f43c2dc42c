package entity

import (
	"time"
)

type PayoutMethod string

const (
	PayoutMethodBankTransfer PayoutMethod = "bank_transfer"
	PayoutMethodPayPal       PayoutMethod = "paypal"
)

func (m PayoutMethod) Valid() bool {
	return m == PayoutMethodBankTransfer || m == PayoutMethodPayPal
}

// PayoutAccount is a destination a user can withdraw to. For bank transfers
// ProviderRef is the connected account the bank account hangs off; for
// PayPal it is empty and Email is the receiver.
type PayoutAccount struct {
	ID          string       `json:"id" firestore:"id"`
	UserID      string       `json:"user_id" firestore:"userId"`
	Type        PayoutMethod `json:"type" firestore:"type"`
	ProviderRef string       `json:"provider_ref,omitempty" firestore:"providerRef,omitempty"`
	Destination string       `json:"destination,omitempty" firestore:"destination,omitempty"`
	Email       string       `json:"email,omitempty" firestore:"email,omitempty"`
	HolderName  string       `json:"holder_name,omitempty" firestore:"holderName,omitempty"`
	Last4       string       `json:"last4,omitempty" firestore:"last4,omitempty"`
	Currency    string       `json:"currency,omitempty" firestore:"currency,omitempty"`
	Verified    bool         `json:"verified" firestore:"verified"`
	IsActive    bool         `json:"is_active" firestore:"isActive"`
	CreatedAt   time.Time    `json:"created_at" firestore:"createdAt"`
	UpdatedAt   time.Time    `json:"updated_at" firestore:"updatedAt"`
}
