package models

import (
	"strings"
	"time"
)

// RegistrationStatus is the lifecycle state of a registration record.
type RegistrationStatus string

const (
	StatusPending    RegistrationStatus = "pending"
	StatusIncomplete RegistrationStatus = "incomplete"
	StatusActive     RegistrationStatus = "active"
	StatusSuspended  RegistrationStatus = "suspended"
)

// Flag is the Y/N convention the record table uses for boolean fields.
type Flag string

const (
	FlagYes Flag = "Y"
	FlagNo  Flag = "N"
)

// RegistrationRecord is the externally stored row for one registration,
// keyed by the provider-issued billing request id.
type RegistrationRecord struct {
	BillingRequestID string `json:"billing_request_id"`

	// Parent identity.
	ParentFullName string `json:"parent_full_name"`
	ParentPhone    string `json:"parent_phone"`
	ParentEmail    string `json:"parent_email"`
	ParentDOB      string `json:"parent_dob"` // DD-MM-YYYY
	ParentAddress  string `json:"parent_address"`
	Relationship   string `json:"relationship"`

	// Child identity.
	PlayerFullName string `json:"player_full_name"`
	PlayerDOB      string `json:"player_dob"` // DD-MM-YYYY
	PlayerGender   string `json:"player_gender"`
	MedicalNotes   string `json:"medical_notes"`
	PlayerAddress  string `json:"player_address"`
	PlayerPhone    string `json:"player_phone"` // U16+ only
	PlayerEmail    string `json:"player_email"` // U16+ only

	Team     string `json:"team"`
	AgeGroup string `json:"age_group"`
	Season   string `json:"season"`

	// Payment.
	PreferredPaymentDay int     `json:"preferred_payment_day"` // 1..28, or -1 for last day
	MonthlyAmount       float64 `json:"monthly_amount"`
	SigningFeePaid      Flag    `json:"signing_fee_paid"`
	MandateAuthorised   Flag    `json:"mandate_authorised"`
	SubscriptionActive  Flag    `json:"subscription_activated"`
	PaymentID           string  `json:"payment_id,omitempty"`
	MandateID           string  `json:"mandate_id,omitempty"`
	SubscriptionID      string  `json:"subscription_id,omitempty"`
	InterimSubID        string  `json:"interim_subscription_id,omitempty"`
	InterimStart        string  `json:"interim_start,omitempty"` // YYYY-MM-DD
	InterimEnd          string  `json:"interim_end,omitempty"`   // YYYY-MM-DD
	SiblingDiscount     Flag    `json:"sibling_discount_applied"`
	PaymentMonths       map[string]string `json:"payment_months,omitempty"` // e.g. "september_2025" -> "paid"

	// Kit.
	KitSize     string `json:"kit_size,omitempty"`
	ShirtNumber int    `json:"shirt_number,omitempty"`
	KitType     string `json:"kit_type,omitempty"`

	PhotoURL         string `json:"photo_url,omitempty"`
	PlayedLastSeason Flag   `json:"played_last_season,omitempty"`

	Status RegistrationStatus `json:"registration_status"`

	// ConversationJSON is the snapshot written at the photo-upload step.
	ConversationJSON string `json:"conversation_json,omitempty"`

	PaymentConfirmedAt time.Time `json:"payment_confirmed_at,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// PlayerLastName returns the surname, the last whitespace-delimited token of
// the child's full name. Used by the sibling-discount query.
func (r *RegistrationRecord) PlayerLastName() string {
	fields := strings.Fields(r.PlayerFullName)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
