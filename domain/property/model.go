// Package property defines the property, component and contractor entities.
package property

import (
	"encoding/json"
	"time"
)

// Property is a housing asset that owns certificates and components.
type Property struct {
	ID                string          `db:"id"`
	OrganisationID    string          `db:"organisation_id"`
	AddressLine1      string          `db:"address_line1"`
	AddressLine2      *string         `db:"address_line2"`
	City              string          `db:"city"`
	Postcode          string          `db:"postcode"`
	ExtractedMetadata json.RawMessage `db:"extracted_metadata"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

// Component categories auto-created per certificate category.
const (
	CategoryHeating    = "HEATING"
	CategoryElectrical = "ELECTRICAL"
	CategoryFireSafety = "FIRE_SAFETY"
	CategoryWater      = "WATER"
	CategoryStructure  = "STRUCTURE"
	CategoryLift       = "LIFT"
	CategoryEnergy     = "ENERGY"
)

// Component is an appliance or equipment item identified on a certificate.
type Component struct {
	ID            string    `db:"id"`
	PropertyID    string    `db:"property_id"`
	CertificateID *string   `db:"certificate_id"`
	ComponentType string    `db:"component_type"`
	Category      string    `db:"category"`
	Make          *string   `db:"make"`
	Model         *string   `db:"model"`
	SerialNumber  *string   `db:"serial_number"`
	Location      *string   `db:"location"`
	CreatedAt     time.Time `db:"created_at"`
}

// Contractor is an engineer, inspector or assessor referenced on a certificate.
type Contractor struct {
	ID                 string    `db:"id"`
	Name               string    `db:"name"`
	Company            *string   `db:"company"`
	RegistrationNumber *string   `db:"registration_number"`
	RegistrationBody   *string   `db:"registration_body"`
	CreatedAt          time.Time `db:"created_at"`
}
