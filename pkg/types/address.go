package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Address is the structured shipping/billing address stored on an order as JSON.
type Address struct {
	Name         string  `json:"name" validate:"required,max=255"`
	AddressLine1 string  `json:"address_line_1" validate:"required,max=255"`
	AddressLine2 *string `json:"address_line_2,omitempty" validate:"omitempty,max=255"`
	City         string  `json:"city" validate:"required,max=255"`
	State        string  `json:"state" validate:"required,max=255"`
	PostalCode   string  `json:"postal_code" validate:"required,max=20"`
	Country      string  `json:"country" validate:"required,max=255"`
}

// Normalize trims surrounding whitespace and drops an empty second line.
func (a Address) Normalize() Address {
	out := Address{
		Name:         strings.TrimSpace(a.Name),
		AddressLine1: strings.TrimSpace(a.AddressLine1),
		City:         strings.TrimSpace(a.City),
		State:        strings.TrimSpace(a.State),
		PostalCode:   strings.TrimSpace(a.PostalCode),
		Country:      strings.TrimSpace(a.Country),
	}
	if a.AddressLine2 != nil {
		if line2 := strings.TrimSpace(*a.AddressLine2); line2 != "" {
			out.AddressLine2 = &line2
		}
	}
	return out
}

// Value marshals Address into its JSON column form.
func (a Address) Value() (driver.Value, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("address: marshal %w", err)
	}
	return string(b), nil
}

// Scan decodes the JSON column form.
func (a *Address) Scan(value interface{}) error {
	if value == nil {
		*a = Address{}
		return nil
	}

	raw, ok := toBytes(value)
	if !ok {
		return fmt.Errorf("address: unsupported scan type %T", value)
	}
	if err := json.Unmarshal(raw, a); err != nil {
		return fmt.Errorf("address: unmarshal %w", err)
	}
	return nil
}

func toBytes(value interface{}) ([]byte, bool) {
	switch v := value.(type) {
	case string:
		return []byte(v), true
	case []byte:
		return v, true
	default:
		return nil, false
	}
}
