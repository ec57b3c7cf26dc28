package domain

import (
	"strings"
	"time"
)

// FieldKind is the storage shape of a filterable contact field.
type FieldKind string

const (
	FieldText   FieldKind = "text"
	FieldNumber FieldKind = "number"
	FieldTime   FieldKind = "time"
	FieldArray  FieldKind = "array"
)

// ContactFields lists the contact attributes a segment may filter on.
var ContactFields = map[string]FieldKind{
	"first_name":     FieldText,
	"last_name":      FieldText,
	"email":          FieldText,
	"phone":          FieldText,
	"company":        FieldText,
	"city":           FieldText,
	"status":         FieldText,
	"source":         FieldText,
	"lead_score":     FieldNumber,
	"budget":         FieldNumber,
	"created_at":     FieldTime,
	"tags":           FieldArray,
	"property_types": FieldArray,
}

// Contact is a CRM lead or client. The engine only reads contacts.
type Contact struct {
	ID            string         `json:"id" db:"id"`
	FirstName     string         `json:"first_name" db:"first_name"`
	LastName      string         `json:"last_name" db:"last_name"`
	Email         string         `json:"email" db:"email"`
	Phone         string         `json:"phone" db:"phone"`
	Company       string         `json:"company" db:"company"`
	City          string         `json:"city" db:"city"`
	Status        string         `json:"status" db:"status"`
	Source        string         `json:"source" db:"source"`
	ProjectID     string         `json:"project_id,omitempty" db:"project_id"`
	LeadScore     int            `json:"lead_score" db:"lead_score"`
	Budget        *float64       `json:"budget,omitempty" db:"budget"`
	Tags          []string       `json:"tags" db:"tags"`
	PropertyTypes []string       `json:"property_types" db:"property_types"`
	Custom        map[string]any `json:"custom,omitempty" db:"-"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}

// FullName joins first and last name.
func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Field returns the value of a filterable field. Text fields come back as
// string, numbers as float64, times as time.Time and arrays as []string.
// ok is false for unknown fields and for null values.
func (c Contact) Field(name string) (v any, ok bool) {
	switch name {
	case "first_name":
		return c.FirstName, true
	case "last_name":
		return c.LastName, true
	case "email":
		return c.Email, true
	case "phone":
		return c.Phone, true
	case "company":
		return c.Company, true
	case "city":
		return c.City, true
	case "status":
		return c.Status, true
	case "source":
		return c.Source, true
	case "lead_score":
		return float64(c.LeadScore), true
	case "budget":
		if c.Budget == nil {
			return nil, false
		}
		return *c.Budget, true
	case "created_at":
		return c.CreatedAt, true
	case "tags":
		return c.Tags, true
	case "property_types":
		return c.PropertyTypes, true
	}
	return nil, false
}

// Attributes is the variable set exposed to message templates. Custom
// attributes never shadow the built-in ones.
func (c Contact) Attributes() map[string]any {
	attrs := make(map[string]any, len(c.Custom)+14)
	for k, v := range c.Custom {
		attrs[k] = v
	}
	attrs["id"] = c.ID
	attrs["first_name"] = c.FirstName
	attrs["last_name"] = c.LastName
	attrs["full_name"] = c.FullName()
	attrs["email"] = c.Email
	attrs["phone"] = c.Phone
	attrs["company"] = c.Company
	attrs["city"] = c.City
	attrs["status"] = c.Status
	attrs["source"] = c.Source
	attrs["lead_score"] = c.LeadScore
	attrs["tags"] = c.Tags
	attrs["property_types"] = c.PropertyTypes
	if c.Budget != nil {
		attrs["budget"] = *c.Budget
	}
	return attrs
}
