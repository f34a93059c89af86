// Package models defines core data structures for PII spans, entities, and maps.
package models

import "strings"

// PIIType enumerates the supported categories of personally identifiable information.
type PIIType string

const (
	PIITypePerson       PIIType = "PERSON"
	PIITypeEmail        PIIType = "EMAIL"
	PIITypePhone        PIIType = "PHONE"
	PIITypeAddress      PIIType = "ADDRESS"
	PIITypeLocation     PIIType = "LOCATION"
	PIITypeOrganization PIIType = "ORGANIZATION"
	PIITypeDateTime     PIIType = "DATE_TIME"
	PIITypeCreditCard   PIIType = "CREDIT_CARD"
	PIITypeIBAN         PIIType = "IBAN"
	PIITypeIPAddress    PIIType = "IP_ADDRESS"
	PIITypeSSN          PIIType = "SSN"
	PIITypeURL          PIIType = "URL"
)

// AllPIITypes lists every supported type in a stable order.
var AllPIITypes = []PIIType{
	PIITypePerson,
	PIITypeEmail,
	PIITypePhone,
	PIITypeAddress,
	PIITypeLocation,
	PIITypeOrganization,
	PIITypeDateTime,
	PIITypeCreditCard,
	PIITypeIBAN,
	PIITypeIPAddress,
	PIITypeSSN,
	PIITypeURL,
}

var piiTypeSet = func() map[PIIType]struct{} {
	m := make(map[PIIType]struct{}, len(AllPIITypes))
	for _, t := range AllPIITypes {
		m[t] = struct{}{}
	}
	return m
}()

// Valid reports whether t is a known PII type.
func (t PIIType) Valid() bool {
	_, ok := piiTypeSet[t]
	return ok
}

// ParsePIIType parses a type token case-insensitively.
// Returns false for tokens outside the enum.
func ParsePIIType(s string) (PIIType, bool) {
	t := PIIType(strings.ToUpper(s))
	if t.Valid() {
		return t, true
	}
	return "", false
}

// Gender values for PERSON entities. Only canonical (non-"unknown") values
// are ever written into tags; "unknown" is parsed but never emitted.
const (
	GenderMale    = "male"
	GenderFemale  = "female"
	GenderNeutral = "neutral"
	GenderUnknown = "unknown"
)

// Scope values for LOCATION entities.
const (
	ScopeCity    = "city"
	ScopeCountry = "country"
	ScopeRegion  = "region"
	ScopeUnknown = "unknown"
)

// Semantic carries optional semantic attributes of a detected entity.
type Semantic struct {
	Gender string `json:"gender,omitempty"`
	Scope  string `json:"scope,omitempty"`
}

// Empty reports whether no emittable attribute is present. "unknown" values
// count as absent.
func (s *Semantic) Empty() bool {
	if s == nil {
		return true
	}
	return (s.Gender == "" || s.Gender == GenderUnknown) &&
		(s.Scope == "" || s.Scope == ScopeUnknown)
}
