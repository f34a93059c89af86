// Package e2e exercises the full HTTP API against an in-process server.
package e2e

import "github.com/rehydra/rehydra/internal/models"

// fixture is one anonymization scenario: input text plus the PII types the
// built-in detector must find in it.
type fixture struct {
	name      string
	text      string
	wantTypes []models.PIIType
}

func fixtures() []fixture {
	return []fixture{
		{
			name:      "email_and_ip",
			text:      "Forward logs from 10.0.0.7 to ops@example.com immediately",
			wantTypes: []models.PIIType{models.PIITypeIPAddress, models.PIITypeEmail},
		},
		{
			name:      "credit_card",
			text:      "Refund card 4111-1111-1111-1111 before Friday",
			wantTypes: []models.PIIType{models.PIITypeCreditCard},
		},
		{
			name:      "ssn_and_email",
			text:      "SSN 536-90-4399 belongs to carol@test.org",
			wantTypes: []models.PIIType{models.PIITypeSSN, models.PIITypeEmail},
		},
		{
			name:      "url",
			text:      "Profile lives at https://example.com/u/carol",
			wantTypes: []models.PIIType{models.PIITypeURL},
		},
		{
			name:      "nothing",
			text:      "No sensitive content in this line",
			wantTypes: nil,
		},
	}
}
