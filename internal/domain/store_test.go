package domain

import "testing"

func TestRawCandidatePhoneAndHours(t *testing.T) {
	c := RawCandidate{Tags: map[string]string{"contact:phone": "(01) 555-0000"}}
	if got := c.Phone(); got != "(01) 555-0000" {
		t.Fatalf("phone = %q, want contact:phone value", got)
	}
	if got := c.Hours(); got != "24 horas" {
		t.Fatalf("hours = %q, want default", got)
	}

	c = RawCandidate{Tags: map[string]string{"phone": "1", "contact:phone": "2", "opening_hours": "Mo-Su 07:00-23:00"}}
	if got := c.Phone(); got != "1" {
		t.Fatalf("phone = %q, want phone tag to win", got)
	}
	if got := c.Hours(); got != "Mo-Su 07:00-23:00" {
		t.Fatalf("hours = %q", got)
	}

	var empty RawCandidate
	if got := empty.Phone(); got != "No disponible" {
		t.Fatalf("phone = %q, want default", got)
	}
}
