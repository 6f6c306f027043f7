package ticket

import (
	"strings"
	"testing"
)

func TestExtractFactsStructuredFields(t *testing.T) {
	text := strings.Join([]string{
		"PCN Number: LN12345",
		"Issuing Authority: Westminster Council",
		"Contravention Code: 01",
		"Location: Harley Street",
		"Date of Issue: 2024-03-12",
		"Vehicle Registration: ab12 cde",
		"Amount Due: £65.00",
		"Pay By: 2024-03-26",
	}, "\n")

	facts := ExtractFacts(text)
	if facts.PCNNumber != "LN12345" {
		t.Fatalf("pcn number: got %q", facts.PCNNumber)
	}
	if facts.Issuer != "Westminster Council" {
		t.Fatalf("issuer: got %q", facts.Issuer)
	}
	if facts.ContraventionCode != "01" {
		t.Fatalf("contravention code: got %q", facts.ContraventionCode)
	}
	if facts.VehicleReg != "AB12CDE" {
		t.Fatalf("vehicle reg: got %q", facts.VehicleReg)
	}
	if facts.AmountDuePennies != 6500 {
		t.Fatalf("amount due: got %d", facts.AmountDuePennies)
	}
	if facts.DiscountDeadline != "2024-03-26" {
		t.Fatalf("discount deadline: got %q", facts.DiscountDeadline)
	}
	if facts.RawText != text {
		t.Fatalf("raw text not preserved")
	}
	if facts.Incomplete() {
		t.Fatalf("expected complete facts")
	}
}

func TestExtractFactsNoStructuredLines(t *testing.T) {
	text := "the notice was stuck under the wiper\nit rained all day"
	facts := ExtractFacts(text)
	if !facts.Empty() {
		t.Fatalf("expected all structured fields unset, got %+v", facts)
	}
	if facts.RawText != text {
		t.Fatalf("expected original text preserved, got %q", facts.RawText)
	}
}

func TestExtractFactsEmptyInput(t *testing.T) {
	facts := ExtractFacts("")
	if !facts.Empty() {
		t.Fatalf("expected empty record for empty input")
	}
	if facts.Fingerprint() == "" {
		t.Fatalf("expected fingerprint even for empty facts")
	}
}

func TestExtractFactsKeepsUnknownKeys(t *testing.T) {
	facts := ExtractFacts("CEO Badge: 4412\nPCN: WM998877")
	if facts.PCNNumber != "WM998877" {
		t.Fatalf("pcn number: got %q", facts.PCNNumber)
	}
	if got := facts.Unrecognized["ceo badge"]; got != "4412" {
		t.Fatalf("expected unknown key preserved, got %q", got)
	}
}

func TestExtractFactsAmountForms(t *testing.T) {
	cases := []struct {
		value string
		want  int
	}{
		{"£65.00", 6500},
		{"65.00", 6500},
		{"£130.50", 13050},
		{"6500", 6500},
		{"1,300.00", 130000},
	}
	for _, tc := range cases {
		facts := ExtractFacts("Amount Due: " + tc.value)
		if facts.AmountDuePennies != tc.want {
			t.Fatalf("amount %q: got %d, want %d", tc.value, facts.AmountDuePennies, tc.want)
		}
	}

	facts := ExtractFacts("Amount Due: sixty five pounds")
	if facts.AmountDuePennies != 0 {
		t.Fatalf("expected unparsable amount left unset, got %d", facts.AmountDuePennies)
	}
	if _, ok := facts.Unrecognized["amount due"]; !ok {
		t.Fatalf("expected unparsable amount preserved verbatim")
	}
}

func TestFingerprintStableAndSensitive(t *testing.T) {
	a := ExtractFacts("PCN: LN12345\nCouncil: Westminster Council")
	b := ExtractFacts("PCN: LN12345\nCouncil: Westminster Council")
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("identical facts produced different fingerprints")
	}
	c := ExtractFacts("PCN: LN12346\nCouncil: Westminster Council")
	if a.Fingerprint() == c.Fingerprint() {
		t.Fatalf("different facts produced identical fingerprints")
	}
}
