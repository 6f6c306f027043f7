package ticket

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// Facts is the structured record derived from a PCN. Every field is optional;
// lines that do not map onto a known field are kept in Unrecognized and the
// full source text is retained in RawText, so nothing extracted from the
// notice is ever dropped.
type Facts struct {
	PCNNumber         string            `json:"pcn_number,omitempty"`
	Issuer            string            `json:"issuer,omitempty"`
	ContraventionCode string            `json:"contravention_code,omitempty"`
	Location          string            `json:"location,omitempty"`
	IssueDate         string            `json:"issue_date,omitempty"`
	VehicleReg        string            `json:"vehicle_reg,omitempty"`
	AmountDuePennies  int               `json:"amount_due_pennies,omitempty"`
	DiscountDeadline  string            `json:"discount_deadline,omitempty"`
	Notes             string            `json:"notes,omitempty"`
	Unrecognized      map[string]string `json:"unrecognized,omitempty"`
	RawText           string            `json:"raw_text,omitempty"`
}

// Empty reports whether no structured field was populated.
func (f Facts) Empty() bool {
	return f.PCNNumber == "" && f.Issuer == "" && f.ContraventionCode == "" &&
		f.Location == "" && f.IssueDate == "" && f.VehicleReg == "" &&
		f.AmountDuePennies == 0 && f.DiscountDeadline == "" && f.Notes == "" &&
		len(f.Unrecognized) == 0
}

// Incomplete reports whether the record is missing fields the letter prompt
// normally relies on. Used for ExtractionIncomplete logging only; the
// pipeline proceeds regardless.
func (f Facts) Incomplete() bool {
	return f.PCNNumber == "" || f.Issuer == "" || f.ContraventionCode == ""
}

// Fingerprint returns a stable hex digest of the structured fields. Two Facts
// with identical content always produce the same fingerprint, which the
// pipeline uses to decide whether a completed ticket may reuse its stored
// result.
func (f Facts) Fingerprint() string {
	parts := []string{
		f.PCNNumber,
		f.Issuer,
		f.ContraventionCode,
		f.Location,
		f.IssueDate,
		f.VehicleReg,
		strconv.Itoa(f.AmountDuePennies),
		f.DiscountDeadline,
		f.Notes,
	}
	keys := make([]string, 0, len(f.Unrecognized))
	for k := range f.Unrecognized {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+f.Unrecognized[k])
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}
