// Package strategy selects challenge grounds for a PCN from a fixed taxonomy.
// Selection is a pure, deterministic rule evaluation: no I/O, no randomness,
// identical inputs always yield the same ordered result.
package strategy

// Kind identifies one ground in the fixed challenge taxonomy.
type Kind string

const (
	KindProceduralDefect   Kind = "procedural_defect"
	KindPaymentAlreadyMade Kind = "payment_already_made"
	KindKeeperLiability    Kind = "keeper_liability"
	KindSignageInadequate  Kind = "signage_inadequate"
	KindGracePeriod        Kind = "grace_period"
	KindMitigation         Kind = "mitigating_circumstances"

	// KindGeneric is the fallback used when no other predicate matches; the
	// selector never returns an empty set.
	KindGeneric Kind = "generic_challenge"
)

// Ground is one selected challenge basis with its supporting rationale.
type Ground struct {
	Kind      Kind   `json:"kind"`
	Rationale string `json:"rationale"`
}

// Kinds lists the grounds of a selection in order.
func Kinds(grounds []Ground) []Kind {
	kinds := make([]Kind, len(grounds))
	for i, g := range grounds {
		kinds[i] = g.Kind
	}
	return kinds
}
