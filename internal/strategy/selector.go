package strategy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pcnpilot/pcnpilot/internal/ticket"
)

// graceThresholdMinutes is the observation window below which enforcement is
// normally premature under the statutory grace period.
const graceThresholdMinutes = 10

// minDiscountWindowDays is the statutory minimum reduced-payment window a
// notice must offer; a shorter window is a procedural defect.
const minDiscountWindowDays = 14

// Input carries everything the selector evaluates. UserContext is the
// driver's free-text account ("I was loading", "I had already paid", ...).
type Input struct {
	Facts             ticket.Facts
	ContraventionCode string
	Issuer            string
	UserContext       string
}

// rule pairs a ground with its activation predicate. Rules are evaluated in
// slice order, which fixes the priority ranking: procedural defects first
// (strongest), then factual defenses, then mitigating circumstances.
type rule struct {
	kind      Kind
	predicate func(Input) (string, bool)
}

var rules = []rule{
	{KindProceduralDefect, proceduralDefect},
	{KindPaymentAlreadyMade, paymentAlreadyMade},
	{KindKeeperLiability, keeperLiability},
	{KindSignageInadequate, signageInadequate},
	{KindGracePeriod, gracePeriod},
	{KindMitigation, mitigation},
}

// Select returns the applicable grounds in fixed priority order. The result
// is never empty: when no predicate matches, the generic challenge ground is
// returned alone.
func Select(in Input) []Ground {
	in.UserContext = strings.ToLower(strings.TrimSpace(in.UserContext))
	if in.ContraventionCode == "" {
		in.ContraventionCode = in.Facts.ContraventionCode
	}
	if in.Issuer == "" {
		in.Issuer = in.Facts.Issuer
	}
	var grounds []Ground
	for _, r := range rules {
		if rationale, ok := r.predicate(in); ok {
			grounds = append(grounds, Ground{Kind: r.kind, Rationale: rationale})
		}
	}
	if len(grounds) == 0 {
		grounds = append(grounds, Ground{
			Kind:      KindGeneric,
			Rationale: "The notice is disputed and the issuer is put to proof of the alleged contravention.",
		})
	}
	return grounds
}

func proceduralDefect(in Input) (string, bool) {
	for _, phrase := range []string{"never received", "not served", "wrong date", "incorrect details", "no notice"} {
		if strings.Contains(in.UserContext, phrase) {
			return "The notice was not properly served or contains incorrect particulars, which invalidates it.", true
		}
	}
	if days, ok := discountWindowDays(in.Facts); ok && days < minDiscountWindowDays {
		return fmt.Sprintf("The notice offers only %d days to pay at the reduced rate; the statutory minimum is %d.", days, minDiscountWindowDays), true
	}
	return "", false
}

func paymentAlreadyMade(in Input) (string, bool) {
	for _, phrase := range []string{"already paid", "i paid", "payment was made", "have a receipt", "valid ticket"} {
		if strings.Contains(in.UserContext, phrase) {
			return "Payment for the parking session had already been made and evidence of payment is available.", true
		}
	}
	return "", false
}

func keeperLiability(in Input) (string, bool) {
	for _, phrase := range []string{"sold the", "not the driver", "was not driving", "new owner", "hire vehicle", "on hire"} {
		if strings.Contains(in.UserContext, phrase) {
			return "The registered keeper was not the driver at the material time and liability cannot transfer.", true
		}
	}
	return "", false
}

func signageInadequate(in Input) (string, bool) {
	if strings.Contains(in.UserContext, "sign") {
		return "The restriction was not adequately signed at the location, so no contravention could reasonably be known.", true
	}
	return "", false
}

var minutesPattern = regexp.MustCompile(`(\d+)\s*min`)

func gracePeriod(in Input) (string, bool) {
	if m := minutesPattern.FindStringSubmatch(in.UserContext); m != nil {
		if minutes, err := strconv.Atoi(m[1]); err == nil && minutes <= graceThresholdMinutes {
			return fmt.Sprintf("The vehicle was observed for no more than %d minutes, within the permitted grace period.", minutes), true
		}
	}
	if strings.Contains(in.UserContext, "grace period") {
		return "The vehicle was within the permitted grace period when the notice was issued.", true
	}
	return "", false
}

func mitigation(in Input) (string, bool) {
	for _, phrase := range []string{"loading", "unloading", "medical", "emergency", "broke down", "breakdown"} {
		if strings.Contains(in.UserContext, phrase) {
			return "There were genuine mitigating circumstances that warrant cancellation on discretionary grounds.", true
		}
	}
	return "", false
}

// discountWindowDays derives the reduced-payment window when both dates on
// the notice parse cleanly.
func discountWindowDays(facts ticket.Facts) (int, bool) {
	issued, err := parseNoticeDate(facts.IssueDate)
	if err != nil {
		return 0, false
	}
	deadline, err := parseNoticeDate(facts.DiscountDeadline)
	if err != nil {
		return 0, false
	}
	days := int(deadline.Sub(issued).Hours() / 24)
	if days < 0 {
		return 0, false
	}
	return days, true
}

var noticeDateLayouts = []string{"2006-01-02", "02/01/2006", "02 January 2006", "2 January 2006"}

func parseNoticeDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	var lastErr error
	for _, layout := range noticeDateLayouts {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return parsed, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("empty date")
	}
	return time.Time{}, lastErr
}
