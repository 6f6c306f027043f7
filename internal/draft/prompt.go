package draft

import (
	"fmt"
	"strings"

	"github.com/pcnpilot/pcnpilot/internal/strategy"
	"github.com/pcnpilot/pcnpilot/internal/ticket"
)

// systemPrompt fixes the register of the generated letter. The model is told
// to produce the letter body only; layout belongs to the renderer.
const systemPrompt = `You are drafting a formal written challenge to a UK Penalty Charge Notice on behalf of a driver.

Rules:
- Formal, concise UK postal-letter register. No contractions, no rhetorical flourishes.
- Open with "Dear Sir or Madam," and close with "Yours faithfully," followed by a blank line for the signature.
- Rely only on the facts and grounds supplied. Never invent dates, amounts, or regulations.
- State each ground of challenge in its own paragraph, strongest first.
- Close by requesting cancellation of the notice and confirmation in writing.
- Output the letter text only. No commentary, no subject line, no markdown.`

// Recipient is the display detail of the person the letter is written for.
// Supplied by the caller; the engine never fetches account data itself.
type Recipient struct {
	Name         string   `json:"name"`
	AddressLines []string `json:"address_lines,omitempty"`
	VehicleReg   string   `json:"vehicle_reg,omitempty"`
}

// buildPrompt assembles the single user prompt: ticket facts, selected
// grounds with rationales, and the sender context. Unparsed OCR text rides
// along so nothing extracted from the notice is withheld from the model.
func buildPrompt(facts ticket.Facts, grounds []strategy.Ground, recipient Recipient) string {
	var b strings.Builder
	b.WriteString("Draft a challenge letter for the following Penalty Charge Notice.\n\nTicket facts:\n")
	writeFact(&b, "PCN number", facts.PCNNumber)
	writeFact(&b, "Issuing authority", facts.Issuer)
	writeFact(&b, "Contravention code", facts.ContraventionCode)
	writeFact(&b, "Location", facts.Location)
	writeFact(&b, "Date of issue", facts.IssueDate)
	writeFact(&b, "Vehicle registration", facts.VehicleReg)
	if facts.AmountDuePennies > 0 {
		writeFact(&b, "Amount due", fmt.Sprintf("£%.2f", float64(facts.AmountDuePennies)/100))
	}
	writeFact(&b, "Discount deadline", facts.DiscountDeadline)
	writeFact(&b, "Notes", facts.Notes)
	for key, value := range facts.Unrecognized {
		writeFact(&b, key, value)
	}

	b.WriteString("\nGrounds of challenge, in order of strength:\n")
	for i, g := range grounds {
		fmt.Fprintf(&b, "%d. %s — %s\n", i+1, groundTitle(g.Kind), g.Rationale)
	}

	b.WriteString("\nSender:\n")
	writeFact(&b, "Name", recipient.Name)
	if len(recipient.AddressLines) > 0 {
		writeFact(&b, "Address", strings.Join(recipient.AddressLines, ", "))
	}
	writeFact(&b, "Vehicle registration", recipient.VehicleReg)

	if raw := strings.TrimSpace(facts.RawText); raw != "" {
		b.WriteString("\nFull notice text as scanned (for reference only):\n---\n")
		b.WriteString(raw)
		b.WriteString("\n---\n")
	}
	return b.String()
}

func writeFact(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}

func groundTitle(kind strategy.Kind) string {
	switch kind {
	case strategy.KindProceduralDefect:
		return "Procedural defect"
	case strategy.KindPaymentAlreadyMade:
		return "Payment already made"
	case strategy.KindKeeperLiability:
		return "Keeper liability"
	case strategy.KindSignageInadequate:
		return "Inadequate signage"
	case strategy.KindGracePeriod:
		return "Grace period"
	case strategy.KindMitigation:
		return "Mitigating circumstances"
	default:
		return "Challenge to the alleged contravention"
	}
}
