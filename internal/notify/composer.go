// Package notify composes the notification message that accompanies a
// generated challenge letter. Composition is pure templating; dispatch goes
// through the Notifier collaborator and is fire-and-forget for the pipeline.
package notify

import (
	"fmt"
	"strings"
	"text/template"
)

// Message is the composed payload handed to the email collaborator together
// with the rendered document reference.
type Message struct {
	TicketID      string `json:"ticket_id"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	RecipientName string `json:"recipient_name"`
	AttachmentRef string `json:"attachment_ref"`
}

var bodyTemplate = template.Must(template.New("notification").Parse(
	`Hello {{.Name}},

Your challenge letter for PCN {{.PCN}}{{if .Issuer}} issued by {{.Issuer}}{{end}} is ready.

The letter is attached as a PDF. Review it, sign it, and post it to the issuer before the response deadline on your notice.

The PCN Pilot team
`))

// Compose builds the notification referencing the PCN number and issuer.
// No network calls; the pipeline dispatches the result via its Notifier.
func Compose(documentRef, ticketID, recipientName, pcnNumber, issuer string) (Message, error) {
	if strings.TrimSpace(documentRef) == "" {
		return Message{}, fmt.Errorf("document reference required")
	}
	if strings.TrimSpace(pcnNumber) == "" {
		pcnNumber = "(unknown)"
	}
	name := strings.TrimSpace(recipientName)
	if name == "" {
		name = "there"
	}
	var body strings.Builder
	err := bodyTemplate.Execute(&body, struct {
		Name, PCN, Issuer string
	}{Name: name, PCN: pcnNumber, Issuer: strings.TrimSpace(issuer)})
	if err != nil {
		return Message{}, fmt.Errorf("compose notification: %w", err)
	}
	return Message{
		TicketID:      ticketID,
		Subject:       fmt.Sprintf("Your challenge letter for PCN %s is ready", pcnNumber),
		Body:          body.String(),
		RecipientName: name,
		AttachmentRef: documentRef,
	}, nil
}
