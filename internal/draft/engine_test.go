package draft

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pcnpilot/pcnpilot/internal/strategy"
	"github.com/pcnpilot/pcnpilot/internal/ticket"
)

type fakeProvider struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeProvider) Generate(ctx context.Context, system, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func validLetter() string {
	return "Dear Sir or Madam,\n\n" +
		"I write to formally challenge Penalty Charge Notice LN12345 issued by Westminster Council. " +
		"The alleged contravention is disputed for the reasons set out below.\n\n" +
		"I request that the notice be cancelled.\n\nYours faithfully,\n"
}

func testFacts() ticket.Facts {
	return ticket.Facts{
		PCNNumber:         "LN12345",
		Issuer:            "Westminster Council",
		ContraventionCode: "01",
		AmountDuePennies:  6500,
	}
}

func TestDraftEmbedsFactsInPrompt(t *testing.T) {
	provider := &fakeProvider{response: validLetter()}
	engine := NewEngine(provider)
	grounds := strategy.Select(strategy.Input{Facts: testFacts()})

	letter, err := engine.Draft(context.Background(), "t-1", testFacts(), grounds, Recipient{Name: "A. Driver"})
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if len(provider.prompts) != 1 {
		t.Fatalf("expected exactly one provider call, got %d", len(provider.prompts))
	}
	prompt := provider.prompts[0]
	for _, needle := range []string{"LN12345", "Westminster Council", "£65.00", "A. Driver"} {
		if !strings.Contains(prompt, needle) {
			t.Fatalf("prompt missing %q:\n%s", needle, prompt)
		}
	}
	if letter.TicketID != "t-1" {
		t.Fatalf("ticket id: got %q", letter.TicketID)
	}
	if letter.ID == "" {
		t.Fatalf("expected letter id")
	}
	if len(letter.Grounds) != 1 || letter.Grounds[0].Kind != strategy.KindGeneric {
		t.Fatalf("expected fallback ground embedded, got %+v", letter.Grounds)
	}
}

func TestDraftPromptRetainsRawText(t *testing.T) {
	facts := ticket.ExtractFacts("PCN: LN12345\nsmudged illegible line about the bay markings")
	provider := &fakeProvider{response: validLetter()}
	engine := NewEngine(provider)
	if _, err := engine.Draft(context.Background(), "t-raw", facts, strategy.Select(strategy.Input{Facts: facts}), Recipient{}); err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if !strings.Contains(provider.prompts[0], "smudged illegible line") {
		t.Fatalf("prompt dropped unparsed source text")
	}
}

func TestDraftProviderFailureIsGenerationUnavailable(t *testing.T) {
	engine := NewEngine(&fakeProvider{err: errors.New("upstream 503")})
	_, err := engine.Draft(context.Background(), "t-2", testFacts(), strategy.Select(strategy.Input{Facts: testFacts()}), Recipient{})
	if !errors.Is(err, ErrGenerationUnavailable) {
		t.Fatalf("expected ErrGenerationUnavailable, got %v", err)
	}
}

func TestDraftRejectsMalformedOutput(t *testing.T) {
	cases := []struct {
		name     string
		response string
	}{
		{"Empty", ""},
		{"Whitespace", "   \n\t"},
		{"TooShort", "Dear Sir or Madam, cancel it. Yours faithfully,"},
		{"NoSignature", strings.Repeat("The contravention is disputed. ", 10)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := NewEngine(&fakeProvider{response: tc.response})
			_, err := engine.Draft(context.Background(), "t-3", testFacts(), strategy.Select(strategy.Input{Facts: testFacts()}), Recipient{})
			if !errors.Is(err, ErrMalformedDraft) {
				t.Fatalf("expected ErrMalformedDraft, got %v", err)
			}
		})
	}
}

func TestDraftAcceptsYoursSincerely(t *testing.T) {
	body := "Dear Mr Smith,\n\n" + strings.Repeat("The notice is challenged on the grounds set out above. ", 4) + "\n\nYours sincerely,\n"
	engine := NewEngine(&fakeProvider{response: body})
	if _, err := engine.Draft(context.Background(), "t-4", testFacts(), strategy.Select(strategy.Input{Facts: testFacts()}), Recipient{}); err != nil {
		t.Fatalf("expected sincerely closing to validate, got %v", err)
	}
}
