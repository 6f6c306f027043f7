// Package render lays finalized letter text into a fixed A4 page template
// and produces the printable document artifact.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
)

// ErrRenderFailed marks a rendering failure. Non-retryable: identical input
// renders identically, so the caller must not re-run this stage.
var ErrRenderFailed = errors.New("render failed")

// TemplateVersion identifies the page template. Output is deterministic for
// identical body text and template version.
const TemplateVersion = "a4-letter/1"

const (
	pageMargin  = 20.0 // mm
	bottomGuard = 25.0 // mm, auto page-break threshold
	lineHeight  = 5.5  // mm
)

// Letter is the input to the renderer: the accepted body text plus the
// reference shown in the title block.
type Letter struct {
	Reference string // PCN number, shown in the title block
	Issuer    string
	Body      string
}

// Document is the rendered artifact.
type Document struct {
	Bytes           []byte
	Pages           int
	TemplateVersion string
}

// Renderer produces A4 letters with the fixed letterhead template. Body text
// of any length flows across pages; nothing is truncated.
type Renderer struct {
	letterhead string
}

func NewRenderer(letterhead string) *Renderer {
	if strings.TrimSpace(letterhead) == "" {
		letterhead = "PCN Pilot"
	}
	return &Renderer{letterhead: letterhead}
}

// Render lays the letter into the template. Returns ErrRenderFailed on any
// encoding or layout error.
func (r *Renderer) Render(letter Letter) (*Document, error) {
	if strings.TrimSpace(letter.Body) == "" {
		return nil, fmt.Errorf("%w: empty body", ErrRenderFailed)
	}
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, bottomGuard)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, tr(r.letterhead), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	title := "Formal challenge"
	if ref := strings.TrimSpace(letter.Reference); ref != "" {
		title = fmt.Sprintf("Formal challenge — PCN %s", ref)
	}
	if issuer := strings.TrimSpace(letter.Issuer); issuer != "" {
		title += fmt.Sprintf(" (%s)", issuer)
	}
	pdf.CellFormat(0, 6, tr(title), "", 1, "L", false, 0, "")
	pdf.Ln(4)
	pdf.SetDrawColor(120, 120, 120)
	pdf.Line(pageMargin, pdf.GetY(), 210-pageMargin, pdf.GetY())
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "", 11)
	for _, paragraph := range strings.Split(letter.Body, "\n") {
		text := strings.TrimRight(paragraph, " \t")
		if text == "" {
			pdf.Ln(lineHeight / 2)
			continue
		}
		pdf.MultiCell(0, lineHeight, tr(text), "", "L", false)
	}

	if pdf.Err() {
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, pdf.Error())
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	return &Document{
		Bytes:           buf.Bytes(),
		Pages:           pdf.PageCount(),
		TemplateVersion: TemplateVersion,
	}, nil
}
