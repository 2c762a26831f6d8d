package report

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"audit-capture/internal/models"

	"github.com/jung-kurt/gofpdf"
)

// PhotoFetcher resolves a durable photo object to its JPEG bytes.
type PhotoFetcher func(ctx context.Context, objectName string) ([]byte, error)

// Section is one photo set as it appears in the report.
type Section struct {
	Area          string
	Levantamiento string
	Gerencia      string
	// PhotoObjects in capture order; an empty slot is a photo whose
	// upload failed and is reported as unavailable.
	PhotoObjects []string
}

// Assembler walks a workflow's finalized sets and renders the paginated
// PDF. Decorative assets degrade: a missing logo or an unfetchable photo
// leaves a gap or a note, never an aborted report.
type Assembler struct {
	fetchPhoto PhotoFetcher
	logo       []byte
}

func NewAssembler(fetchPhoto PhotoFetcher, logo []byte) *Assembler {
	return &Assembler{fetchPhoto: fetchPhoto, logo: logo}
}

// Filename names the document deterministically from the correlation code
// and title: BLQ-20260829-3FA2C1_linea-empaque.pdf.
func Filename(wf models.WorkflowRecord) string {
	return fmt.Sprintf("%s_%s.pdf", wf.CorrelationCode, slug(wf.Title))
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		out = "reporte"
	}
	return out
}

// Render assembles the document and returns its bytes.
func (a *Assembler) Render(ctx context.Context, wf models.WorkflowRecord, sections []Section) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	// Core fonts are cp1252; titles and notes arrive as UTF-8.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(wf.Title, true)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	a.header(pdf, tr, wf)

	for i, section := range sections {
		a.section(ctx, pdf, tr, section, i+1)
	}

	if len(sections) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.CellFormat(0, 8, "Sin levantamientos registrados", "", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}
	return buf.Bytes(), nil
}

func (a *Assembler) header(pdf *gofpdf.Fpdf, tr func(string) string, wf models.WorkflowRecord) {
	if len(a.logo) > 0 {
		opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
		pdf.RegisterImageOptionsReader("logo", opts, bytes.NewReader(a.logo))
		if pdf.Ok() {
			pdf.ImageOptions("logo", 170, 10, 25, 0, false, opts, 0, "")
		}
		if !pdf.Ok() {
			// Decorative only; clear the error and keep going.
			log.Printf("report: logo could not be embedded: %v", pdf.Error())
			pdf.ClearError()
		}
	}

	kindTitle := "Reporte de Auditoria"
	if wf.Kind == models.WorkflowKindBloqueo {
		kindTitle = "Notificacion de Bloqueo"
	}

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, tr(kindTitle), "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 6, tr(wf.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 5, fmt.Sprintf("Folio: %s", wf.CorrelationCode), "", 1, "L", false, 0, "")
	if wf.Plant != "" {
		pdf.CellFormat(0, 5, tr(fmt.Sprintf("Planta: %s", wf.Plant)), "", 1, "L", false, 0, "")
	}
	if wf.Auditor != "" {
		pdf.CellFormat(0, 5, tr(fmt.Sprintf("Auditor: %s", wf.Auditor)), "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, 5, wf.CreatedAt.Format("02/01/2006 15:04"), "", 1, "L", false, 0, "")
	pdf.Ln(4)
}

func (a *Assembler) section(ctx context.Context, pdf *gofpdf.Fpdf, tr func(string) string, s Section, number int) {
	// Keep a section's heading and photos on one page when possible.
	if pdf.GetY() > 200 {
		pdf.AddPage()
	}

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, tr(fmt.Sprintf("%d. %s", number, s.Area)), "B", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	if s.Levantamiento != "" {
		pdf.MultiCell(0, 5, tr("Levantamiento: "+s.Levantamiento), "", "L", false)
	}
	if s.Gerencia != "" {
		pdf.CellFormat(0, 5, tr("Gerencia responsable: "+s.Gerencia), "", 1, "L", false, 0, "")
	}
	pdf.Ln(2)

	const photoWidth, photoGap = 58.0, 4.0
	x, y := pdf.GetX(), pdf.GetY()
	maxHeight := 0.0

	for i, object := range s.PhotoObjects {
		label := fmt.Sprintf("Foto %d no disponible", i+1)
		if object != "" {
			data, err := a.fetchPhoto(ctx, object)
			if err != nil {
				log.Printf("report: failed to fetch photo %s: %v", object, err)
			} else if a.placePhoto(pdf, object, data, x, y, photoWidth) {
				label = ""
			}
		}
		if label != "" {
			pdf.SetXY(x, y)
			pdf.SetFont("Arial", "I", 8)
			pdf.CellFormat(photoWidth, 5, label, "1", 0, "C", false, 0, "")
			pdf.SetFont("Arial", "", 10)
		}
		if h := photoWidth * 3 / 4; h > maxHeight {
			maxHeight = h
		}
		x += photoWidth + photoGap
	}

	pdf.SetXY(pdf.GetX(), y+maxHeight+6)
	pdf.SetX(10)
	pdf.Ln(2)
}

func (a *Assembler) placePhoto(pdf *gofpdf.Fpdf, name string, data []byte, x, y, width float64) bool {
	opts := gofpdf.ImageOptions{ImageType: "JPG"}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if pdf.Ok() {
		pdf.ImageOptions(name, x, y, width, 0, false, opts, 0, "")
	}
	if !pdf.Ok() {
		log.Printf("report: failed to embed photo %s: %v", name, pdf.Error())
		pdf.ClearError()
		return false
	}
	return true
}

// FetchLogo loads the report logo over HTTP with a short deadline. Any
// failure returns nil: the report simply renders without it.
func FetchLogo(ctx context.Context, client HTTPDoer, url string) []byte {
	if url == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	data, err := fetchURL(ctx, client, url)
	if err != nil {
		log.Printf("report: logo fetch failed, continuing without it: %v", err)
		return nil
	}
	return data
}
