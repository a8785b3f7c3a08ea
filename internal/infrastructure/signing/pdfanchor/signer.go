package pdfanchor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
	"github.com/kirillkom/vendor-onboarding/internal/core/ports"
)

// Default placement in PDF points when no anchor is found: bottom left of the last page.
const (
	fallbackX = 72.0
	fallbackY = 72.0
)

const (
	fontSize    = 10
	lineSpacing = 16.0
	minY        = 18.0
)

var anchors = []string{"חתימה", "signature"}

var disableConfigDir sync.Once

// Signer stamps approval signatures into quote PDFs held in object storage.
type Signer struct {
	storage ports.ObjectStorage
}

func NewSigner(storage ports.ObjectStorage) *Signer {
	disableConfigDir.Do(api.DisableConfigDir)
	return &Signer{storage: storage}
}

// Embed stamps mark below the signature label of the PDF at sourceKey and stores
// the result as a new PDF. sourceKey may be a document an earlier Embed produced,
// so the procurement signature lands on the copy the vp already signed.
func (s *Signer) Embed(ctx context.Context, sourceKey string, mark domain.SignatureMark) (string, error) {
	if !mark.Role.Valid() {
		return "", domain.FieldError("role", "unknown approver role")
	}
	if strings.Contains(sourceKey, signedMarker(mark.Role)) {
		return "", domain.WrapError(domain.ErrPreconditionBlocked, "embed signature", fmt.Errorf("%s already signed", mark.Role))
	}
	raw, err := s.read(ctx, sourceKey)
	if err != nil {
		return "", err
	}
	if !bytes.HasPrefix(raw, []byte("%PDF-")) {
		return "", domain.WrapError(domain.ErrValidationFailed, "embed signature", errors.New("quote document is not a PDF"))
	}

	at, err := locateAnchor(raw)
	if err != nil {
		return "", fmt.Errorf("locate signature anchor: %w", err)
	}
	x, y := placement(at, mark.Role)

	wm, err := api.TextWatermark(stampText(mark), stampDescription(x, y), true, false, types.POINTS)
	if err != nil {
		return "", fmt.Errorf("build signature stamp: %w", err)
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var out bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(raw), &out, []string{strconv.Itoa(at.page)}, wm, conf); err != nil {
		return "", fmt.Errorf("stamp signature: %w", err)
	}

	key := signedKey(sourceKey, mark.Role)
	if err := s.storage.Save(ctx, key, &out); err != nil {
		return "", fmt.Errorf("save signed quote: %w", err)
	}
	return key, nil
}

func (s *Signer) read(ctx context.Context, key string) ([]byte, error) {
	src, err := s.storage.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer src.Close()
	raw, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return raw, nil
}

func signedMarker(role domain.ApproverRole) string {
	return ".signed-" + string(role) + "."
}

// signedKey keeps the source name and appends one marker per signing role.
func signedKey(sourceKey string, role domain.ApproverRole) string {
	base := sourceKey
	if strings.EqualFold(path.Ext(base), ".pdf") {
		base = base[:len(base)-len(path.Ext(base))]
	}
	return base + signedMarker(role) + "pdf"
}

// placement puts the vp on the first line under the anchor and procurement on the next.
func placement(at spot, role domain.ApproverRole) (float64, float64) {
	slot := 1.0
	if role == domain.RoleProcurementManager {
		slot = 2
	}
	y := at.y - slot*lineSpacing
	if y < minY {
		y = minY + (slot-1)*lineSpacing
	}
	return at.x, y
}

func stampDescription(x, y float64) string {
	return fmt.Sprintf(
		"fontname:Helvetica, points:%d, position:bl, offset:%.2f %.2f, scalefactor:1 abs, rotation:0, fillcolor:#000000, opacity:1",
		fontSize, x, y,
	)
}

func stampText(mark domain.SignatureMark) string {
	label := "VP"
	if mark.Role == domain.RoleProcurementManager {
		label = "Procurement"
	}
	return latin(fmt.Sprintf("Approved by %s: %s, %s", label, mark.SignedBy, mark.SignedAt.UTC().Format("2006-01-02 15:04 UTC")))
}

// latin keeps text inside what the standard Helvetica encoding can draw.
// '%' is reserved by the stamp text syntax.
func latin(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '%':
			b.WriteString("pct")
		case r >= 0x20 && r < 0x7f:
			b.WriteRune(r)
		default:
			b.WriteByte('?')
		}
	}
	return b.String()
}

type spot struct {
	page   int
	x, y   float64
	anchor string
}

// locateAnchor finds the first line containing a signature label. Glyph runs are
// grouped into lines by baseline; Hebrew may be stored in visual order, so the
// reversed label is matched too.
func locateAnchor(raw []byte) (spot, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return spot{}, err
	}
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, line := range groupLines(page.Content().Text) {
			lowered := strings.ToLower(line.text)
			for _, anchor := range anchors {
				if strings.Contains(lowered, anchor) || strings.Contains(lowered, reverse(anchor)) {
					return spot{page: i, x: line.x, y: line.y, anchor: anchor}, nil
				}
			}
		}
	}
	last := pages
	if last < 1 {
		last = 1
	}
	return spot{page: last, x: fallbackX, y: fallbackY + 2*lineSpacing}, nil
}

type textLine struct {
	text string
	x, y float64
}

func groupLines(glyphs []pdf.Text) []textLine {
	byY := make(map[float64][]pdf.Text)
	for _, g := range glyphs {
		y := float64(int(g.Y + 0.5))
		byY[y] = append(byY[y], g)
	}
	ys := make([]float64, 0, len(byY))
	for y := range byY {
		ys = append(ys, y)
	}
	// PDF origin is bottom left; read top to bottom.
	sort.Sort(sort.Reverse(sort.Float64Slice(ys)))

	lines := make([]textLine, 0, len(ys))
	for _, y := range ys {
		run := byY[y]
		sort.Slice(run, func(a, b int) bool { return run[a].X < run[b].X })
		var b strings.Builder
		for _, g := range run {
			b.WriteString(g.S)
		}
		lines = append(lines, textLine{text: b.String(), x: run[0].X, y: y})
	}
	return lines
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
