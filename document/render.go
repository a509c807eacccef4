// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package document

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	DefaultTitle     = "Certificate of Graduation"
	DefaultSignatory = "Registrar"

	producer = "diploma"
)

// Renderer produces certificate PDFs. Output depends only on the
// CertificateData passed to Render and the renderer options.
type Renderer struct {
	title     string
	signatory string
}

type RendererOptionFunc func(*Renderer)

// WithTitle sets the heading printed on every certificate
func WithTitle(title string) RendererOptionFunc {
	return func(r *Renderer) {
		r.title = title
	}
}

// WithSignatory sets the name printed under the signature line
func WithSignatory(signatory string) RendererOptionFunc {
	return func(r *Renderer) {
		r.signatory = signatory
	}
}

func NewRenderer(opts ...RendererOptionFunc) *Renderer {
	r := &Renderer{
		title:     DefaultTitle,
		signatory: DefaultSignatory,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render returns the PDF bytes for one certificate
func (r *Renderer) Render(data CertificateData) ([]byte, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	for _, s := range []string{r.title, r.signatory} {
		if bad := unsupportedRunes(s); len(bad) > 0 {
			return nil, fmt.Errorf(
				"%w: renderer text %q has unsupported characters %q",
				ErrInvalidCertificate,
				s,
				string(bad),
			)
		}
	}
	issuedAt := data.IssuedAt.UTC().Truncate(time.Second)

	pdf := fpdf.New("L", "mm", "A4", "")
	// Pin every value fpdf would otherwise take from the clock
	pdf.SetCreationDate(issuedAt)
	pdf.SetModificationDate(issuedAt)
	pdf.SetCatalogSort(true)
	pdf.SetCompression(true)
	pdf.SetProducer(producer, false)
	pdf.SetCreator(producer, false)
	pdf.AddUTF8FontFromBytes(fontFamily, "", fontRegular)
	pdf.AddUTF8FontFromBytes(fontFamily, "B", fontBold)
	pdf.SetTitle(r.title+" - "+data.StudentName, true)
	pdf.SetSubject("Certificate "+data.CertificateID, true)
	pdf.SetAuthor(data.Institution, true)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	width, height := pdf.GetPageSize()
	contentWidth := width - 40

	// Border
	pdf.SetDrawColor(30, 60, 110)
	pdf.SetLineWidth(1.5)
	pdf.Rect(10, 10, width-20, height-20, "D")
	pdf.SetLineWidth(0.4)
	pdf.Rect(14, 14, width-28, height-28, "D")

	pdf.SetTextColor(30, 60, 110)
	pdf.SetFont(fontFamily, "B", 20)
	pdf.SetXY(20, 28)
	pdf.CellFormat(contentWidth, 10, data.Institution, "", 1, "C", false, 0, "")
	if data.Faculty != "" {
		pdf.SetFont(fontFamily, "", 13)
		pdf.CellFormat(contentWidth, 7, data.Faculty, "", 1, "C", false, 0, "")
	}

	pdf.Ln(8)
	pdf.SetFont(fontFamily, "B", 30)
	pdf.CellFormat(contentWidth, 14, r.title, "", 1, "C", false, 0, "")

	pdf.SetTextColor(20, 20, 20)
	pdf.Ln(6)
	pdf.SetFont(fontFamily, "", 13)
	pdf.CellFormat(contentWidth, 7, "This is to certify that", "", 1, "C", false, 0, "")
	pdf.Ln(2)
	pdf.SetFont(fontFamily, "B", 24)
	pdf.CellFormat(contentWidth, 12, data.StudentName, "", 1, "C", false, 0, "")
	pdf.SetFont(fontFamily, "", 11)
	pdf.CellFormat(contentWidth, 6, "Student ID "+data.StudentID, "", 1, "C", false, 0, "")
	pdf.Ln(4)
	pdf.SetFont(fontFamily, "", 13)
	pdf.CellFormat(contentWidth, 7, "has successfully completed the requirements of", "", 1, "C", false, 0, "")
	pdf.SetFont(fontFamily, "B", 16)
	pdf.MultiCell(contentWidth, 8, data.Course, "", "C", false)
	pdf.SetFont(fontFamily, "", 12)
	pdf.CellFormat(
		contentWidth, 7,
		fmt.Sprintf(
			"with a grade point average of %s on %s",
			strconv.FormatFloat(data.GPA, 'f', 2, 64),
			data.GraduationDate.UTC().Format("2 January 2006"),
		),
		"", 1, "C", false, 0, "",
	)

	// Footer: batch details, signature and identifiers
	pdf.SetFont(fontFamily, "", 9)
	pdf.SetXY(24, height-52)
	pdf.CellFormat(contentWidth/2, 5, batchLine(data), "", 2, "L", false, 0, "")
	pdf.CellFormat(contentWidth/2, 5, "Issued "+issuedAt.Format(time.RFC3339), "", 2, "L", false, 0, "")
	pdf.CellFormat(contentWidth/2, 5, "Certificate "+data.CertificateID, "", 2, "L", false, 0, "")

	sigX := width - 24 - 80
	pdf.Line(sigX, height-40, sigX+80, height-40)
	pdf.SetXY(sigX, height-38)
	pdf.SetFont(fontFamily, "", 10)
	pdf.CellFormat(80, 5, r.signatory, "", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render certificate %s: %w", data.CertificateID, err)
	}
	return buf.Bytes(), nil
}

func batchLine(data CertificateData) string {
	line := "Batch " + data.BatchID
	if data.BatchName != "" {
		line += " (" + data.BatchName + ")"
	}
	if data.AcademicYear != "" {
		line += ", academic year " + data.AcademicYear
	}
	if data.Semester != "" {
		line += ", semester " + data.Semester
	}
	return line
}
