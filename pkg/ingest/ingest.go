// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ingest extracts plain text from uploaded documents (PDF, DOCX,
// XLSX) and turns the result into a ready-to-create knowledge fragment.
package ingest

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"

	"github.com/inkloom/inkloom-core/pkg/fragment"
	"github.com/inkloom/inkloom-core/pkg/idgen"
)

// Source identifies which extractor produced a piece of ingested content.
type Source string

const (
	SourcePDF  Source = "pdf"
	SourceDocx Source = "docx"
	SourceXLSX Source = "xlsx"
)

// Meta carries the extraction facts recorded onto the resulting fragment's
// meta map (see fragment.Meta* for the well-known core keys; these are
// ingest-specific additions).
type Meta struct {
	Source     Source
	Filename   string
	PageCount  int      // pdf only, 0 otherwise
	SheetNames []string // xlsx only, nil otherwise
}

// Ingest-specific meta keys, additive to fragment's well-known set.
const (
	MetaIngestSource    = "ingestSource"
	MetaIngestFilename  = "ingestFilename"
	MetaIngestPageCount = "ingestPageCount"
	MetaIngestSheets    = "ingestSheetNames"
)

// ExtractPDF reads r as a complete PDF document and returns its plain text
// concatenated page by page, along with extraction metadata. size must be
// the total byte length of r's content; pdf.NewReader seeks on it.
func ExtractPDF(r io.ReaderAt, size int64) (string, Meta, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", Meta{}, fmt.Errorf("open pdf: %w", err)
	}

	var parts []string
	pages := reader.NumPage()
	for pageNum := 1; pageNum <= pages; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unparsable page doesn't invalidate the rest of the
			// document; note it inline and keep going.
			parts = append(parts, fmt.Sprintf("[page %d: %v]", pageNum, err))
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, "\n\n"), Meta{Source: SourcePDF, PageCount: pages}, nil
}

// ExtractDocx reads the .docx file at path and returns its plain text.
// nguyenthenguyen/docx's reader is path-based rather than io.Reader-based,
// so callers holding an in-memory upload must write it to a temp file
// first; ExtractDocx does not hide that constraint.
func ExtractDocx(path string) (string, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer doc.Close()
	return doc.Editable().GetContent(), nil
}

// ExtractXLSX reads r as a complete XLSX workbook and returns the text of
// every sheet concatenated, along with the sheet names.
func ExtractXLSX(r io.Reader) (string, Meta, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return "", Meta{}, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	var parts []string
	for _, name := range sheets {
		rows, err := f.GetRows(name)
		if err != nil {
			parts = append(parts, fmt.Sprintf("[sheet %s: %v]", name, err))
			continue
		}
		var b strings.Builder
		fmt.Fprintf(&b, "--- %s ---\n", name)
		for _, row := range rows {
			for _, cell := range row {
				if text := strings.TrimSpace(cell); text != "" {
					b.WriteString(text)
					b.WriteByte('\n')
				}
			}
		}
		if text := strings.TrimSpace(b.String()); text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, "\n\n"), Meta{Source: SourceXLSX, SheetNames: sheets}, nil
}

// NewKnowledgeFragment builds a ready-to-create knowledge fragment from
// extracted document text. kind names the file's extension ("pdf", "docx",
// or "xlsx") and filename is the original upload name, recorded onto meta
// so the store and UI can show provenance. content is the extracted plain
// text; extra carries the extractor-specific fields of Meta (page count,
// sheet names) when available — callers that only have docx content (no
// Meta) may pass the zero value.
func NewKnowledgeFragment(kind, filename, content string, extra Meta) (*fragment.Fragment, error) {
	switch kind {
	case "pdf", "docx", "xlsx":
	default:
		return nil, fmt.Errorf("ingest: unsupported document kind %q", kind)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("ingest: %s produced no extractable text", filename)
	}

	f := &fragment.Fragment{
		ID:      idgen.FragmentID(idgen.TypeKnowledge, ""),
		Type:    idgen.TypeKnowledge,
		Name:    filename,
		Content: content,
		Meta: map[string]any{
			MetaIngestSource:   kind,
			MetaIngestFilename: filename,
		},
	}
	if extra.PageCount > 0 {
		f.Meta[MetaIngestPageCount] = extra.PageCount
	}
	if len(extra.SheetNames) > 0 {
		f.Meta[MetaIngestSheets] = extra.SheetNames
	}
	f.Normalize()
	return f, nil
}

// writeTempFile is a small helper for callers ingesting an in-memory .docx
// upload: it spills r to a temp file so ExtractDocx's path-based API can
// read it, and returns a cleanup func.
func writeTempFile(r io.Reader, pattern string) (path string, cleanup func(), err error) {
	tmp, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}
	name := tmp.Name()
	return name, func() { os.Remove(name) }, nil
}

// ExtractDocxReader spills r to a temp file and extracts it, cleaning up
// the temp file regardless of outcome. Convenience wrapper over
// ExtractDocx for callers that only have an io.Reader (e.g. an HTTP
// upload), per the path-based constraint noted on ExtractDocx.
func ExtractDocxReader(r io.Reader) (string, error) {
	path, cleanup, err := writeTempFile(r, "ingest-*.docx")
	if err != nil {
		return "", err
	}
	defer cleanup()
	return ExtractDocx(path)
}
