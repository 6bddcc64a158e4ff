package ingest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/lu4p/cat"
)

// documentText extracts the plain text of a document file.
func documentText(content []byte, ext string) (string, error) {
	switch ext {
	case ".pdf":
		return pdfText(content)
	case ".docx":
		return docxText(content)
	case ".pptx":
		return pptxText(content)
	case ".odp", ".ods":
		return openDocumentText(content)
	case ".odt", ".rtf":
		text, err := cat.FromBytes(content)
		if err != nil {
			return "", fmt.Errorf("extract %s: %w", ext, err)
		}
		return strings.TrimSpace(text), nil
	default:
		return plainText(content), nil
	}
}

func plainText(content []byte) string {
	if !utf8.Valid(content) {
		return strings.ToValidUTF8(string(content), "\ufffd")
	}
	return string(content)
}

func pdfText(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return strings.Join(pages, "\n"), nil
}

const (
	docxBody         = "word/document.xml"
	docxContentTypes = "[Content_Types].xml"
	docxMainType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

var (
	// <w:t> runs carry the text whatever their attributes.
	docxRun = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	// The main part may be renamed; [Content_Types].xml says where it is.
	docxPart    = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainType) + `"`)
	docxPartRev = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainType) + `"[^>]+PartName="([^"]+)"`)
)

func docxText(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}

	body := docxBody
	if types, err := readZipFile(zr, docxContentTypes); err == nil {
		for _, re := range []*regexp.Regexp{docxPart, docxPartRev} {
			if m := re.FindSubmatch(types); len(m) > 1 {
				body = strings.TrimPrefix(string(m[1]), "/")
				break
			}
		}
	}
	doc, err := readZipFile(zr, body)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}

	return strings.Join(appendRuns(nil, docxRun.FindAllSubmatch(doc, -1)), " "), nil
}

var (
	// Slide text lives in <a:t> runs of ppt/slides/slideN.xml.
	pptxSlide = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	pptxRun   = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)
	// Paragraphs, headings and spans of an OpenDocument content.xml, in document order.
	odfText = regexp.MustCompile(`<text:(?:p|h|span)\b[^>]*>([^<]*)<`)
)

func pptxText(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract PPTX: not a zip: %w", err)
	}
	type slide struct {
		n    int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		if m := pptxSlide.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slide{n: n, name: f.Name})
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	var words []string
	for _, s := range slides {
		xml, err := readZipFile(zr, s.name)
		if err != nil {
			return "", fmt.Errorf("extract PPTX: %w", err)
		}
		words = appendRuns(words, pptxRun.FindAllSubmatch(xml, -1))
	}
	return strings.Join(words, " "), nil
}

func openDocumentText(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract OpenDocument: not a zip: %w", err)
	}
	xml, err := readZipFile(zr, "content.xml")
	if err != nil {
		return "", fmt.Errorf("extract OpenDocument: %w", err)
	}
	return strings.Join(appendRuns(nil, odfText.FindAllSubmatch(xml, -1)), " "), nil
}

func appendRuns(words []string, runs [][][]byte) []string {
	for _, r := range runs {
		if w := strings.TrimSpace(string(r[1])); w != "" {
			words = append(words, w)
		}
	}
	return words
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found", name)
}
