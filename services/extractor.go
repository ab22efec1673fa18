package services

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// Extractor converts uploaded files into plain UTF-8 text for chunking.
// Markdown structure (headings, code fences) is preserved where the source
// format carries it, so the chunker can lane-split downstream.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractText dispatches on the file extension. Unknown extensions are
// treated as plain text.
func (e *Extractor) ExtractText(filename string, content []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return e.extractPDF(content)
	case ".html", ".htm":
		return e.extractHTML(content)
	case ".xlsx", ".xlsm":
		return e.extractSpreadsheet(content)
	default:
		return e.extractPlainText(content)
	}
}

func (e *Extractor) extractPlainText(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", fmt.Errorf("file is not valid UTF-8 text")
	}
	return string(content), nil
}

func (e *Extractor) extractPDF(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	extracted := strings.TrimSpace(sb.String())
	if extracted == "" {
		return "", fmt.Errorf("no extractable text in PDF")
	}
	return extracted, nil
}

// extractHTML walks the document in source order, turning headings back into
// markdown heading lines and pre blocks into code fences.
func (e *Extractor) extractHTML(content []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, nav, footer").Remove()

	var sb strings.Builder
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, pre").Each(func(_ int, sel *goquery.Selection) {
		tag := goquery.NodeName(sel)
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}
		switch tag {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			level := int(tag[1] - '0')
			sb.WriteString(strings.Repeat("#", level))
			sb.WriteString(" ")
			sb.WriteString(text)
			sb.WriteString("\n\n")
		case "pre":
			lang := codeLanguageFromClass(sel)
			sb.WriteString("```")
			sb.WriteString(lang)
			sb.WriteString("\n")
			sb.WriteString(sel.Text())
			if !strings.HasSuffix(sel.Text(), "\n") {
				sb.WriteString("\n")
			}
			sb.WriteString("```\n\n")
		default:
			sb.WriteString(text)
			sb.WriteString("\n\n")
		}
	})

	extracted := strings.TrimSpace(sb.String())
	if extracted == "" {
		// Fall back to the whole-document text for pages without the
		// usual content elements.
		extracted = strings.TrimSpace(doc.Text())
	}
	return extracted, nil
}

// codeLanguageFromClass reads a "language-x" class from a pre element or its
// nested code element, the convention used by most highlighters.
func codeLanguageFromClass(sel *goquery.Selection) string {
	classes, _ := sel.Attr("class")
	if inner := sel.Find("code").First(); inner.Length() > 0 {
		if innerClasses, ok := inner.Attr("class"); ok {
			classes += " " + innerClasses
		}
	}
	for _, class := range strings.Fields(classes) {
		if lang, ok := strings.CutPrefix(class, "language-"); ok {
			return lang
		}
		if lang, ok := strings.CutPrefix(class, "lang-"); ok {
			return lang
		}
	}
	return ""
}

func (e *Extractor) extractSpreadsheet(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		sb.WriteString("# ")
		sb.WriteString(sheet)
		sb.WriteString("\n\n")
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, " | "))
			if line == "" {
				continue
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	extracted := strings.TrimSpace(sb.String())
	if extracted == "" {
		return "", fmt.Errorf("no extractable text in spreadsheet")
	}
	return extracted, nil
}
