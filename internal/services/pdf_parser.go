package services

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrNoPDFText = errors.New("no text content found in PDF")

type PDFParserService interface {
	ExtractText(filePath string) (string, error)
	ExtractTextWithMetaData(filePath string) (*PDFContent, error)
}

type PDFContent struct {
	Text      string
	PageCount int
	FilePath  string
}

type pdfParserService struct{}

func NewPDFParserService() PDFParserService {
	return &pdfParserService{}
}

// ExtractText returns the plain text of every page with NUL bytes removed,
// ready to be stored as a text column.
func (p *pdfParserService) ExtractText(filePath string) (string, error) {
	content, err := p.ExtractTextWithMetaData(filePath)
	if err != nil {
		return "", err
	}
	return content.Text, nil
}

func (p *pdfParserService) ExtractTextWithMetaData(filePath string) (*PDFContent, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("file does not exist: %s", filePath)
	}

	f, r, err := pdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var textBuilder strings.Builder
	totalPage := r.NumPage()

	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := r.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// skip unreadable pages
			continue
		}

		textBuilder.WriteString(text)
		textBuilder.WriteString("\n\n")
	}

	text := StripNUL(textBuilder.String())
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoPDFText, filePath)
	}

	return &PDFContent{
		Text:      text,
		PageCount: totalPage,
		FilePath:  filePath,
	}, nil
}

// StripNUL removes NUL bytes, which Postgres rejects in text values.
func StripNUL(text string) string {
	return strings.ReplaceAll(text, "\x00", "")
}

// CleanText trims every line and drops blank ones.
func CleanText(text string) string {
	text = strings.TrimSpace(text)

	lines := strings.Split(text, "\n")
	var cleanedLines []string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleanedLines = append(cleanedLines, line)
		}
	}

	return strings.Join(cleanedLines, "\n")
}
