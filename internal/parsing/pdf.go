package parsing

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var ErrUnsupportedType = errors.New("unsupported file type")

var textExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

// ExtractTextFromPDF takes a byte slice of a PDF file and returns the extracted plain text.
func ExtractTextFromPDF(pdfData []byte) (string, error) {
	reader := bytes.NewReader(pdfData)
	pdfReader, err := pdf.NewReader(reader, int64(len(pdfData)))
	if err != nil {
		return "", fmt.Errorf("error creating PDF reader: %w", err)
	}

	var buf bytes.Buffer
	b, err := pdfReader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("could not read content of pdf: %w", err)
	}

	if _, err := buf.ReadFrom(b); err != nil {
		return "", fmt.Errorf("could not read content of pdf: %w", err)
	}
	return buf.String(), nil
}

// IsPDF checks if the provided filename has a .pdf extension (case-insensitive).
func IsPDF(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}

// IsText reports whether filename is a plain text or markdown file.
func IsText(filename string) bool {
	return textExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Supported reports whether ExtractText can handle filename.
func Supported(filename string) bool {
	return IsPDF(filename) || IsText(filename)
}

// ExtractText returns the text of a PDF or plain text file, chosen by
// the filename's extension.
func ExtractText(filename string, data []byte) (string, error) {
	switch {
	case IsPDF(filename):
		return ExtractTextFromPDF(data)
	case IsText(filename):
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%s is not valid UTF-8", filename)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(filename))
	}
}
