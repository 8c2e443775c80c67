// Package paper turns uploaded files into parsed documents: plain text
// extraction from PDF and section/metadata parsing of markdown-like text.
package paper

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"paperwhisper/internal/util"

	"github.com/ledongthuc/pdf"
)

// SupportedExtensions lists the upload types ExtractText understands.
var SupportedExtensions = []string{".pdf", ".md", ".markdown", ".txt"}

func Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ExtractText returns the sanitized text of a PDF, markdown or text file.
func ExtractText(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return ExtractPDFText(path)
	case ".md", ".markdown", ".txt":
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		text := util.SanitizeText(string(b))
		if text == "" {
			return "", util.ErrNoExtractableText
		}
		return text, nil
	default:
		return "", fmt.Errorf("%w: unsupported file type %q", util.ErrPermanent, filepath.Ext(path))
	}
}

func ExtractPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return "", fmt.Errorf("read extracted text: %w", err)
	}
	text := util.SanitizeText(buf.String())
	if text == "" {
		return "", util.ErrNoExtractableText
	}
	return text, nil
}
