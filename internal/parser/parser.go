// Package parser reads SMS Backup & Restore XML exports.
package parser

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrNotDirectory is returned when a backup path is not a directory
var ErrNotDirectory = errors.New("not a directory")

const (
	maxNameLen  = 300
	maxBodyLen  = 50000
	maxPhoneLen = 30
)

// Parser turns backup files into records
type Parser struct {
	logger *zap.Logger
}

// New creates a parser
func New(logger *zap.Logger) *Parser {
	return &Parser{logger: logger}
}

// elementFunc handles one start element. The decoder is positioned right
// after se, so the handler may consume the element with DecodeElement.
type elementFunc func(d *xml.Decoder, se xml.StartElement) error

// walk streams path and hands every start element to fn. Input may be
// UTF-8 (with or without BOM) or UTF-16 with a BOM; invalid UTF-8 bytes
// become U+FFFD.
func walk(path string, fn elementFunc) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	r := transform.NewReader(f, xunicode.BOMOverride(xunicode.UTF8.NewDecoder()))
	d := xml.NewDecoder(r)
	d.Strict = false
	// text is already UTF-8 whatever the declaration says
	d.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("xml parse error in %s: %w", filepath.Base(path), err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if err := fn(d, se); err != nil {
			return fmt.Errorf("xml parse error in %s: %w", filepath.Base(path), err)
		}
	}
}

// backupFiles lists dir/pattern in sorted order
func backupFiles(dir, pattern string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("backup directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", dir, ErrNotDirectory)
	}
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func attr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// parseInt treats a missing value as zero
func parseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// sanitizeText keeps printable runes and \n \r \t, capped at max runes
func sanitizeText(s string, max int) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == max {
			break
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			b.WriteRune(r)
			n++
		}
	}
	return b.String()
}

func sanitizeName(s string) string {
	name := sanitizeText(s, maxNameLen)
	if name == "(Unknown)" {
		return ""
	}
	return name
}

// sanitizePhone keeps digits and +-() and space
func sanitizePhone(s string) string {
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == maxPhoneLen {
			break
		}
		if (r >= '0' && r <= '9') || strings.ContainsRune("+-() ", r) {
			b.WriteRune(r)
			n++
		}
	}
	return b.String()
}

// FormatDuration renders seconds as "1h 2m 3s", "2m 3s" or "3s"
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "0s"
	}
	h, rem := seconds/3600, seconds%3600
	m, s := rem/60, rem%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
