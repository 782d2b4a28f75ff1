package report

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// FormatVersion is the export_format_version of exports written by this package
const FormatVersion = "1.0"

type Metadata struct {
	GeneratedAt    string                 `json:"generated_at"`
	ReportVersion  string                 `json:"report_version"`
	ScanParameters map[string]interface{} `json:"scan_parameters"`
}

// Export is the portable, hash-protected form of a report
type Export struct {
	ExportFormatVersion string   `json:"export_format_version"`
	ReportMetadata      Metadata `json:"report_metadata"`
	Report              Report   `json:"report"`
	ContentHashSHA256   string   `json:"content_hash_sha256"`
}

// NewExport wraps r with metadata and its content hash
func NewExport(r Report, scanParameters map[string]interface{}) (*Export, error) {
	if scanParameters == nil {
		scanParameters = map[string]interface{}{}
	}
	e := &Export{
		ExportFormatVersion: FormatVersion,
		ReportMetadata: Metadata{
			GeneratedAt:    r.GeneratedAt,
			ReportVersion:  r.ReportVersion,
			ScanParameters: scanParameters,
		},
		Report: r,
	}
	hash, err := e.contentHash()
	if err != nil {
		return nil, err
	}
	e.ContentHashSHA256 = hash
	return e, nil
}

// Parse decodes exported JSON
func Parse(data []byte) (*Export, error) {
	var e Export
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	return &e, nil
}

// HashValid recomputes the content hash and compares it to the stored one
func (e *Export) HashValid() (bool, error) {
	hash, err := e.contentHash()
	if err != nil {
		return false, err
	}
	return e.ContentHashSHA256 != "" && hash == e.ContentHashSHA256, nil
}

// JSON renders the export as indented JSON; these are the bytes that get signed
func (e *Export) JSON() ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}

// contentHash is the SHA-256 of the canonical JSON of the export without
// its hash field
func (e *Export) contentHash() (string, error) {
	raw, err := json.Marshal(struct {
		ExportFormatVersion string   `json:"export_format_version"`
		ReportMetadata      Metadata `json:"report_metadata"`
		Report              Report   `json:"report"`
	}{e.ExportFormatVersion, e.ReportMetadata, e.Report})
	if err != nil {
		return "", err
	}
	canonical, err := Canonicalize(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Canonicalize re-encodes JSON compactly with object keys sorted at every
// level. Numbers keep their original text.
func Canonicalize(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
