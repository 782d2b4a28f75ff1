package parser

import (
	"encoding/xml"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"

	"go.uber.org/zap"
)

var callTypes = map[string]models.CallType{
	"1": models.CallIncoming,
	"2": models.CallOutgoing,
	"3": models.CallMissed,
	"4": models.CallVoicemail,
	"5": models.CallRejected,
	"6": models.CallBlocked,
	"7": models.CallAnsweredExternally,
}

// ParseCallFile parses <call> records from one file
func (p *Parser) ParseCallFile(path string) ([]models.CallRecord, error) {
	source := filepath.Base(path)
	var records []models.CallRecord
	skipped := 0

	err := walk(path, func(_ *xml.Decoder, se xml.StartElement) error {
		if !strings.EqualFold(se.Name.Local, "call") {
			return nil
		}
		rec, ok := callRecord(se, source)
		if !ok {
			skipped++
			return nil
		}
		records = append(records, rec)
		return nil
	})

	if skipped > 0 {
		p.logger.Debug("Skipped unreadable call elements",
			zap.String("file", source),
			zap.Int("skipped", skipped))
	}
	if err != nil {
		return records, err
	}

	p.logger.Info("Parsed calls",
		zap.String("file", source),
		zap.Int("count", len(records)))
	return records, nil
}

func callRecord(se xml.StartElement, source string) (models.CallRecord, bool) {
	ts, err := parseInt(attr(se, "date"))
	if err != nil {
		return models.CallRecord{}, false
	}
	dur, err := parseInt(attr(se, "duration"))
	if err != nil {
		return models.CallRecord{}, false
	}
	if dur < 0 {
		dur = 0
	}

	code := attr(se, "type")
	if code == "" {
		code = "1"
	}
	kind, ok := callTypes[code]
	if !ok {
		kind = models.CallUnknown
	}

	return models.CallRecord{
		TimestampMs: ts,
		DateStr:     models.FormatTimestamp(ts),
		CallType:    kind,
		ContactName: sanitizeName(attr(se, "contact_name")),
		PhoneNumber: sanitizePhone(attr(se, "number")),
		DurationSec: int(dur),
		DurationFmt: FormatDuration(int(dur)),
		SourceFile:  source,
	}, true
}

type callKey struct {
	ts    int64
	phone string
}

// ParseCallDir parses every calls-*.xml file in dir, drops duplicates on
// (timestamp, phone) and returns the calls oldest first.
func (p *Parser) ParseCallDir(dir string) ([]models.CallRecord, error) {
	files, err := backupFiles(dir, "calls-*.xml")
	if err != nil {
		return nil, err
	}

	seen := make(map[callKey]struct{})
	var all []models.CallRecord
	for _, path := range files {
		records, err := p.ParseCallFile(path)
		if err != nil {
			p.logger.Error("Failed to parse call file",
				zap.String("file", filepath.Base(path)),
				zap.Int("recovered", len(records)),
				zap.Error(err))
		}
		for _, rec := range records {
			key := callKey{rec.TimestampMs, rec.PhoneNumber}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			all = append(all, rec)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].TimestampMs < all[j].TimestampMs
	})
	p.logger.Info("Calls after dedup", zap.Int("count", len(all)))
	return all, nil
}
