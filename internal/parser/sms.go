package parser

import (
	"encoding/xml"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"

	"go.uber.org/zap"
)

const mmsMediaOnly = "[MMS: media only]"

var smsDirection = map[string]models.Direction{
	"1": models.DirectionReceived,
	"2": models.DirectionSent,
	"3": models.DirectionDraft,
	"4": models.DirectionOutbox,
	"5": models.DirectionFailed,
	"6": models.DirectionQueued,
}

var mmsDirection = map[string]models.Direction{
	"1": models.DirectionReceived,
	"2": models.DirectionSent,
}

type mmsElement struct {
	Date        string `xml:"date,attr"`
	MsgBox      string `xml:"msg_box,attr"`
	ContactName string `xml:"contact_name,attr"`
	Address     string `xml:"address,attr"`
	Read        string `xml:"read,attr"`
	Parts       []struct {
		ContentType string `xml:"ct,attr"`
		Text        string `xml:"text,attr"`
	} `xml:"parts>part"`
}

// ParseSMSFile parses <sms> and <mms> records from one file. On a malformed
// file the records read before the error are returned with the error.
func (p *Parser) ParseSMSFile(path string) ([]models.MessageRecord, error) {
	source := filepath.Base(path)
	var records []models.MessageRecord
	skipped := 0

	err := walk(path, func(d *xml.Decoder, se xml.StartElement) error {
		switch strings.ToLower(se.Name.Local) {
		case "sms":
			rec, ok := smsRecord(se, source)
			if !ok {
				skipped++
				return nil
			}
			records = append(records, rec)
		case "mms":
			var el mmsElement
			if err := d.DecodeElement(&el, &se); err != nil {
				return err
			}
			rec, ok := mmsRecord(el, source)
			if !ok {
				skipped++
				return nil
			}
			records = append(records, rec)
		}
		return nil
	})

	if skipped > 0 {
		p.logger.Debug("Skipped unreadable message elements",
			zap.String("file", source),
			zap.Int("skipped", skipped))
	}
	if err != nil {
		return records, err
	}

	p.logger.Info("Parsed messages",
		zap.String("file", source),
		zap.Int("count", len(records)))
	return records, nil
}

func smsRecord(se xml.StartElement, source string) (models.MessageRecord, bool) {
	ts, err := parseInt(attr(se, "date"))
	if err != nil {
		return models.MessageRecord{}, false
	}
	dir, ok := smsDirection[attr(se, "type")]
	if !ok {
		dir = models.DirectionUnknown
	}
	return models.MessageRecord{
		TimestampMs: ts,
		DateStr:     models.FormatTimestamp(ts),
		Direction:   dir,
		ContactName: sanitizeName(attr(se, "contact_name")),
		PhoneNumber: sanitizePhone(attr(se, "address")),
		MsgType:     models.MsgTypeSMS,
		Body:        sanitizeText(attr(se, "body"), maxBodyLen),
		Read:        attr(se, "read") == "1",
		SourceFile:  source,
	}, true
}

func mmsRecord(el mmsElement, source string) (models.MessageRecord, bool) {
	ts, err := parseInt(el.Date)
	if err != nil {
		return models.MessageRecord{}, false
	}
	dir, ok := mmsDirection[el.MsgBox]
	if !ok {
		dir = models.DirectionUnknown
	}

	var texts []string
	for _, part := range el.Parts {
		if part.ContentType != "text/plain" || part.Text == "" || strings.EqualFold(part.Text, "null") {
			continue
		}
		texts = append(texts, sanitizeText(part.Text, maxBodyLen))
	}
	body := mmsMediaOnly
	if len(texts) > 0 {
		body = strings.Join(texts, " ")
	}

	return models.MessageRecord{
		TimestampMs: ts,
		DateStr:     models.FormatTimestamp(ts),
		Direction:   dir,
		ContactName: sanitizeName(el.ContactName),
		PhoneNumber: sanitizePhone(el.Address),
		MsgType:     models.MsgTypeMMS,
		Body:        body,
		Read:        el.Read == "1",
		SourceFile:  source,
	}, true
}

type messageKey struct {
	ts    int64
	phone string
	kind  models.MsgType
}

// ParseSMSDir parses every sms-*.xml file in dir, drops duplicates on
// (timestamp, phone, type) and returns the messages oldest first.
// A bad file is logged and skipped; a bad directory is an error.
func (p *Parser) ParseSMSDir(dir string) ([]models.MessageRecord, error) {
	files, err := backupFiles(dir, "sms-*.xml")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		p.logger.Warn("No sms-*.xml files found")
		return nil, nil
	}

	seen := make(map[messageKey]struct{})
	var all []models.MessageRecord
	for _, path := range files {
		records, err := p.ParseSMSFile(path)
		if err != nil {
			p.logger.Error("Failed to parse message file",
				zap.String("file", filepath.Base(path)),
				zap.Int("recovered", len(records)),
				zap.Error(err))
		}
		for _, rec := range records {
			key := messageKey{rec.TimestampMs, rec.PhoneNumber, rec.MsgType}
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
	p.logger.Info("Messages after dedup", zap.Int("count", len(all)))
	return all, nil
}
