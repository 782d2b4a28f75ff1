package parser

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"

	"go.uber.org/zap"
	xunicode "golang.org/x/text/encoding/unicode"
)

const smsXML = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<?xml-stylesheet type="text/xsl" href="sms.xsl"?>
<smses count="4">
  <sms protocol="0" address="+1 (555) 010-0001" date="1700000002000" type="2" body="See you at pickup" read="1" contact_name="Jane Doe" />
  <sms protocol="0" address="+15550100001" date="1700000001000" type="1" body="You will regret this&#10;trust me" read="0" contact_name="(Unknown)" />
  <sms protocol="0" address="555abc0102" date="1700000003000" type="9" body="" read="1" contact_name="" />
  <mms date="1700000004000" msg_box="1" address="+15550100002" contact_name="Sam" read="1">
    <parts>
      <part ct="application/smil" text="null" />
      <part ct="text/plain" text="first line" />
      <part ct="image/jpeg" />
      <part ct="text/plain" text="second line" />
    </parts>
  </mms>
  <mms date="1700000005000" msg_box="2" address="+15550100002" contact_name="Sam" read="1">
    <parts>
      <part ct="image/jpeg" />
      <part ct="text/plain" text="null" />
    </parts>
  </mms>
</smses>`

const callsXML = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<calls count="4">
  <call number="+15550100001" duration="3725" date="1700000010000" type="2" contact_name="Jane Doe" />
  <call number="+15550100001" duration="0" date="1700000009000" type="3" contact_name="Jane Doe" />
  <call number="+15550100002" duration="75" date="1700000011000" type="7" contact_name="Sam" />
  <call number="+15550100003" duration="9" date="1700000012000" type="42" contact_name="" />
  <call number="+15550100003" duration="oops" date="1700000013000" type="1" contact_name="" />
</calls>`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func newParser() *Parser {
	return New(zap.NewNop())
}

func TestParseSMSFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "sms-20240101.xml", smsXML)

	records, err := newParser().ParseSMSFile(path)
	if err != nil {
		t.Fatalf("ParseSMSFile: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("got %d records, want 5", len(records))
	}

	first := records[0]
	if first.Direction != models.DirectionSent || first.PhoneNumber != "+1 (555) 010-0001" || first.ContactName != "Jane Doe" {
		t.Errorf("first = %+v", first)
	}
	if !first.Read || first.MsgType != models.MsgTypeSMS || first.SourceFile != "sms-20240101.xml" {
		t.Errorf("first = %+v", first)
	}
	if first.DateStr != models.FormatTimestamp(1700000002000) {
		t.Errorf("DateStr = %q", first.DateStr)
	}

	second := records[1]
	if second.ContactName != "" {
		t.Errorf("(Unknown) contact name kept: %q", second.ContactName)
	}
	if second.Body != "You will regret this\ntrust me" {
		t.Errorf("Body = %q", second.Body)
	}

	third := records[2]
	if third.Direction != models.DirectionUnknown || third.PhoneNumber != "5550102" {
		t.Errorf("third = %+v", third)
	}

	mms := records[3]
	if mms.MsgType != models.MsgTypeMMS || mms.Direction != models.DirectionReceived || mms.Body != "first line second line" {
		t.Errorf("mms = %+v", mms)
	}
	if records[4].Body != mmsMediaOnly || records[4].Direction != models.DirectionSent {
		t.Errorf("media-only mms = %+v", records[4])
	}
}

func TestParseSMSFileUTF16WithBOM(t *testing.T) {
	doc := strings.Replace(smsXML, "encoding='UTF-8'", "encoding='UTF-16'", 1)
	encoded, err := xunicode.UTF16(xunicode.LittleEndian, xunicode.UseBOM).NewEncoder().String(doc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := writeFile(t, t.TempDir(), "sms-utf16.xml", encoded)

	records, err := newParser().ParseSMSFile(path)
	if err != nil {
		t.Fatalf("ParseSMSFile: %v", err)
	}
	if len(records) != 5 || records[0].Body != "See you at pickup" {
		t.Errorf("records = %+v", records)
	}
}

func TestParseSMSFileUTF8BOM(t *testing.T) {
	path := writeFile(t, t.TempDir(), "sms-bom.xml", "\xef\xbb\xbf"+smsXML)

	records, err := newParser().ParseSMSFile(path)
	if err != nil {
		t.Fatalf("ParseSMSFile: %v", err)
	}
	if len(records) != 5 {
		t.Errorf("got %d records, want 5", len(records))
	}
}

func TestParseSMSFileMalformedKeepsPrefix(t *testing.T) {
	doc := `<smses>
  <sms address="1" date="1" type="1" body="one" />
  <sms address="2" date="2" type="1" body="two" />
  <sms address="3" date="3" type="1" body="thr`
	path := writeFile(t, t.TempDir(), "sms-bad.xml", doc)

	records, err := newParser().ParseSMSFile(path)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if len(records) != 2 {
		t.Errorf("got %d records before error, want 2", len(records))
	}
}

func TestParseSMSDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sms-1.xml", smsXML)
	// second export overlaps the first
	writeFile(t, dir, "sms-2.xml", `<smses>
  <sms address="+15550100001" date="1700000001000" type="1" body="You will regret this" />
  <sms address="+15550100009" date="1699999999000" type="1" body="earliest" />
</smses>`)
	writeFile(t, dir, "sms-3.xml", `<smses><sms address="1" date="`)
	writeFile(t, dir, "calls-1.xml", callsXML)

	records, err := newParser().ParseSMSDir(dir)
	if err != nil {
		t.Fatalf("ParseSMSDir: %v", err)
	}
	if len(records) != 6 {
		t.Fatalf("got %d records, want 6", len(records))
	}
	if records[0].Body != "earliest" {
		t.Errorf("records not sorted: first = %+v", records[0])
	}
	for i := 1; i < len(records); i++ {
		if records[i].TimestampMs < records[i-1].TimestampMs {
			t.Fatalf("records out of order at %d", i)
		}
	}
}

func TestParseDirErrors(t *testing.T) {
	p := newParser()

	if _, err := p.ParseSMSDir(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing directory")
	}

	file := writeFile(t, t.TempDir(), "sms-1.xml", smsXML)
	if _, err := p.ParseSMSDir(file); !errors.Is(err, ErrNotDirectory) {
		t.Errorf("err = %v, want ErrNotDirectory", err)
	}
	if _, err := p.ParseCallDir(file); !errors.Is(err, ErrNotDirectory) {
		t.Errorf("err = %v, want ErrNotDirectory", err)
	}

	records, err := p.ParseSMSDir(t.TempDir())
	if err != nil || len(records) != 0 {
		t.Errorf("empty dir = %v, %v", records, err)
	}
}

func TestParseCallDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "calls-1.xml", callsXML)
	writeFile(t, dir, "calls-2.xml", `<calls>
  <call number="+15550100001" duration="1" date="1700000010000" type="1" />
</calls>`)

	calls, err := newParser().ParseCallDir(dir)
	if err != nil {
		t.Fatalf("ParseCallDir: %v", err)
	}
	if len(calls) != 4 {
		t.Fatalf("got %d calls, want 4", len(calls))
	}

	tests := []struct {
		idx  int
		kind models.CallType
		dur  int
		fmt  string
	}{
		{0, models.CallMissed, 0, "0s"},
		{1, models.CallOutgoing, 3725, "1h 2m 5s"},
		{2, models.CallAnsweredExternally, 75, "1m 15s"},
		{3, models.CallUnknown, 9, "9s"},
	}
	for _, tt := range tests {
		c := calls[tt.idx]
		if c.CallType != tt.kind || c.DurationSec != tt.dur || c.DurationFmt != tt.fmt {
			t.Errorf("calls[%d] = %+v, want %s %d %s", tt.idx, c, tt.kind, tt.dur, tt.fmt)
		}
	}
}

func TestSanitizers(t *testing.T) {
	if got := sanitizePhone("tel:+1 (555) 010-0001 ext. 99999999999999"); got != "+1 (555) 010-0001  99999999999" {
		t.Errorf("sanitizePhone = %q", got)
	}
	if got := sanitizeText("a\x00b\tc\u200bd", 10); got != "ab\tcd" {
		t.Errorf("sanitizeText = %q", got)
	}
	if got := sanitizeText("abcdef", 3); got != "abc" {
		t.Errorf("sanitizeText cap = %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[int]string{
		-5:   "0s",
		0:    "0s",
		59:   "59s",
		60:   "1m 0s",
		3600: "1h 0m 0s",
		3661: "1h 1m 1s",
	}
	for in, want := range tests {
		if got := FormatDuration(in); got != want {
			t.Errorf("FormatDuration(%d) = %q, want %q", in, got, want)
		}
	}
}
