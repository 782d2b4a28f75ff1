package detector

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"
)

func msg(ts int64, phone, body string) models.MessageRecord {
	return models.MessageRecord{
		TimestampMs: ts,
		Direction:   models.DirectionReceived,
		PhoneNumber: phone,
		MsgType:     models.MsgTypeSMS,
		Body:        body,
	}
}

func TestScanSkipsBlankBodies(t *testing.T) {
	d := NewKeywordDetector(nil, 2)
	got := d.Scan([]models.MessageRecord{
		msg(1, "+1", ""),
		msg(2, "+1", "   \n\t"),
		msg(3, "+1", "see you tomorrow"),
	})
	if len(got) != 0 {
		t.Fatalf("Scan returned %d candidates, want 0", len(got))
	}
}

func TestScanSeverity(t *testing.T) {
	d := NewKeywordDetector(nil, 2)

	tests := []struct {
		body     string
		wantCats []string
		wantSev  string
	}{
		{"You will regret this", []string{"THREAT"}, models.SeverityHigh},
		{"you are STUPID and you will regret it", []string{"INSULT", "THREAT"}, models.SeverityHigh},
		{"this is your fault", []string{"MANIPULATION"}, models.SeverityMedium},
		{"custody paperwork", []string{"CUSTODY"}, models.SeverityLow},
		{"proud of you", []string{"POSITIVE"}, models.SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			got := d.Scan([]models.MessageRecord{msg(1, "+1", tt.body)})
			if len(got) != 1 {
				t.Fatalf("Scan returned %d candidates, want 1", len(got))
			}
			c := got[0]
			if !reflect.DeepEqual(c.KwCategories, tt.wantCats) {
				t.Errorf("KwCategories = %v, want %v", c.KwCategories, tt.wantCats)
			}
			if c.KwSeverity != tt.wantSev {
				t.Errorf("KwSeverity = %q, want %q", c.KwSeverity, tt.wantSev)
			}
			if c.Confirmed {
				t.Error("candidate should not be confirmed")
			}
			if c.DetectionMode != models.DetectionKeyword {
				t.Errorf("DetectionMode = %q, want KEYWORD", c.DetectionMode)
			}
		})
	}
}

func TestScanContextWindow(t *testing.T) {
	d := NewKeywordDetector(nil, 2)

	messages := []models.MessageRecord{
		msg(1, "+1", "m0"),
		msg(2, "+2", "other contact"),
		msg(3, "+1", "m1"),
		msg(4, "+1", "you will regret"),
		msg(5, "+2", "other again"),
		msg(6, "+1", "m3"),
		msg(7, "+1", "m4"),
		msg(8, "+1", "m5"),
	}

	got := d.Scan(messages)
	if len(got) != 1 {
		t.Fatalf("Scan returned %d candidates, want 1", len(got))
	}

	wantBefore := []string{"[Received] m0", "[Received] m1"}
	wantAfter := []string{"[Received] m3", "[Received] m4"}
	if !reflect.DeepEqual(got[0].ContextBefore, wantBefore) {
		t.Errorf("ContextBefore = %v, want %v", got[0].ContextBefore, wantBefore)
	}
	if !reflect.DeepEqual(got[0].ContextAfter, wantAfter) {
		t.Errorf("ContextAfter = %v, want %v", got[0].ContextAfter, wantAfter)
	}
}

func TestScanContextUsesNameWithoutPhone(t *testing.T) {
	d := NewKeywordDetector(nil, 1)

	a := msg(1, "", "hello")
	a.ContactName = "Alex"
	b := msg(2, "", "you better call back")
	b.ContactName = "Alex"
	c := msg(3, "", "unrelated")
	c.ContactName = "Sam"

	got := d.Scan([]models.MessageRecord{a, c, b})
	if len(got) != 1 {
		t.Fatalf("Scan returned %d candidates, want 1", len(got))
	}
	if want := []string{"[Received] hello"}; !reflect.DeepEqual(got[0].ContextBefore, want) {
		t.Errorf("ContextBefore = %v, want %v", got[0].ContextBefore, want)
	}
	if len(got[0].ContextAfter) != 0 {
		t.Errorf("ContextAfter = %v, want empty", got[0].ContextAfter)
	}
}

func TestScanTruncatesContextBodies(t *testing.T) {
	d := NewKeywordDetector(nil, 1)
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}

	got := d.Scan([]models.MessageRecord{
		msg(1, "+1", string(long)),
		msg(2, "+1", "or else"),
	})
	if len(got) != 1 {
		t.Fatalf("Scan returned %d candidates, want 1", len(got))
	}
	if want := "[Received] " + string(long[:200]); got[0].ContextBefore[0] != want {
		t.Errorf("context entry has %d chars, want %d", len(got[0].ContextBefore[0]), len(want))
	}
}

func TestScanKeepsInputOrder(t *testing.T) {
	d := NewKeywordDetector(nil, 0)
	got := d.Scan([]models.MessageRecord{
		msg(30, "+1", "or else"),
		msg(10, "+2", "custody"),
	})
	if len(got) != 2 || got[0].TimestampMs != 30 || got[1].TimestampMs != 10 {
		t.Fatalf("Scan order = %+v, want input order", got)
	}
}

func TestLoadDictionary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.yml")
	content := `categories:
  - name: finance
    rank: 3
    phrases: ["Wire The Money"]
  - name: greeting
    rank: 0
    phrases: ["hello"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	dict, err := LoadDictionary(path)
	if err != nil {
		t.Fatalf("LoadDictionary: %v", err)
	}

	got := dict.Match("hello, wire the money today")
	if want := []string{"FINANCE", "GREETING"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Match = %v, want %v", got, want)
	}
	if sev := dict.Severity(got); sev != models.SeverityHigh {
		t.Errorf("Severity = %q, want HIGH", sev)
	}
}

func TestLoadExampleDictionary(t *testing.T) {
	dict, err := LoadDictionary(filepath.Join("..", "..", "configs", "keywords.example.yml"))
	if err != nil {
		t.Fatalf("LoadDictionary: %v", err)
	}
	got := dict.Match("you will regret this, thank you")
	if want := []string{"THREAT", "POSITIVE"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Match = %v, want %v", got, want)
	}
}

func TestNewDictionaryRejectsDuplicates(t *testing.T) {
	_, err := NewDictionary([]Category{{Name: "threat"}, {Name: "THREAT"}})
	if err == nil {
		t.Fatal("expected duplicate category error")
	}
}

func TestCategoriesReturnsCopy(t *testing.T) {
	dict := DefaultDictionary()
	cats := dict.Categories()
	cats[0].Phrases[0] = "mutated"
	if dict.Categories()[0].Phrases[0] == "mutated" {
		t.Fatal("dictionary mutated through Categories()")
	}
}
