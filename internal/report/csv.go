package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"
)

var contactCSVHeader = []string{
	"phone_number", "contact_name", "risk_score", "risk_label", "total_messages", "total_calls",
	"total_flags", "flag_rate", "high_count", "medium_count", "low_count", "escalation_trend",
	"first_contact_ms", "last_contact_ms", "relationship_tags",
}

// WriteContactsCSV writes one row per profile
func WriteContactsCSV(w io.Writer, profiles []models.ContactProfile) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(contactCSVHeader); err != nil {
		return err
	}
	for _, p := range profiles {
		row := []string{
			p.PhoneNumber,
			p.ContactName,
			strconv.FormatFloat(p.RiskScore, 'f', -1, 64),
			p.RiskLabel,
			strconv.Itoa(p.TotalMessages),
			strconv.Itoa(p.TotalCalls),
			strconv.Itoa(p.TotalFlags),
			strconv.FormatFloat(p.FlagRate, 'f', -1, 64),
			strconv.Itoa(p.HighCount),
			strconv.Itoa(p.MediumCount),
			strconv.Itoa(p.LowCount),
			p.EscalationTrend,
			optionalInt(p.FirstContactMs),
			optionalInt(p.LastContactMs),
			strings.Join(p.RelationshipTags, ";"),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func optionalInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}
