package monitor

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Mapping tells the normalizer where a county's raw fields live and
// how to read them. It is configuration, injected per county, so new
// counties never require core changes.
type Mapping struct {
	IDField      string `json:"id_field"`
	AddressField string `json:"address_field"`
	PriceField   string `json:"price_field"`
	DateField    string `json:"date_field"`
	ZipField     string `json:"zip_field"`
	TypeField    string `json:"type_field"`
	URLField     string `json:"url_field"`
	// Go time layouts tried in order against the county's date field.
	DateFormats []string `json:"date_formats"`
	// source labels for record types, e.g. "DEED" -> transfer.
	TypeLabels map[string]RecordType `json:"type_labels"`
	// used when the source has no type field or an unmapped label.
	DefaultType RecordType `json:"default_type"`
}

var recognizedTypes = map[RecordType]bool{
	RecordTypeSale:        true,
	RecordTypeTransfer:    true,
	RecordTypeLien:        true,
	RecordTypeForeclosure: true,
}

// Normalize maps one raw source record into the canonical schema.
// Price and zip failures degrade to absent values; an unusable date
// drops the record with a NormalizationError.
func Normalize(county County, m Mapping, raw map[string]string) (PropertyRecord, error) {
	record := PropertyRecord{
		County:   county,
		RecordID: strings.TrimSpace(raw[m.IDField]),
		Address:  cleanAddress(raw[m.AddressField]),
		Price:    parsePrice(raw[m.PriceField]),
		ZipCode:  normalizeZip(raw[m.ZipField]),
		Type:     m.DefaultType,
	}
	if m.URLField != "" {
		record.SourceURL = strings.TrimSpace(raw[m.URLField])
	}

	if m.TypeField != "" {
		label := strings.ToLower(strings.TrimSpace(raw[m.TypeField]))
		if mapped, ok := m.TypeLabels[label]; ok {
			record.Type = mapped
		} else if recognizedTypes[RecordType(label)] {
			record.Type = RecordType(label)
		}
	}
	if !recognizedTypes[record.Type] {
		return PropertyRecord{}, &NormalizationError{
			County: county,
			Kind:   UnknownRecordType,
			Field:  m.TypeField,
			Value:  raw[m.TypeField],
		}
	}

	date, ok := parseDate(raw[m.DateField], m.DateFormats)
	if !ok {
		return PropertyRecord{}, &NormalizationError{
			County: county,
			Kind:   InvalidDate,
			Field:  m.DateField,
			Value:  raw[m.DateField],
		}
	}
	record.Date = date

	// the zip often rides inside the address line instead of its own
	// column.
	if record.ZipCode == "" {
		record.ZipCode = zipFromAddress(record.Address)
	}

	if record.RecordID == "" && record.Address == "" {
		return PropertyRecord{}, &NormalizationError{
			County: county,
			Kind:   MissingIdentity,
			Field:  m.AddressField,
		}
	}

	mapped := map[string]bool{
		m.IDField: true, m.AddressField: true, m.PriceField: true,
		m.DateField: true, m.ZipField: true, m.TypeField: true,
		m.URLField: true,
	}
	for field, value := range raw {
		if mapped[field] || value == "" {
			continue
		}
		if record.Raw == nil {
			record.Raw = map[string]string{}
		}
		record.Raw[field] = value
	}

	return record, nil
}

var innerSpace = regexp.MustCompile(`\s+`)

func cleanAddress(addr string) string {
	return innerSpace.ReplaceAllString(strings.TrimSpace(addr), " ")
}

var nonDigit = regexp.MustCompile(`[^\d]`)

// parsePrice strips currency formatting ("$350,000", "350000.00")
// down to whole dollars. Anything unparseable is an undisclosed
// price, not an error.
func parsePrice(s string) *int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	// drop cents before stripping, otherwise "1,000.50" reads as 100050
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	cleaned := nonDigit.ReplaceAllString(s, "")
	if cleaned == "" {
		return nil
	}
	value, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil || value == 0 {
		return nil
	}
	return &value
}

func parseDate(s string, formats []string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if len(formats) == 0 {
		formats = []string{"2006-01-02", "01/02/2006"}
	}
	for _, format := range formats {
		parsed, err := time.ParseInLocation(format, s, time.UTC)
		if err == nil {
			// keep only the civil date, sources disagree on time parts
			return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

var zipRun = regexp.MustCompile(`\d{5}`)

// normalizeZip reduces whatever the county sent ("33139-2207",
// "FL 33139") to the 5-digit form, or absent when malformed.
func normalizeZip(s string) string {
	return zipRun.FindString(s)
}

func zipFromAddress(addr string) string {
	matches := zipRun.FindAllStringIndex(addr, -1)
	if len(matches) == 0 {
		return ""
	}
	// street numbers can be 5 digits too. the zip is the last run,
	// unless that run opens the address, which makes it the street
	// number itself
	last := matches[len(matches)-1]
	if last[0] == 0 {
		return ""
	}
	return addr[last[0]:last[1]]
}
