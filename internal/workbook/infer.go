package workbook

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/crmigrate/crmigrate/internal/domain"
)

var dateLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
	"1/2/2006",
	"01-02-2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^[\d\s()+.\-]{7,}$`)
	digitPattern = regexp.MustCompile(`\d`)
)

// ParseDate tries the supported spreadsheet date layouts in order.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// LooksLikeBool recognizes the boolean spellings commonly seen in exports.
func LooksLikeBool(value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "true", "false", "yes", "no", "y", "n", "1", "0":
		return true
	}
	_, err := strconv.ParseBool(value)
	return err == nil
}

// LooksLikeInt accepts integers and float spellings with no fractional part.
func LooksLikeInt(value string) bool {
	value = strings.TrimSpace(value)
	if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		return true
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return math.Mod(f, 1) == 0
	}
	return false
}

// LooksLikeFloat accepts any numeric value, including currency-ish strings
// with a leading symbol and thousands separators stripped.
func LooksLikeFloat(value string) bool {
	value = NormalizeNumeric(value)
	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}

// NormalizeNumeric strips currency symbols, thousands separators and
// percent signs so spreadsheet-formatted numbers parse cleanly.
func NormalizeNumeric(value string) string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "$")
	value = strings.TrimPrefix(value, "€")
	value = strings.TrimPrefix(value, "£")
	value = strings.TrimSuffix(value, "%")
	return strings.ReplaceAll(value, ",", "")
}

// LooksLikeDate reports whether the value parses under a known date layout.
func LooksLikeDate(value string) bool {
	_, ok := ParseDate(value)
	return ok
}

// LooksLikeEmail applies a permissive single-address check.
func LooksLikeEmail(value string) bool {
	return emailPattern.MatchString(strings.TrimSpace(value))
}

// LooksLikePhone requires phone punctuation plus at least seven digits.
func LooksLikePhone(value string) bool {
	value = strings.TrimSpace(value)
	if !phonePattern.MatchString(value) {
		return false
	}
	return len(digitPattern.FindAllString(value, -1)) >= 7
}

// InferTypeTags returns every type tag all non-empty values conform to.
// Columns with no values at all yield only the empty tag; string is the
// fallback when nothing stricter holds.
func InferTypeTags(values []string) []domain.TypeTag {
	isBool, isInt, isFloat, isDate, isEmail, isPhone := true, true, true, true, true, true
	hasValue := false

	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		hasValue = true

		if !LooksLikeBool(value) {
			isBool = false
		}
		if !LooksLikeInt(value) {
			isInt = false
		}
		if !LooksLikeFloat(value) {
			isFloat = false
		}
		if !LooksLikeDate(value) {
			isDate = false
		}
		if !LooksLikeEmail(value) {
			isEmail = false
		}
		if !LooksLikePhone(value) {
			isPhone = false
		}
	}

	if !hasValue {
		return []domain.TypeTag{domain.TypeTagEmpty}
	}

	var tags []domain.TypeTag
	if isBool {
		tags = append(tags, domain.TypeTagBoolean)
	}
	if isInt {
		tags = append(tags, domain.TypeTagInteger)
	}
	if isFloat {
		tags = append(tags, domain.TypeTagFloat)
	}
	if isDate {
		tags = append(tags, domain.TypeTagDate)
	}
	if isEmail {
		tags = append(tags, domain.TypeTagEmail)
	}
	if isPhone {
		tags = append(tags, domain.TypeTagPhone)
	}
	if len(tags) == 0 {
		tags = append(tags, domain.TypeTagString)
	}
	return tags
}

// MatchesFieldType reports whether a raw value satisfies a target field type.
// Free-text fields accept anything.
func MatchesFieldType(value string, fieldType domain.FieldType) bool {
	switch fieldType {
	case domain.FieldTypeNumeric:
		return LooksLikeFloat(value)
	case domain.FieldTypeBoolean:
		return LooksLikeBool(value)
	case domain.FieldTypeDate:
		return LooksLikeDate(value)
	case domain.FieldTypeEmail:
		return LooksLikeEmail(value)
	case domain.FieldTypePhone:
		return LooksLikePhone(value)
	default:
		return true
	}
}
