package mapping

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/crmigrate/crmigrate/internal/domain"
	"github.com/crmigrate/crmigrate/internal/workbook"
)

// Sub-score weights for the overall confidence.
const (
	weightSemantic     = 0.3
	weightDataType     = 0.3
	weightPattern      = 0.2
	weightBusinessRule = 0.2

	// matchFlagFloor is the sub-score at which the corresponding match flag
	// is considered satisfied.
	matchFlagFloor = 0.7

	// neutralScore is used for type/pattern/rule sub-scores when no samples
	// are available, so sparse columns are not penalized.
	neutralScore = 0.5
)

// synonyms maps normalized target field names to source spellings considered
// equivalent. Matching is symmetric.
var synonyms = map[string][]string{
	"name":              {"organization", "company", "account", "customername", "companyname", "accountname", "business"},
	"organization":      {"company", "account", "customer", "client", "business", "organisation"},
	"phone":             {"telephone", "tel", "phonenumber", "mobile", "cell"},
	"email":             {"emailaddress", "mail", "contactemail"},
	"website":           {"url", "web", "site", "homepage"},
	"addressline":       {"address", "street", "streetaddress", "address1"},
	"zip":               {"zipcode", "postalcode", "postcode"},
	"state":             {"province", "region"},
	"city":              {"town", "municipality"},
	"priority":          {"priorityfocus", "focus", "rank", "tier", "grade", "rating"},
	"segment":           {"category", "type", "market", "vertical"},
	"estimatedrevenue":  {"revenue", "annualrevenue", "sales", "turnover"},
	"employeecount":     {"employees", "headcount", "staffcount"},
	"active":            {"isactive", "status", "enabled"},
	"notes":             {"note", "comments", "comment", "remarks", "description"},
	"firstname":         {"fname", "givenname", "first"},
	"lastname":          {"lname", "surname", "familyname", "last"},
	"title":             {"jobtitle", "role", "position"},
	"isprimary":         {"primary", "primarycontact", "main", "maincontact"},
	"stage":             {"status", "phase", "pipelinestage", "dealstage"},
	"probability":       {"likelihood", "chance", "winprobability"},
	"value":             {"amount", "dealvalue", "dealsize", "estimatedvalue"},
	"closedate":         {"expectedclose", "closedate", "closing", "closedon"},
	"closedreason":      {"reason", "lostreason", "wonreason", "outcome"},
	"contact":           {"contactname", "person", "attendee"},
	"opportunity":       {"deal", "opportunityname", "dealname"},
	"type":              {"interactiontype", "activitytype", "kind", "method"},
	"occurredat":        {"date", "interactiondate", "activitydate", "when", "datetime"},
	"subject":           {"topic", "summary", "regarding"},
	"lastcontactedat":   {"lastcontact", "lastcontacted", "lasttouch", "lastactivity"},
}

// patternExpectations keys a format regex off keywords found in the target
// field name. If no keyword applies there is no expectation to satisfy.
var patternExpectations = []struct {
	keyword string
	pattern *regexp.Regexp
}{
	{"email", regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)},
	{"phone", regexp.MustCompile(`^[\d\s()+.\-]{7,}$`)},
	{"zip", regexp.MustCompile(`^\d{5}(-\d{4})?$`)},
	{"date", regexp.MustCompile(`^\d{4}[-/]\d{1,2}[-/]\d{1,2}|^\d{1,2}[-/]\d{1,2}[-/]\d{2,4}`)},
	{"url", regexp.MustCompile(`^(https?://)?[\w.-]+\.[a-z]{2,}`)},
	{"website", regexp.MustCompile(`^(https?://)?[\w.-]+\.[a-z]{2,}`)},
	{"id", regexp.MustCompile(`^[\w-]+$`)},
}

// businessRules validates samples against field-specific domain expectations.
// Fields without a specific rule score the default.
var businessRules = map[string]func(string) bool{
	"priority": func(v string) bool {
		switch strings.ToUpper(strings.TrimSpace(v)) {
		case "A", "B", "C", "D":
			return true
		}
		return false
	},
	"probability": func(v string) bool {
		f, err := strconv.ParseFloat(workbook.NormalizeNumeric(v), 64)
		return err == nil && f >= 0 && f <= 100
	},
	"state": func(v string) bool {
		v = strings.TrimSpace(v)
		return len(v) == 2 && strings.ToUpper(v) == v
	},
	"stage": func(v string) bool {
		switch normalizeName(v) {
		case "prospect", "qualified", "proposal", "negotiation", "closedwon", "closedlost":
			return true
		}
		return false
	},
	"type": func(v string) bool {
		switch normalizeName(v) {
		case "call", "email", "meeting", "visit", "demo", "tasting":
			return true
		}
		return false
	},
	"employee_count": func(v string) bool {
		f, err := strconv.ParseFloat(workbook.NormalizeNumeric(v), 64)
		return err == nil && f >= 0 && f <= 100000
	},
}

const defaultBusinessRuleScore = 0.8

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

func normalizeName(name string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(name), "")
}

// Score computes the confidence that sourceField maps onto targetField. It is
// a pure function of its inputs: no I/O, deterministic for identical samples.
func Score(sourceField, targetField string, samples []string, targetType domain.FieldType) domain.FieldMapping {
	semantic := semanticScore(sourceField, targetField)
	dataType := dataTypeScore(samples, targetType)
	pattern := patternScore(samples, targetField)
	rule := businessRuleScore(samples, targetField)

	confidence := 10 * (weightSemantic*semantic + weightDataType*dataType +
		weightPattern*pattern + weightBusinessRule*rule)
	confidence = math.Round(confidence*10) / 10

	return domain.FieldMapping{
		SourceField:       sourceField,
		TargetField:       targetField,
		Confidence:        confidence,
		Reasons:           describeScores(semantic, dataType, pattern, rule),
		SemanticMatch:     semantic >= matchFlagFloor,
		DataTypeMatch:     dataType >= matchFlagFloor,
		PatternMatch:      pattern >= matchFlagFloor,
		BusinessRuleMatch: rule >= matchFlagFloor,
	}
}

func semanticScore(sourceField, targetField string) float64 {
	source := normalizeName(sourceField)
	target := normalizeName(targetField)

	if source == target && source != "" {
		return 1.0
	}

	for _, syn := range synonyms[target] {
		if source == normalizeName(syn) || strings.Contains(source, normalizeName(syn)) {
			return 0.9
		}
	}
	// Source containing the target name outright is as strong as a synonym.
	if target != "" && strings.Contains(source, target) {
		return 0.9
	}

	maxLen := len(source)
	if len(target) > maxLen {
		maxLen = len(target)
	}
	if maxLen == 0 {
		return 0
	}
	distance := levenshtein.ComputeDistance(source, target)
	return float64(maxLen-distance) / float64(maxLen)
}

func dataTypeScore(samples []string, targetType domain.FieldType) float64 {
	nonEmpty := 0
	matched := 0
	for _, s := range samples {
		if strings.TrimSpace(s) == "" {
			continue
		}
		nonEmpty++
		if workbook.MatchesFieldType(s, targetType) {
			matched++
		}
	}
	if nonEmpty == 0 {
		return neutralScore
	}
	return float64(matched) / float64(nonEmpty)
}

func patternScore(samples []string, targetField string) float64 {
	target := strings.ToLower(targetField)
	var pattern *regexp.Regexp
	for _, exp := range patternExpectations {
		if strings.Contains(target, exp.keyword) {
			pattern = exp.pattern
			break
		}
	}
	if pattern == nil {
		// No format expectation for this field name.
		return 0.7
	}

	nonEmpty := 0
	matched := 0
	for _, s := range samples {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		nonEmpty++
		if pattern.MatchString(strings.ToLower(s)) {
			matched++
		}
	}
	if nonEmpty == 0 {
		return neutralScore
	}
	return float64(matched) / float64(nonEmpty)
}

func businessRuleScore(samples []string, targetField string) float64 {
	rule, ok := businessRules[strings.ToLower(targetField)]
	if !ok {
		return defaultBusinessRuleScore
	}

	nonEmpty := 0
	passed := 0
	for _, s := range samples {
		if strings.TrimSpace(s) == "" {
			continue
		}
		nonEmpty++
		if rule(s) {
			passed++
		}
	}
	if nonEmpty == 0 {
		return neutralScore
	}
	return float64(passed) / float64(nonEmpty)
}

// describeScores renders human-readable reasons from score bands. The output
// is purely descriptive and feeds no further scoring.
func describeScores(semantic, dataType, pattern, rule float64) []string {
	return []string{
		fmt.Sprintf("name similarity: %s", band(semantic, "very similar", "similar", "somewhat similar", "quite different")),
		fmt.Sprintf("data type fit: %s", band(dataType, "excellent", "good", "partial", "poor")),
		fmt.Sprintf("format match: %s", band(pattern, "excellent", "good", "partial", "poor")),
		fmt.Sprintf("domain rule fit: %s", band(rule, "excellent", "good", "partial", "poor")),
	}
}

func band(score float64, high, mid, low, none string) string {
	switch {
	case score >= 0.9:
		return high
	case score >= 0.7:
		return mid
	case score >= 0.5:
		return low
	default:
		return none
	}
}
