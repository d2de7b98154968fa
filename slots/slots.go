// Package slots defines the canonical trip-planning slot vocabulary and the
// normalizers applied before a FACT value is accepted into the knowledge
// base. Slots without a dedicated normalizer pass through unchanged.
package slots

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/voyagent/voyagent/acl"
)

// Canonical is the closed set of slot names agents may assert facts about.
var Canonical = map[string]struct{}{
	"budget_total":        {},
	"dates_start":         {},
	"nights":              {},
	"origin_city":         {},
	"transport_mode":      {},
	"passport_ok":         {},
	"destination_pref":    {},
	"weather_min_c":       {},
	"party_adults":        {},
	"party_children_ages": {},
	"style":               {},
	"hotel_stars_min":     {},
	"board":               {},
	"must_haves":          {},
	"risk_profile":        {},
}

// IsCanonical reports whether name is a known slot.
func IsCanonical(name string) bool {
	_, ok := Canonical[name]
	return ok
}

// Names returns the canonical slot names, sorted.
func Names() []string {
	out := make([]string, 0, len(Canonical))
	for name := range Canonical {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Normalizer validates one slot value and returns its canonical form.
type Normalizer func(value any) (any, error)

var normalizers = map[string]Normalizer{
	"budget_total":        NormalizeBudgetTotal,
	"dates_start":         NormalizeDatesStart,
	"nights":              NormalizeNights,
	"passport_ok":         NormalizePassportOK,
	"party_adults":        NormalizePartyAdults,
	"party_children_ages": NormalizeChildrenAges,
	"weather_min_c":       NormalizeWeatherMinC,
}

// Normalize checks that slot is canonical and runs its normalizer, if any.
// Unknown slots fail with a VALIDATION_ERROR naming the allowed set.
func Normalize(slot string, value any) (any, error) {
	if !IsCanonical(slot) {
		return nil, acl.NewValidationError("unknown slot").
			WithDetail("slot", slot).
			WithDetail("allowed", Names())
	}
	normalize, ok := normalizers[slot]
	if !ok {
		return value, nil
	}
	out, err := normalize(value)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// NormalizeBudgetTotal accepts numbers and numeric strings (spaces and
// underscores as group separators, comma as decimal point, optional "PLN"
// suffix), requires a positive amount, and floors to whole units.
func NormalizeBudgetTotal(value any) (any, error) {
	var amount float64
	switch v := value.(type) {
	case bool:
		return nil, fmt.Errorf("budget_total must be a number")
	case string:
		s := strings.NewReplacer(" ", "", "_", "").Replace(strings.TrimSpace(v))
		s = strings.TrimSuffix(s, "PLN")
		s = strings.ReplaceAll(s, ",", ".")
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("budget_total must be numeric")
		}
		amount = parsed
	case float64:
		amount = v
	case float32:
		amount = float64(v)
	case int:
		amount = float64(v)
	case int64:
		amount = float64(v)
	default:
		return nil, fmt.Errorf("budget_total must be numeric")
	}
	if amount <= 0 {
		return nil, fmt.Errorf("budget_total must be > 0")
	}
	return int(math.Floor(amount)), nil
}

// NormalizeDatesStart accepts a "YYYY-MM-DD" string naming a real calendar
// date and returns it zero-padded. No relation to the current date is
// imposed.
func NormalizeDatesStart(value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("dates_start must be string 'YYYY-MM-DD'")
	}
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return nil, fmt.Errorf("dates_start must be 'YYYY-MM-DD'")
	}
	year, errY := strconv.Atoi(parts[0])
	month, errM := strconv.Atoi(parts[1])
	day, errD := strconv.Atoi(parts[2])
	if errY != nil || errM != nil || errD != nil {
		return nil, fmt.Errorf("dates_start must be a valid calendar date")
	}
	// time.Date normalizes overflow (Feb 30 becomes Mar 2), so a real date
	// must survive the round trip unchanged.
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return nil, fmt.Errorf("dates_start must be a valid calendar date")
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), nil
}

// NormalizePassportOK accepts booleans and yes/no strings in Polish or
// English ("tak"/"nie", "yes"/"no", "true"/"false", "1"/"0"), returning a
// bool.
func NormalizePassportOK(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "tak", "yes", "true", "1":
			return true, nil
		case "nie", "no", "false", "0":
			return false, nil
		}
	}
	return nil, fmt.Errorf("passport_ok must be yes/no")
}

// NormalizePartyAdults accepts positive integers and integer strings.
func NormalizePartyAdults(value any) (any, error) {
	n, ok := intValue(value)
	if !ok || n <= 0 {
		return nil, fmt.Errorf("party_adults must be an integer > 0")
	}
	return n, nil
}

// NormalizeChildrenAges accepts a list of ages or a delimited string
// ("13,11", "5 7 9", "4; 6") and returns []int with every age in 0..17.
// A bare number or an empty list is rejected.
func NormalizeChildrenAges(value any) (any, error) {
	var parts []any
	switch v := value.(type) {
	case string:
		fields := strings.FieldsFunc(v, func(r rune) bool {
			return r == ',' || r == ';' || unicode.IsSpace(r)
		})
		for _, f := range fields {
			parts = append(parts, f)
		}
	case []any:
		parts = v
	case []int:
		for _, n := range v {
			parts = append(parts, n)
		}
	case []string:
		for _, s := range v {
			parts = append(parts, s)
		}
	default:
		return nil, fmt.Errorf("party_children_ages must be a list of ages or a delimited string")
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("party_children_ages must list at least one age")
	}
	ages := make([]int, 0, len(parts))
	for _, p := range parts {
		n, ok := intValue(p)
		if !ok || n < 0 || n > 17 {
			return nil, fmt.Errorf("party_children_ages must list ages 0..17")
		}
		ages = append(ages, n)
	}
	return ages, nil
}

// NormalizeWeatherMinC accepts integers and integer strings; negative
// temperatures are fine.
func NormalizeWeatherMinC(value any) (any, error) {
	n, ok := intValue(value)
	if !ok {
		return nil, fmt.Errorf("weather_min_c must be an integer")
	}
	return n, nil
}

// intValue coerces ints, JSON floats, and integer strings (spaces and
// underscores stripped). Bools and fractional strings do not coerce.
func intValue(value any) (int, bool) {
	switch v := value.(type) {
	case bool:
		return 0, false
	case string:
		s := strings.NewReplacer(" ", "", "_", "").Replace(strings.TrimSpace(v))
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, false
		}
		return n, true
	case float64:
		return int(v), true
	case float32:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}

// NormalizeNights accepts positive integers and integer strings (spaces and
// underscores stripped). Fractional numbers are truncated.
func NormalizeNights(value any) (any, error) {
	var nights int
	switch v := value.(type) {
	case bool:
		return nil, fmt.Errorf("nights must be an integer > 0")
	case string:
		s := strings.NewReplacer(" ", "", "_", "").Replace(strings.TrimSpace(v))
		parsed, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("nights must be an integer > 0")
		}
		nights = parsed
	case float64:
		nights = int(v)
	case int:
		nights = v
	case int64:
		nights = int(v)
	default:
		return nil, fmt.Errorf("nights must be an integer > 0")
	}
	if nights <= 0 {
		return nil, fmt.Errorf("nights must be > 0")
	}
	return nights, nil
}
