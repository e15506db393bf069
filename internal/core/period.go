package core

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Half identifies which half of a month a period covers.
type Half int

const (
	FirstHalf  Half = 1 // days 1-15
	SecondHalf Half = 2 // days 16-end of month

	// lastDayOfFirstHalf is the last day-of-month that still belongs to FirstHalf.
	lastDayOfFirstHalf = 15
)

var ErrInvalidPeriodKey = errors.New("invalid period key")

// PeriodKey identifies a half-month accounting period.
// Its string form is "YYYY-M-H", e.g. "2024-5-1".
type PeriodKey struct {
	Year  int
	Month int // 1-12
	Half  Half
}

// NewPeriodKey builds a key from its components. It does not validate.
func NewPeriodKey(year, month int, half Half) PeriodKey {
	return PeriodKey{Year: year, Month: month, Half: half}
}

// PeriodIDFor returns the period the given date falls in, using the
// calendar fields of t in its own location.
func PeriodIDFor(t time.Time) PeriodKey {
	half := FirstHalf
	if t.Day() > lastDayOfFirstHalf {
		half = SecondHalf
	}
	return PeriodKey{Year: t.Year(), Month: int(t.Month()), Half: half}
}

// Previous returns the period immediately before k.
func (k PeriodKey) Previous() PeriodKey {
	if k.Half == SecondHalf {
		return PeriodKey{Year: k.Year, Month: k.Month, Half: FirstHalf}
	}
	if k.Month == 1 {
		return PeriodKey{Year: k.Year - 1, Month: 12, Half: SecondHalf}
	}
	return PeriodKey{Year: k.Year, Month: k.Month - 1, Half: SecondHalf}
}

// Next returns the period immediately after k.
func (k PeriodKey) Next() PeriodKey {
	if k.Half == FirstHalf {
		return PeriodKey{Year: k.Year, Month: k.Month, Half: SecondHalf}
	}
	if k.Month == 12 {
		return PeriodKey{Year: k.Year + 1, Month: 1, Half: FirstHalf}
	}
	return PeriodKey{Year: k.Year, Month: k.Month + 1, Half: FirstHalf}
}

// Template returns the January period of the same year and half. Its
// expenses seed newly created periods.
func (k PeriodKey) Template() PeriodKey {
	return PeriodKey{Year: k.Year, Month: 1, Half: k.Half}
}

// IsTemplate reports whether k is one of the January template periods.
func (k PeriodKey) IsTemplate() bool {
	return k.Month == 1
}

// Valid reports whether month and half are in range.
func (k PeriodKey) Valid() bool {
	return k.Month >= 1 && k.Month <= 12 && (k.Half == FirstHalf || k.Half == SecondHalf)
}

// IsZero reports whether k is the zero key.
func (k PeriodKey) IsZero() bool {
	return k == PeriodKey{}
}

func (k PeriodKey) String() string {
	return strconv.Itoa(k.Year) + "-" + strconv.Itoa(k.Month) + "-" + strconv.Itoa(int(k.Half))
}

// Start returns the first instant of the period in loc: day 1 for the
// first half, day 16 for the second.
func (k PeriodKey) Start(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	day := 1
	if k.Half == SecondHalf {
		day = lastDayOfFirstHalf + 1
	}
	return time.Date(k.Year, time.Month(k.Month), day, 0, 0, 0, 0, loc)
}

// Compare orders keys chronologically. It returns -1, 0 or +1.
func (k PeriodKey) Compare(o PeriodKey) int {
	switch {
	case k.Year != o.Year:
		return cmpInt(k.Year, o.Year)
	case k.Month != o.Month:
		return cmpInt(k.Month, o.Month)
	default:
		return cmpInt(int(k.Half), int(o.Half))
	}
}

// Before reports whether k is chronologically earlier than o.
func (k PeriodKey) Before(o PeriodKey) bool {
	return k.Compare(o) < 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// ParsePeriodKey parses the canonical "YYYY-M-H" form. It is the validation
// gate for keys coming from storage or user input; every component must be
// numeric and in range, and padded or spaced variants such as "2024-05-1"
// are rejected so one period never has two spellings.
func ParsePeriodKey(s string) (PeriodKey, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return PeriodKey{}, fmt.Errorf("%w: %q", ErrInvalidPeriodKey, s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || p == "" || strings.HasPrefix(p, "+") {
			return PeriodKey{}, fmt.Errorf("%w: %q", ErrInvalidPeriodKey, s)
		}
		nums[i] = n
	}
	k := PeriodKey{Year: nums[0], Month: nums[1], Half: Half(nums[2])}
	if k.Year < 1 || !k.Valid() || k.String() != s {
		return PeriodKey{}, fmt.Errorf("%w: %q", ErrInvalidPeriodKey, s)
	}
	return k, nil
}

// MustParsePeriodKey is like ParsePeriodKey but panics on error. Intended
// for constants and tests.
func MustParsePeriodKey(s string) PeriodKey {
	k, err := ParsePeriodKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

// MarshalText implements encoding.TextMarshaler.
func (k PeriodKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PeriodKey) UnmarshalText(b []byte) error {
	parsed, err := ParsePeriodKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// SortKeys orders keys chronologically in place. String order is not
// chronological ("2024-9-1" > "2024-12-1"), so keys are always compared
// by their components.
func SortKeys(keys []PeriodKey, descending bool) {
	sort.SliceStable(keys, func(i, j int) bool {
		if descending {
			return keys[j].Before(keys[i])
		}
		return keys[i].Before(keys[j])
	})
}
