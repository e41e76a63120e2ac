// Package period implements the biweekly reporting windows used for
// commission and maintenance cost aggregation. Each calendar month is split
// into two halves: the 1st through the 15th ("A") and the 16th through the
// last day of the month ("B").
package period

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var ErrInvalidPeriod = errors.New("invalid period")

type Half int

const (
	FirstHalf  Half = 1
	SecondHalf Half = 2
)

// Period is a half-month window. Start and End are inclusive UTC dates.
type Period struct {
	Year  int
	Month time.Month
	Half  Half
}

func Containing(t time.Time) Period {
	t = t.UTC()
	half := FirstHalf
	if t.Day() > 15 {
		half = SecondHalf
	}
	return Period{Year: t.Year(), Month: t.Month(), Half: half}
}

func (p Period) Start() time.Time {
	day := 1
	if p.Half == SecondHalf {
		day = 16
	}
	return time.Date(p.Year, p.Month, day, 0, 0, 0, 0, time.UTC)
}

func (p Period) End() time.Time {
	if p.Half == FirstHalf {
		return time.Date(p.Year, p.Month, 15, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(p.Year, p.Month, daysIn(p.Year, p.Month), 0, 0, 0, 0, time.UTC)
}

// EndExclusive is the first instant after the period, for half-open range
// queries.
func (p Period) EndExclusive() time.Time {
	return p.End().AddDate(0, 0, 1)
}

func (p Period) Days() int {
	return p.End().Day() - p.Start().Day() + 1
}

func (p Period) Contains(t time.Time) bool {
	return Containing(t) == p
}

func (p Period) Next() Period {
	if p.Half == FirstHalf {
		return Period{Year: p.Year, Month: p.Month, Half: SecondHalf}
	}
	next := time.Date(p.Year, p.Month+1, 1, 0, 0, 0, 0, time.UTC)
	return Period{Year: next.Year(), Month: next.Month(), Half: FirstHalf}
}

func (p Period) Prev() Period {
	if p.Half == SecondHalf {
		return Period{Year: p.Year, Month: p.Month, Half: FirstHalf}
	}
	prev := time.Date(p.Year, p.Month-1, 1, 0, 0, 0, 0, time.UTC)
	return Period{Year: prev.Year(), Month: prev.Month(), Half: SecondHalf}
}

func (p Period) Before(other Period) bool {
	return p.Start().Before(other.Start())
}

// String renders the period as YYYY-MM-A or YYYY-MM-B.
func (p Period) String() string {
	suffix := "A"
	if p.Half == SecondHalf {
		suffix = "B"
	}
	return fmt.Sprintf("%04d-%02d-%s", p.Year, int(p.Month), suffix)
}

func (p Period) Label() string {
	return fmt.Sprintf("%s to %s", p.Start().Format("Jan 2"), p.End().Format("Jan 2, 2006"))
}

func (p Period) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Period) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Parse accepts YYYY-MM-A / YYYY-MM-B, or a plain YYYY-MM-DD date which
// resolves to the period containing it.
func Parse(value string) (Period, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(DateLayout, value); err == nil {
		return Containing(t), nil
	}
	parts := strings.Split(value, "-")
	if len(parts) != 3 {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, value)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil || len(parts[0]) != 4 {
		return Period{}, fmt.Errorf("%w: bad year in %q", ErrInvalidPeriod, value)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return Period{}, fmt.Errorf("%w: bad month in %q", ErrInvalidPeriod, value)
	}
	var half Half
	switch strings.ToUpper(parts[2]) {
	case "A", "1":
		half = FirstHalf
	case "B", "2":
		half = SecondHalf
	default:
		return Period{}, fmt.Errorf("%w: bad half in %q", ErrInvalidPeriod, value)
	}
	return Period{Year: year, Month: time.Month(month), Half: half}, nil
}

// Range returns every period overlapping [from, to], in order.
func Range(from, to time.Time) []Period {
	if to.Before(from) {
		return nil
	}
	last := Containing(to)
	var periods []Period
	for p := Containing(from); !last.Before(p); p = p.Next() {
		periods = append(periods, p)
	}
	return periods
}

// Around returns count periods centred on the period containing t, used for
// period navigation in reports.
func Around(t time.Time, count int) []Period {
	if count <= 0 {
		return nil
	}
	p := Containing(t)
	for i := 0; i < count/2; i++ {
		p = p.Prev()
	}
	periods := make([]Period, 0, count)
	for i := 0; i < count; i++ {
		periods = append(periods, p)
		p = p.Next()
	}
	return periods
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
