package investcalc

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const dayLayout = "2006-01-02"

// dayInputLayouts are the layouts accepted from users and import files.
var dayInputLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"2006-1-2",
	"2006/1/2",
	"01/02/2006",
	"1/2/2006",
	"02.01.2006",
	"2.1.2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Day is a calendar day stored at the UTC day boundary. Time of day is
// always discarded, so two Days compare by calendar date only.
type Day struct {
	t time.Time
}

// DayOf returns the calendar day of t in t's own location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// NewDay builds a Day from its components.
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDay parses s as a calendar day in local terms.
func ParseDay(s string) (Day, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dayInputLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return DayOf(t), nil
		}
	}
	return Day{}, fmt.Errorf("invalid date: %q", s)
}

// IsZero reports whether d is unset.
func (d Day) IsZero() bool { return d.t.IsZero() }

// Time returns the UTC midnight instant of d.
func (d Day) Time() time.Time { return d.t }

// Before reports whether d is strictly earlier than o.
func (d Day) Before(o Day) bool { return d.t.Before(o.t) }

// After reports whether d is strictly later than o.
func (d Day) After(o Day) bool { return d.t.After(o.t) }

// Equal reports whether d and o are the same calendar day.
func (d Day) Equal(o Day) bool { return d.t.Equal(o.t) }

// AddDays returns d shifted by n days.
func (d Day) AddDays(n int) Day { return Day{t: d.t.AddDate(0, 0, n)} }

func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(dayLayout)
}

// MarshalJSON encodes d as "YYYY-MM-DD".
func (d Day) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts any layout ParseDay understands.
func (d *Day) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Day{}
		return nil
	}
	parsed, err := ParseDay(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer; days are stored as ISO text.
func (d Day) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan implements sql.Scanner.
func (d *Day) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Day{}
		return nil
	case string:
		t, err := time.Parse(dayLayout, v)
		if err != nil {
			return err
		}
		*d = DayOf(t)
		return nil
	case []byte:
		return d.Scan(string(v))
	case time.Time:
		*d = DayOf(v.UTC())
		return nil
	}
	return fmt.Errorf("cannot scan %T into Day", src)
}
