package attendance

import (
	"fmt"
	"sort"
	"time"
)

// DateLayout is the calendar date format stored in a record.
const DateLayout = "2006-01-02"

// Record is one user's attendance: the set of days they marked.
type Record struct {
	Key   string   `json:"key"`
	Name  string   `json:"name,omitempty"`
	Email string   `json:"email"`
	Dates []string `json:"dates"`
}

// Has reports whether date is already in the record.
func (r Record) Has(date string) bool {
	for _, d := range r.Dates {
		if d == date {
			return true
		}
	}
	return false
}

// clone returns a deep copy so callers never share the Dates slice.
func (r Record) clone() Record {
	out := r
	out.Dates = append([]string(nil), r.Dates...)
	return out
}

// Day returns the calendar date of t in zone.
func Day(t time.Time, zone *time.Location) string {
	if zone == nil {
		zone = time.Local
	}
	return t.In(zone).Format(DateLayout)
}

// ValidDate reports whether s is a YYYY-MM-DD date.
func ValidDate(s string) bool {
	if len(s) != len(DateLayout) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// DecodeRecord validates a raw stored document and converts it to a Record.
// dates must be a list of distinct YYYY-MM-DD strings; name and email must be
// strings when present.
func DecodeRecord(key string, data map[string]any) (Record, error) {
	if key == "" {
		return Record{}, fmt.Errorf("%w: empty key", ErrMalformedRecord)
	}
	rec := Record{Key: key}

	var err error
	if rec.Name, err = optionalString(data, "name"); err != nil {
		return Record{}, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, key, err)
	}
	if rec.Email, err = optionalString(data, "email"); err != nil {
		return Record{}, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, key, err)
	}

	raw, ok := data["dates"]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s: missing dates", ErrMalformedRecord, key)
	}
	var dates []string
	switch v := raw.(type) {
	case []any:
		dates = make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return Record{}, fmt.Errorf("%w: %s: dates[%d] is %T", ErrMalformedRecord, key, i, item)
			}
			dates = append(dates, s)
		}
	case []string:
		dates = append([]string(nil), v...)
	default:
		return Record{}, fmt.Errorf("%w: %s: dates is %T, want list", ErrMalformedRecord, key, raw)
	}
	if rec.Dates, err = checkDates(dates); err != nil {
		return Record{}, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, key, err)
	}
	return rec, nil
}

func optionalString(data map[string]any, field string) (string, error) {
	v, ok := data[field]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s is %T, want string", field, v)
	}
	return s, nil
}

func checkDates(dates []string) ([]string, error) {
	seen := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		if !ValidDate(d) {
			return nil, fmt.Errorf("invalid date %q", d)
		}
		if _, dup := seen[d]; dup {
			return nil, fmt.Errorf("duplicate date %q", d)
		}
		seen[d] = struct{}{}
	}
	return dates, nil
}

// Profile is a user's own attendance summary.
type Profile struct {
	Key         string   `json:"key"`
	Name        string   `json:"name,omitempty"`
	Email       string   `json:"email"`
	Days        int      `json:"days"`
	Dates       []string `json:"dates"`
	Today       string   `json:"today"`
	TodayMarked bool     `json:"today_marked"`
}

// Standing is one leaderboard row.
type Standing struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Days  int    `json:"days"`
}

// Rank orders records by number of attended days, most first. Ties are broken
// by key so the order is stable across calls.
func Rank(records []Record) []Standing {
	out := make([]Standing, 0, len(records))
	for _, r := range records {
		out = append(out, StandingOf(r.Key, r.Name, r.Email, len(r.Dates)))
	}
	SortStandings(out)
	return out
}

// StandingOf builds a leaderboard row, filling in display defaults.
func StandingOf(key, name, email string, days int) Standing {
	if name == "" {
		name = "User"
	}
	if email == "" {
		email = "unknown"
	}
	return Standing{Key: key, Name: name, Email: email, Days: days}
}

// SortStandings sorts rows by days descending, then key ascending.
func SortStandings(s []Standing) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Days != s[j].Days {
			return s[i].Days > s[j].Days
		}
		return s[i].Key < s[j].Key
	})
}
