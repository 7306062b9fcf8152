// Package agenda filters, buckets and checks appointments for the scheduling views.
// Everything here is pure: callers load the rows and pass the clinic's location.
package agenda

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/dentalcare/services/clinic-service/internal/model"
)

const DefaultTimezone = "America/Sao_Paulo"

// EndOfDaySuffix extends a bare upper-bound date so the whole day is included.
const EndOfDaySuffix = "T23:59:59"

// Location resolves a clinic timezone, falling back to DefaultTimezone and then UTC.
func Location(name string) *time.Location {
	if name == "" {
		name = DefaultTimezone
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	if loc, err := time.LoadLocation(DefaultTimezone); err == nil {
		return loc
	}
	return time.UTC
}

type Filter struct {
	Text           string
	ProfessionalID string
	Type           model.AppointmentType
	Status         model.AppointmentStatus
	From           string
	To             string
}

// BoundError reports a date bound that could not be parsed.
type BoundError struct {
	Field string
	Value string
}

func (e *BoundError) Error() string {
	return fmt.Sprintf("%s: cannot parse %q as a date", e.Field, e.Value)
}

var boundLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func parseBound(field, raw string, upper bool, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if len(raw) == len(model.DateLayout) {
		if upper {
			raw += EndOfDaySuffix
		} else {
			raw += "T00:00:00"
		}
	}
	for _, layout := range boundLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &BoundError{Field: field, Value: raw}
}

// Matcher is a compiled Filter.
type Matcher struct {
	text           string
	professionalID string
	typ            model.AppointmentType
	status         model.AppointmentStatus
	from, to       time.Time
}

// Compile parses the date bounds in loc. Bounds are compared as instants, so stored
// timestamps in any zone order correctly.
func (f Filter) Compile(loc *time.Location) (Matcher, error) {
	m := Matcher{
		text:           strings.ToLower(strings.TrimSpace(f.Text)),
		professionalID: strings.TrimSpace(f.ProfessionalID),
		typ:            f.Type,
		status:         f.Status,
	}
	if loc == nil {
		loc = time.UTC
	}
	var err error
	if strings.TrimSpace(f.From) != "" {
		if m.from, err = parseBound("data_inicio", f.From, false, loc); err != nil {
			return Matcher{}, err
		}
	}
	if strings.TrimSpace(f.To) != "" {
		if m.to, err = parseBound("data_fim", f.To, true, loc); err != nil {
			return Matcher{}, err
		}
	}
	return m, nil
}

// Bounds returns the parsed date range; a zero value is an open bound.
func (m Matcher) Bounds() (from, to time.Time) { return m.from, m.to }

func (m Matcher) Match(a model.AppointmentView) bool {
	if m.text != "" && !containsFold(m.text, a.Title, a.PatientName, a.ProfessionalName, deref(a.Notes)) {
		return false
	}
	if m.professionalID != "" && deref(a.ProfessionalID) != m.professionalID {
		return false
	}
	if m.typ != "" && a.Type != m.typ {
		return false
	}
	if m.status != "" && a.Status != m.status {
		return false
	}
	if !m.from.IsZero() && a.StartsAt.Before(m.from) {
		return false
	}
	if !m.to.IsZero() && a.StartsAt.After(m.to) {
		return false
	}
	return true
}

// Apply returns the matching appointments in input order.
func (m Matcher) Apply(in []model.AppointmentView) []model.AppointmentView {
	out := make([]model.AppointmentView, 0, len(in))
	for _, a := range in {
		if m.Match(a) {
			out = append(out, a)
		}
	}
	return out
}

// Apply compiles f and filters in.
func Apply(in []model.AppointmentView, f Filter, loc *time.Location) ([]model.AppointmentView, error) {
	m, err := f.Compile(loc)
	if err != nil {
		return nil, err
	}
	return m.Apply(in), nil
}

func containsFold(needle string, hay ...string) bool {
	for _, h := range hay {
		if strings.Contains(strings.ToLower(h), needle) {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
