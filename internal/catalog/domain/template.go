package catalog

import (
	"errors"
	"sort"
	"strings"
	"time"
)

var (
	ErrEmptyName     = errors.New("catalog: template name required")
	ErrNotFound      = errors.New("catalog: not found")
	ErrTemplateInUse = errors.New("catalog: template is assigned to a date")
	ErrInvalidTime   = errors.New("catalog: time must be HH:MM")
)

// Template is a named, reusable set of visit slots.
type Template struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TemplateSummary is a template with its station count.
type TemplateSummary struct {
	Template
	StationCount int
}

// TemplateDetail is a template with its stations in display order.
type TemplateDetail struct {
	Template
	Stations []Station
}

// NormalizeName trims the name and rejects blanks.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	return name, nil
}

// Station is one slot of a template. Empty CustomerID or WorkerID marks a
// placeholder that expansion skips.
type Station struct {
	ID            string
	TemplateID    string
	CustomerID    string
	WorkerID      string
	Order         int
	ScheduledTime string
	CreatedAt     time.Time
}

// Bound reports whether both customer and worker are set.
func (s Station) Bound() bool {
	return s.CustomerID != "" && s.WorkerID != ""
}

// TimeOfDay returns the station time, or the default when unset or invalid.
func (s Station) TimeOfDay() TimeOfDay {
	if s.ScheduledTime == "" {
		return DefaultTimeOfDay
	}
	tod, err := ParseTimeOfDay(s.ScheduledTime)
	if err != nil {
		return DefaultTimeOfDay
	}
	return tod
}

// SortStations orders stations by Order. Ties keep their input order, which
// callers load by insertion time.
func SortStations(stations []Station) {
	sort.SliceStable(stations, func(i, j int) bool {
		return stations[i].Order < stations[j].Order
	})
}
