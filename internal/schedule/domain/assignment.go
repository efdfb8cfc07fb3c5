package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar key format.
const DateLayout = "2006-01-02"

var (
	ErrInvalidDate      = errors.New("schedule: date must be YYYY-MM-DD")
	ErrInvalidRange     = errors.New("schedule: to must not be before from")
	ErrTemplateRequired = errors.New("schedule: template_id required")
	ErrTemplateNotFound = errors.New("schedule: template not found")
	ErrNotFound         = errors.New("schedule: no template assigned")
)

// Assignment binds one template to one calendar date. There is at most one
// assignment per date.
type Assignment struct {
	ID         string
	Date       string
	TemplateID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ParseDate parses a calendar date in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	parsed, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return parsed, nil
}
