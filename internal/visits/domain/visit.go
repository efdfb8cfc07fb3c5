package visits

import (
	"errors"
	"fmt"
	"time"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

var (
	ErrNotFound         = errors.New("visits: not found")
	ErrInvalidVisit     = errors.New("visits: invalid visit")
	ErrNegativeQuantity = errors.New("visits: quantity must not be negative")
)

// Visit is a dated service call for one customer and worker.
type Visit struct {
	ID                string
	CustomerID        string
	OneTimeCustomerID string
	WorkerID          string
	ScheduledAt       time.Time
	Status            string
	OrderNumber       *int
	Notes             string
	TemplateID        string
	StationID         string
	SourceKey         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// VisitPoint is one refill task of a visit. A nil Override defers to the
// service point's current default.
type VisitPoint struct {
	ID             string
	VisitID        string
	ServicePointID string
	Override       *int
	ImageURL       string
}

// ServicePoint is a customer's dispenser with its default refill quantity.
type ServicePoint struct {
	ID           string
	CustomerID   string
	DeviceType   string
	ScentType    string
	RefillAmount int
}

// PointDetail joins a visit point with its service point.
type PointDetail struct {
	Point        VisitPoint
	ServicePoint ServicePoint
}

// Quantity returns the resolved refill quantity.
func (d PointDetail) Quantity() int {
	return Resolve(d.Point, d.ServicePoint)
}

// Resolve returns the point override when set, zero included, otherwise the
// service point's current default.
func Resolve(point VisitPoint, servicePoint ServicePoint) int {
	if point.Override != nil {
		return *point.Override
	}
	return servicePoint.RefillAmount
}

// SourceKey identifies the visit expanded from a station on a date.
func SourceKey(templateID, stationID string, date time.Time) string {
	return fmt.Sprintf("%s|%s|%s", templateID, stationID, date.Format("2006-01-02"))
}

// SourceKeyPattern matches, as a SQL LIKE pattern, the source keys of every
// station of a template expanded for date.
func SourceKeyPattern(templateID string, date time.Time) string {
	return fmt.Sprintf("%s|%%|%s", templateID, date.Format("2006-01-02"))
}

// DayBounds returns [start, end) of date's calendar day in loc.
func DayBounds(date time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// ExpansionResult summarises one template expansion.
type ExpansionResult struct {
	TemplateID string    `json:"template_id"`
	Date       string    `json:"date"`
	VisitIDs   []string  `json:"visit_ids"`
	Created    int       `json:"created"`
	Existing   int       `json:"existing"`
	Skipped    int       `json:"skipped"`
	Points     int       `json:"points"`
	ExpandedAt time.Time `json:"expanded_at"`
}
