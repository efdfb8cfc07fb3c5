package summary

import (
	"errors"
	"sort"

	visits "scentroute-cloud/internal/visits/domain"
)

var ErrWorkerRequired = errors.New("summary: worker_id required")

const (
	KindInstallation = "installation"
	KindSpecial      = "special"
)

// VisitPoints is one pending visit with its points.
type VisitPoints struct {
	VisitID string
	Points  []visits.PointDetail
}

// EquipmentVisit is a pending installation or special visit.
type EquipmentVisit struct {
	ID          string
	Kind        string
	DeviceType  string
	BatteryType string
}

// DailySummary is a worker's load for one day.
type DailySummary struct {
	WorkerID            string         `json:"worker_id"`
	Date                string         `json:"date"`
	VisitCount          int            `json:"visit_count"`
	EquipmentVisitCount int            `json:"equipment_visit_count"`
	ScentVolumes        map[string]int `json:"scent_volumes"`
	DeviceCounts        map[string]int `json:"device_counts"`
	BatteryCounts       map[string]int `json:"battery_counts"`
}

// Line is one labelled total.
type Line struct {
	Name  string
	Total int
}

// Aggregate sums resolved quantities per scent and counts one unit per
// non-empty device and battery type.
func Aggregate(workerID, date string, pending []VisitPoints, equipment []EquipmentVisit) DailySummary {
	out := DailySummary{
		WorkerID:            workerID,
		Date:                date,
		VisitCount:          len(pending),
		EquipmentVisitCount: len(equipment),
		ScentVolumes:        map[string]int{},
		DeviceCounts:        map[string]int{},
		BatteryCounts:       map[string]int{},
	}
	for _, v := range pending {
		for _, p := range v.Points {
			out.ScentVolumes[p.ServicePoint.ScentType] += p.Quantity()
		}
	}
	for _, e := range equipment {
		if e.DeviceType != "" {
			out.DeviceCounts[e.DeviceType]++
		}
		if e.BatteryType != "" {
			out.BatteryCounts[e.BatteryType]++
		}
	}
	return out
}

// ScentLines returns scent totals sorted by name.
func (s DailySummary) ScentLines() []Line {
	return sortedLines(s.ScentVolumes)
}

// DeviceLines returns device counts sorted by name.
func (s DailySummary) DeviceLines() []Line {
	return sortedLines(s.DeviceCounts)
}

// BatteryLines returns battery counts sorted by name.
func (s DailySummary) BatteryLines() []Line {
	return sortedLines(s.BatteryCounts)
}

// TotalVolume sums every scent.
func (s DailySummary) TotalVolume() int {
	total := 0
	for _, v := range s.ScentVolumes {
		total += v
	}
	return total
}

func sortedLines(m map[string]int) []Line {
	lines := make([]Line, 0, len(m))
	for name, total := range m {
		lines = append(lines, Line{Name: name, Total: total})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Name < lines[j].Name })
	return lines
}
