package robot

import "time"

// Status is the robot's reported operating mode. Values outside the known set
// are kept verbatim for display.
type Status string

const (
	StatusOffline  Status = "Offline"
	StatusActive   Status = "Active"
	StatusWorking  Status = "Working"
	StatusPause    Status = "Pause"
	StatusCharging Status = "Charging"
	StatusError    Status = "Error"
)

// Severity grades a detected pest site.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AlertType classifies an alert raised by the robot.
type AlertType string

const (
	AlertInfo    AlertType = "info"
	AlertWarning AlertType = "warning"
	AlertError   AlertType = "error"
)

// Coordinate is a waypoint in the robot's position history. The first
// element of State.Coordinates is the current position.
type Coordinate struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Label string  `json:"label,omitempty"`
}

// PestSite marks a location where pests were detected.
type PestSite struct {
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Severity Severity `json:"severity"`
}

type Sensors struct {
	Temperature  float64 `json:"temperature"`
	Humidity     float64 `json:"humidity"`
	SoilMoisture float64 `json:"soilMoisture"`
}

type WorkArea struct {
	TotalArea   float64 `json:"totalArea"`
	CoveredArea float64 `json:"coveredArea"`
}

// RemainingArea is the part of the work area not yet covered.
func (w WorkArea) RemainingArea() float64 {
	remaining := w.TotalArea - w.CoveredArea
	if remaining < 0 {
		return 0
	}
	return remaining
}

type Alert struct {
	Type    AlertType `json:"type"`
	Message string    `json:"message"`
}

// State is the local mirror of one robot. It is replaced wholesale on every
// successful sync; consumers must treat it as read-only.
type State struct {
	ID          string       `json:"id,omitempty"`
	Status      Status       `json:"status"`
	Battery     int          `json:"battery"`
	Pests       int          `json:"pests"`
	PestSites   []PestSite   `json:"pestCoordinates"`
	Dryness     int          `json:"dryness"`
	Coordinates []Coordinate `json:"coordinates"`
	Sensors     Sensors      `json:"sensors"`
	WorkArea    WorkArea     `json:"workArea"`
	Alerts      []Alert      `json:"alerts"`
	LastUpdated time.Time    `json:"lastUpdated,omitzero"`
	IsConnected bool         `json:"isConnected"`
}

// Empty returns the offline, all-zero state a controller starts from.
func Empty() State {
	return State{
		Status:      StatusOffline,
		PestSites:   []PestSite{},
		Coordinates: []Coordinate{},
		Alerts:      []Alert{},
	}
}

// Clone returns a deep copy so the caller can hand it out without sharing
// backing arrays.
func (s State) Clone() State {
	out := s
	out.PestSites = append([]PestSite{}, s.PestSites...)
	out.Coordinates = append([]Coordinate{}, s.Coordinates...)
	out.Alerts = append([]Alert{}, s.Alerts...)
	return out
}
