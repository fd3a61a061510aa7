package robot

import (
	"math"
	"time"
)

// Payload is the status document as it travels on the wire. Every field is
// optional; Normalize fills in defaults.
type Payload struct {
	ID              *string          `json:"id,omitempty"`
	Status          *string          `json:"status,omitempty"`
	Battery         *float64         `json:"battery,omitempty"`
	Pests           *float64         `json:"pests,omitempty"`
	PestCoordinates []PestSite       `json:"pestCoordinates,omitempty"`
	Dryness         *float64         `json:"dryness,omitempty"`
	Coordinates     []Coordinate     `json:"coordinates,omitempty"`
	Sensors         *SensorsPayload  `json:"sensors,omitempty"`
	WorkArea        *WorkAreaPayload `json:"workArea,omitempty"`
	Alerts          []Alert          `json:"alerts,omitempty"`
	LastUpdated     *time.Time       `json:"lastUpdated,omitempty"`
}

type SensorsPayload struct {
	Temperature  *float64 `json:"temperature,omitempty"`
	Humidity     *float64 `json:"humidity,omitempty"`
	SoilMoisture *float64 `json:"soilMoisture,omitempty"`
}

type WorkAreaPayload struct {
	TotalArea   *float64 `json:"totalArea,omitempty"`
	CoveredArea *float64 `json:"coveredArea,omitempty"`
}

// Clone deep-copies the payload so an in-memory source can hand it out and
// keep mutating its own copy.
func (p Payload) Clone() Payload {
	out := Payload{
		ID:          cloneValue(p.ID),
		Status:      cloneValue(p.Status),
		Battery:     cloneValue(p.Battery),
		Pests:       cloneValue(p.Pests),
		Dryness:     cloneValue(p.Dryness),
		LastUpdated: cloneValue(p.LastUpdated),
	}
	if p.PestCoordinates != nil {
		out.PestCoordinates = append([]PestSite{}, p.PestCoordinates...)
	}
	if p.Coordinates != nil {
		out.Coordinates = append([]Coordinate{}, p.Coordinates...)
	}
	if p.Alerts != nil {
		out.Alerts = append([]Alert{}, p.Alerts...)
	}
	if p.Sensors != nil {
		out.Sensors = &SensorsPayload{
			Temperature:  cloneValue(p.Sensors.Temperature),
			Humidity:     cloneValue(p.Sensors.Humidity),
			SoilMoisture: cloneValue(p.Sensors.SoilMoisture),
		}
	}
	if p.WorkArea != nil {
		out.WorkArea = &WorkAreaPayload{
			TotalArea:   cloneValue(p.WorkArea.TotalArea),
			CoveredArea: cloneValue(p.WorkArea.CoveredArea),
		}
	}
	return out
}

// Normalize turns a wire payload into a State. Absent fields take their
// defaults and out-of-range values are clamped: percentages to [0,100],
// counts and areas to >= 0, coveredArea to [0,totalArea]. fetchedAt stands
// in for lastUpdated when the payload does not carry one.
func Normalize(p Payload, fetchedAt time.Time) State {
	state := Empty()
	state.IsConnected = true

	if p.ID != nil {
		state.ID = *p.ID
	}
	if p.Status != nil && *p.Status != "" {
		state.Status = Status(*p.Status)
	}
	state.Battery = clampInt(valueOr(p.Battery, 0), 0, 100)
	state.Pests = clampInt(valueOr(p.Pests, 0), 0, math.MaxInt32)
	state.Dryness = clampInt(valueOr(p.Dryness, 0), 0, 100)

	if p.PestCoordinates != nil {
		state.PestSites = append(state.PestSites, p.PestCoordinates...)
	}
	if p.Coordinates != nil {
		state.Coordinates = append(state.Coordinates, p.Coordinates...)
	}
	if p.Alerts != nil {
		state.Alerts = append(state.Alerts, p.Alerts...)
	}

	if p.Sensors != nil {
		state.Sensors = Sensors{
			Temperature:  valueOr(p.Sensors.Temperature, 0),
			Humidity:     clampFloat(valueOr(p.Sensors.Humidity, 0), 0, 100),
			SoilMoisture: clampFloat(valueOr(p.Sensors.SoilMoisture, 0), 0, 100),
		}
	}
	if p.WorkArea != nil {
		total := math.Max(valueOr(p.WorkArea.TotalArea, 0), 0)
		state.WorkArea = WorkArea{
			TotalArea:   total,
			CoveredArea: clampFloat(valueOr(p.WorkArea.CoveredArea, 0), 0, total),
		}
	}

	if p.LastUpdated != nil && !p.LastUpdated.IsZero() {
		state.LastUpdated = *p.LastUpdated
	} else {
		state.LastUpdated = fetchedAt
	}
	return state
}

func valueOr[T any](v *T, fallback T) T {
	if v == nil {
		return fallback
	}
	return *v
}

func cloneValue[T any](v *T) *T {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func clampInt(v float64, lo, hi int) int {
	if math.IsNaN(v) {
		return lo
	}
	rounded := math.Round(v)
	if rounded < float64(lo) {
		return lo
	}
	if rounded > float64(hi) {
		return hi
	}
	return int(rounded)
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
