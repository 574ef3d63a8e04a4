package models

import (
	"encoding/json"
	"time"
)

// Kind identifies one of the per-sensor reading tables.
type Kind string

// Canonical reading kinds. Each maps to exactly one table.
const (
	KindWeight             Kind = "weight"
	KindTemperature        Kind = "temperature"
	KindPH                 Kind = "ph"
	KindOutsideTemperature Kind = "outsideTemp"
	KindHumidity           Kind = "humidity"
	KindPressure           Kind = "pressure"
)

// MaxDeviceIDLength is the width of the device_id column in every reading table.
const MaxDeviceIDLength = 100

// KindSpec describes how a kind is stored and validated.
type KindSpec struct {
	Table string
	// Field is both the value column and the JSON key of the reading.
	Field string
	Min   *float64
	Max   *float64
}

// InRange reports whether v satisfies the kind's declared bounds.
func (s KindSpec) InRange(v float64) bool {
	if s.Min != nil && v < *s.Min {
		return false
	}
	if s.Max != nil && v > *s.Max {
		return false
	}
	return true
}

func bound(v float64) *float64 { return &v }

var kindSpecs = map[Kind]KindSpec{
	KindWeight:             {Table: "weight_readings", Field: "weight_kg"},
	KindTemperature:        {Table: "temperature_readings", Field: "temperature_celsius"},
	KindPH:                 {Table: "ph_readings", Field: "ph_value", Min: bound(0), Max: bound(14)},
	KindOutsideTemperature: {Table: "outside_temperature_readings", Field: "temperature_celsius"},
	KindHumidity:           {Table: "humidity_readings", Field: "humidity_percent", Min: bound(0), Max: bound(100)},
	KindPressure:           {Table: "pressure_readings", Field: "pressure_hpa"},
}

// AllKinds lists every kind in a stable order.
var AllKinds = []Kind{
	KindWeight,
	KindTemperature,
	KindPH,
	KindOutsideTemperature,
	KindHumidity,
	KindPressure,
}

// ParseKind resolves a tag to a known kind.
func ParseKind(tag string) (Kind, bool) {
	k := Kind(tag)
	_, ok := kindSpecs[k]
	return k, ok
}

// Spec returns the storage and validation description of k.
func (k Kind) Spec() (KindSpec, bool) {
	s, ok := kindSpecs[k]
	return s, ok
}

// Reading is one stored sensor observation.
type Reading struct {
	ID        int64     `db:"id"`
	Kind      Kind      `db:"-"`
	DeviceID  string    `db:"device_id"`
	Value     float64   `db:"value"`
	Timestamp time.Time `db:"timestamp"`
}

// MarshalJSON renders the reading with its kind-specific value key, e.g.
// {"id":1,"device_id":"rpi-01","weight_kg":25.5,"timestamp":"..."}.
func (r Reading) MarshalJSON() ([]byte, error) {
	field := "value"
	if spec, ok := r.Kind.Spec(); ok {
		field = spec.Field
	}
	return json.Marshal(map[string]interface{}{
		"id":        r.ID,
		"device_id": r.DeviceID,
		field:       r.Value,
		"timestamp": r.Timestamp,
	})
}

// KindStats summarises one reading table.
type KindStats struct {
	Count         int64      `json:"count"`
	LastTimestamp *time.Time `json:"last_timestamp"`
}
