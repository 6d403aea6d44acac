// ABOUTME: Named scalar fields of a Record and their accepted aliases
// ABOUTME: Used by parameter optimization to overwrite a subset of metrics

package state

import (
	"slices"
	"strings"
)

// Field names a scalar metric of a Record.
type Field string

const (
	FieldTemperature Field = "temperature"
	FieldHumidity    Field = "humidity"
	FieldPressure    Field = "pressure"
	FieldAirflow     Field = "airflow"
)

// fieldAliases maps accepted parameter names to fields. The Polish names
// are what existing field tooling sends.
var fieldAliases = map[string]Field{
	"temperature":        FieldTemperature,
	"temperatura":        FieldTemperature,
	"humidity":           FieldHumidity,
	"wilgotność":         FieldHumidity,
	"wilgotnosc":         FieldHumidity,
	"pressure":           FieldPressure,
	"ciśnienie":          FieldPressure,
	"cisnienie":          FieldPressure,
	"airflow":            FieldAirflow,
	"air_flow":           FieldAirflow,
	"przepływ":           FieldAirflow,
	"przeplyw":           FieldAirflow,
	"przepływ_powietrza": FieldAirflow,
}

// ResolveField maps a parameter name to a Field.
func ResolveField(name string) (Field, bool) {
	f, ok := fieldAliases[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

// Scalar returns the value of a field.
func (r *Record) Scalar(f Field) float64 {
	switch f {
	case FieldTemperature:
		return r.Temperature
	case FieldHumidity:
		return r.Humidity
	case FieldPressure:
		return r.Pressure
	case FieldAirflow:
		return r.Airflow
	}
	return 0
}

func (r *Record) setScalar(f Field, v float64) {
	switch f {
	case FieldTemperature:
		r.Temperature = v
	case FieldHumidity:
		r.Humidity = v
	case FieldPressure:
		r.Pressure = v
	case FieldAirflow:
		r.Airflow = v
	}
}

// ApplyScalars overwrites the fields named in params and leaves every other
// field unchanged. Names are applied in sorted order so that two aliases of
// the same field resolve deterministically. Unknown names are returned.
func (r *Record) ApplyScalars(params map[string]float64) (applied []Field, unknown []string) {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		f, ok := ResolveField(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		r.setScalar(f, params[name])
		if !slices.Contains(applied, f) {
			applied = append(applied, f)
		}
	}
	return applied, unknown
}
