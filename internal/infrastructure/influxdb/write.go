package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/roomgate/internal/controller"
)

// Measurement names.
const (
	MeasurementResolution = "controller_resolution"
	MeasurementDispatch   = "controller_dispatch"
)

// ResolutionPoint converts a resolution event into a point tagged by
// device and outcome. A successful resolution carries the address as a
// field so address changes can be charted over time.
func ResolutionPoint(site string, ev controller.ResolutionEvent) *write.Point {
	point := write.NewPointWithMeasurement(MeasurementResolution).
		AddTag("device_id", ev.DeviceID).
		AddTag("outcome", string(ev.Outcome)).
		AddField("duration_ms", millis(ev.Duration)).
		SetTime(ev.Time)
	if site != "" {
		point.AddTag("site", site)
	}
	if ev.Address != "" {
		point.AddField("address", ev.Address)
	}
	if ev.Err != nil {
		point.AddField("error", ev.Err.Error())
	}
	return point
}

// DispatchPoint converts a dispatch event into a point tagged by device,
// command kind and outcome.
func DispatchPoint(site string, ev controller.DispatchEvent) *write.Point {
	point := write.NewPointWithMeasurement(MeasurementDispatch).
		AddTag("device_id", ev.DeviceID).
		AddTag("command", ev.Command).
		AddTag("outcome", string(ev.Outcome)).
		AddField("duration_ms", millis(ev.Duration)).
		SetTime(ev.Time)
	if site != "" {
		point.AddTag("site", site)
	}
	if ev.Err != nil {
		point.AddField("error", ev.Err.Error())
	}
	return point
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
