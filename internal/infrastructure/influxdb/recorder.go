package influxdb

import (
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/roomgate/internal/controller"
)

// PointWriter queues points without blocking. *Client implements it.
type PointWriter interface {
	Write(point *write.Point)
}

// Recorder is a controller.Observer that writes every resolution and
// dispatch to InfluxDB.
type Recorder struct {
	writer PointWriter
	site   string
}

// NewRecorder returns a Recorder tagging points with site (may be empty).
func NewRecorder(writer PointWriter, site string) *Recorder {
	return &Recorder{writer: writer, site: site}
}

// ObserveResolution implements controller.Observer.
func (r *Recorder) ObserveResolution(ev controller.ResolutionEvent) {
	r.writer.Write(ResolutionPoint(r.site, ev))
}

// ObserveDispatch implements controller.Observer.
func (r *Recorder) ObserveDispatch(ev controller.DispatchEvent) {
	r.writer.Write(DispatchPoint(r.site, ev))
}

var _ controller.Observer = (*Recorder)(nil)
