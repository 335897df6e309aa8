// Package influxdb records controller telemetry in InfluxDB v2.
//
// Recorder is a controller.Observer; each resolution and dispatch becomes one
// point in the controller_resolution or controller_dispatch measurement,
// tagged by device_id and outcome (and command for dispatches). Writes go
// through the client library's non-blocking write API, so observing never
// delays a dispatch.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	observers = append(observers, influxdb.NewRecorder(client, cfg.Site.ID))
package influxdb
