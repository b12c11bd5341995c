package telemetry

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"petfeeder/config"
	"petfeeder/internal/model"
	"petfeeder/internal/sensor"
)

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxWriter stores readings and control events as InfluxDB points.
type InfluxWriter struct {
	writeAPI pointWriter
	close    func()
}

// NewInfluxWriter opens a blocking write API for the configured bucket.
func NewInfluxWriter(cfg *config.InfluxConfig) (*InfluxWriter, error) {
	if cfg.URL == "" || cfg.Token == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx config incomplete")
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxWriter{
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		close:    client.Close,
	}, nil
}

// Close releases the underlying client.
func (w *InfluxWriter) Close() {
	if w.close != nil {
		w.close()
	}
}

// WriteReadings implements Sink.
func (w *InfluxWriter) WriteReadings(ctx context.Context, deviceID string, r sensor.Readings) error {
	t := r.At
	if t.IsZero() {
		t = time.Now()
	}
	point := influxdb2.NewPoint("feeder_readings",
		map[string]string{"device_id": deviceID},
		map[string]interface{}{
			"bulk_food":  r.BulkFood,
			"bulk_water": r.BulkWater,
			"tray":       r.Tray,
		}, t)
	return w.writeAPI.WritePoint(ctx, point)
}

// WriteEvent implements Sink. Only fill and dispense results become points;
// other events are ignored.
func (w *InfluxWriter) WriteEvent(ctx context.Context, deviceID, name string, payload any) error {
	tags := map[string]string{"device_id": deviceID}

	var point *write.Point
	switch ev := payload.(type) {
	case *model.FillEvent:
		tags["outcome"] = ev.Outcome
		point = influxdb2.NewPoint("feeder_fills", tags, map[string]interface{}{
			"added_food":  ev.AddedFood,
			"added_water": ev.AddedWater,
			"queued":      ev.Queued,
		}, ev.EndedAt)
	case *model.DispenseEvent:
		tags["status"] = ev.Status
		point = influxdb2.NewPoint("feeder_dispenses", tags, map[string]interface{}{
			"target":    ev.TargetAmount,
			"dispensed": ev.Dispensed,
		}, ev.FinishedAt)
	default:
		return nil
	}
	return w.writeAPI.WritePoint(ctx, point)
}
