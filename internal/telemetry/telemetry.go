// Package telemetry ships readings and control events to optional external
// sinks. Sink failures are logged and never reach the control loop.
package telemetry

import (
	"context"
	"log"

	"petfeeder/internal/sensor"
)

// Sink receives sensor readings and named control events for one device.
type Sink interface {
	WriteReadings(ctx context.Context, deviceID string, r sensor.Readings) error
	WriteEvent(ctx context.Context, deviceID, name string, payload any) error
}

// Fanout forwards to every configured sink. The zero value discards everything.
type Fanout []Sink

// WriteReadings implements Sink.
func (f Fanout) WriteReadings(ctx context.Context, deviceID string, r sensor.Readings) error {
	for _, s := range f {
		if err := s.WriteReadings(ctx, deviceID, r); err != nil {
			log.Printf("telemetry: readings for %s: %v", deviceID, err)
		}
	}
	return nil
}

// WriteEvent implements Sink.
func (f Fanout) WriteEvent(ctx context.Context, deviceID, name string, payload any) error {
	for _, s := range f {
		if err := s.WriteEvent(ctx, deviceID, name, payload); err != nil {
			log.Printf("telemetry: event %s for %s: %v", name, deviceID, err)
		}
	}
	return nil
}
