// Package sensor exposes the feeder's weight and water level measurements behind
// small capability interfaces. Raw drivers (load-cell amplifier, ultrasonic ranger)
// live outside this module and only need to satisfy WeightSensor or DistanceSensor.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrTimeout is returned when a bounded read does not complete in time.
var ErrTimeout = errors.New("sensor read timed out")

// WeightSensor reads an absolute weight in grams.
type WeightSensor interface {
	ReadWeight(ctx context.Context) (float64, error)
}

// DistanceSensor reads the distance in centimetres between the sensor head and
// the surface below it.
type DistanceSensor interface {
	ReadDistance(ctx context.Context) (float64, error)
}

// VolumeSensor reads an absolute volume in millilitres.
type VolumeSensor interface {
	ReadWaterVolume(ctx context.Context) (float64, error)
}

// WaterGauge derives the water volume of an upright prismatic tank from a
// distance sensor mounted at its top.
type WaterGauge struct {
	distance DistanceSensor
	heightCm float64
	areaCm2  float64
	timeout  time.Duration
}

// NewWaterGauge creates a gauge for a tank of the given inner height and base area.
// A zero timeout leaves the read bounded only by the caller's context.
func NewWaterGauge(d DistanceSensor, heightCm, areaCm2 float64, timeout time.Duration) *WaterGauge {
	return &WaterGauge{distance: d, heightCm: heightCm, areaCm2: areaCm2, timeout: timeout}
}

// ReadWaterVolume converts the measured distance into millilitres (1 cm3 = 1 ml).
func (g *WaterGauge) ReadWaterVolume(ctx context.Context) (float64, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	d, err := g.distance.ReadDistance(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, fmt.Errorf("water gauge: %w", ErrTimeout)
		}
		return 0, fmt.Errorf("water gauge: %w", err)
	}

	level := g.heightCm - d
	if level < 0 {
		level = 0
	}
	if level > g.heightCm {
		level = g.heightCm
	}
	return level * g.areaCm2, nil
}

// Readings is a snapshot of every measurement point.
type Readings struct {
	BulkFood  float64   `json:"bulk_food"`
	BulkWater float64   `json:"bulk_water"`
	Tray      float64   `json:"tray"`
	At        time.Time `json:"at"`
}

// Bank groups the feeder's measurement points and makes every read fail-soft:
// a failed read is logged and the last good value is returned instead.
// A Bank is owned by the control loop and is not safe for concurrent use.
type Bank struct {
	bulkFood  WeightSensor
	tray      WeightSensor
	bulkWater VolumeSensor

	lastBulkFood  float64
	lastTray      float64
	lastBulkWater float64
}

// NewBank creates a Bank over the bulk food scale, the tray scale and the bulk water gauge.
func NewBank(bulkFood, tray WeightSensor, bulkWater VolumeSensor) *Bank {
	return &Bank{bulkFood: bulkFood, tray: tray, bulkWater: bulkWater}
}

// BulkFoodWeight returns the bulk food container weight.
func (b *Bank) BulkFoodWeight(ctx context.Context) float64 {
	v, err := b.bulkFood.ReadWeight(ctx)
	if err != nil {
		log.Printf("sensor: bulk food read failed, using last value %.1f: %v", b.lastBulkFood, err)
		return b.lastBulkFood
	}
	b.lastBulkFood = v
	return v
}

// TrayWeight returns the tray weight.
func (b *Bank) TrayWeight(ctx context.Context) float64 {
	v, err := b.tray.ReadWeight(ctx)
	if err != nil {
		log.Printf("sensor: tray read failed, using last value %.1f: %v", b.lastTray, err)
		return b.lastTray
	}
	b.lastTray = v
	return v
}

// BulkWaterVolume returns the bulk water container volume.
func (b *Bank) BulkWaterVolume(ctx context.Context) float64 {
	v, err := b.bulkWater.ReadWaterVolume(ctx)
	if err != nil {
		log.Printf("sensor: bulk water read failed, using last value %.1f: %v", b.lastBulkWater, err)
		return b.lastBulkWater
	}
	b.lastBulkWater = v
	return v
}

// ReadAll samples every measurement point.
func (b *Bank) ReadAll(ctx context.Context) Readings {
	return Readings{
		BulkFood:  b.BulkFoodWeight(ctx),
		BulkWater: b.BulkWaterVolume(ctx),
		Tray:      b.TrayWeight(ctx),
		At:        time.Now().UTC(),
	}
}
