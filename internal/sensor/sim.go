package sensor

import (
	"context"
	"sync"
	"time"
)

// Simulator is an in-process stand-in for the feeder hardware. While its gate is
// open, food moves from the bulk container into the tray at FlowRate grams per
// second of wall-clock time.
type Simulator struct {
	mu sync.Mutex

	bulkFood   float64
	tray       float64
	waterLevel float64 // cm of water above the tank floor
	tankHeight float64

	open     bool
	openedAt time.Time
	flowRate float64
	now      func() time.Time
}

// NewSimulator creates a simulator with the given initial contents.
func NewSimulator(bulkFood, tray, waterLevelCm, tankHeightCm, flowRate float64) *Simulator {
	return &Simulator{
		bulkFood:   bulkFood,
		tray:       tray,
		waterLevel: waterLevelCm,
		tankHeight: tankHeightCm,
		flowRate:   flowRate,
		now:        time.Now,
	}
}

// settle applies the flow accumulated since the last call. Callers hold mu.
func (s *Simulator) settle() {
	if !s.open {
		return
	}
	now := s.now()
	moved := now.Sub(s.openedAt).Seconds() * s.flowRate
	if moved > s.bulkFood {
		moved = s.bulkFood
	}
	s.bulkFood -= moved
	s.tray += moved
	s.openedAt = now
}

// SetGate opens or closes the simulated dispensing gate.
func (s *Simulator) SetGate(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle()
	if open && !s.open {
		s.openedAt = s.now()
	}
	s.open = open
}

// AddFood simulates an operator pouring food into the bulk container.
func (s *Simulator) AddFood(grams float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bulkFood += grams
}

// AddWater simulates an operator raising the water level.
func (s *Simulator) AddWater(levelCm float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waterLevel += levelCm
	if s.waterLevel > s.tankHeight {
		s.waterLevel = s.tankHeight
	}
}

// BulkFood returns a WeightSensor for the bulk container.
func (s *Simulator) BulkFood() WeightSensor {
	return weightFunc(func() float64 {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.settle()
		return s.bulkFood
	})
}

// Tray returns a WeightSensor for the tray.
func (s *Simulator) Tray() WeightSensor {
	return weightFunc(func() float64 {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.settle()
		return s.tray
	})
}

// Distance returns a DistanceSensor mounted at the top of the water tank.
func (s *Simulator) Distance() DistanceSensor {
	return distanceFunc(func() float64 {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.tankHeight - s.waterLevel
	})
}

type weightFunc func() float64

func (f weightFunc) ReadWeight(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return f(), nil
}

type distanceFunc func() float64

func (f distanceFunc) ReadDistance(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return f(), nil
}
