// Package fill validates manual refills of the bulk containers. A session captures
// baseline readings when the operator starts a refill and, when the refill ends,
// checks the added amounts against the container limits before reporting them.
package fill

import (
	"context"
	"errors"
	"log"
	"time"

	"petfeeder/internal/display"
	"petfeeder/internal/inventory"
)

// ErrSessionActive is returned by Start when a refill is already in progress.
var ErrSessionActive = errors.New("fill: session already active")

// Outcome is the result of ending a session.
type Outcome string

const (
	Accepted        Outcome = "accepted"
	FoodOverflow    Outcome = "food_overflow"
	WaterOverflow   Outcome = "water_overflow"
	NoActiveSession Outcome = "no_active_session"
)

// BulkReader reads the bulk containers. Reads are fail-soft.
type BulkReader interface {
	BulkFoodWeight(ctx context.Context) float64
	BulkWaterVolume(ctx context.Context) float64
}

// Report is one delta sent (or attempted) to the inventory service.
type Report struct {
	Kind     inventory.Kind
	Quantity float64
	Err      error
}

// Result describes how a session ended.
type Result struct {
	Outcome    Outcome
	AddedFood  float64
	AddedWater float64
	Reported   []Report
	Failed     []Report
	StartedAt  time.Time
	EndedAt    time.Time
}

// Session is the single refill session of a feeder. It is owned by the control
// loop and is not safe for concurrent use.
type Session struct {
	sensors  BulkReader
	reporter inventory.Reporter
	display  display.Display
	now      func() time.Time

	active       bool
	initialFood  float64
	initialWater float64
	startedAt    time.Time
}

// NewSession creates an idle session.
func NewSession(sensors BulkReader, reporter inventory.Reporter, d display.Display) *Session {
	return &Session{sensors: sensors, reporter: reporter, display: d, now: time.Now}
}

// Active reports whether a refill is in progress.
func (s *Session) Active() bool {
	return s.active
}

// Start captures the baseline readings. It fails with ErrSessionActive if a
// refill is already in progress, leaving that refill's baseline intact.
func (s *Session) Start(ctx context.Context) error {
	if s.active {
		return ErrSessionActive
	}

	s.initialFood = s.sensors.BulkFoodWeight(ctx)
	s.initialWater = s.sensors.BulkWaterVolume(ctx)
	s.startedAt = s.now().UTC()
	s.active = true

	log.Printf("fill: session started, baseline food=%.1f water=%.1f", s.initialFood, s.initialWater)
	s.show(display.FillInProgress)
	return nil
}

// End closes the session. The added amounts are validated against state and, if
// accepted, each strictly positive delta is reported and the server's quantity is
// adopted into state. A rejected session leaves state untouched. The session is
// cleared whatever the outcome; without an active session End does nothing.
func (s *Session) End(ctx context.Context, state *inventory.DeviceState) Result {
	if !s.active {
		return Result{Outcome: NoActiveSession}
	}
	defer s.reset()

	res := Result{
		AddedFood:  s.sensors.BulkFoodWeight(ctx) - s.initialFood,
		AddedWater: s.sensors.BulkWaterVolume(ctx) - s.initialWater,
		StartedAt:  s.startedAt,
		EndedAt:    s.now().UTC(),
	}
	res.Outcome = Validate(res.AddedFood, res.AddedWater, *state)

	log.Printf("fill: session ended, added food=%.1f water=%.1f outcome=%s", res.AddedFood, res.AddedWater, res.Outcome)

	switch res.Outcome {
	case FoodOverflow:
		s.show(display.FoodOverflow)
		return res
	case WaterOverflow:
		s.show(display.WaterOverflow)
		return res
	}

	for _, d := range []Report{
		{Kind: inventory.KindFood, Quantity: res.AddedFood},
		{Kind: inventory.KindWater, Quantity: res.AddedWater},
	} {
		if d.Quantity <= 0 {
			continue
		}
		resp, err := s.reporter.ReportDelta(ctx, state.DeviceID, d.Kind, d.Quantity)
		if err != nil {
			log.Printf("fill: report %s %.1f failed: %v", d.Kind, d.Quantity, err)
			d.Err = err
			res.Failed = append(res.Failed, d)
			continue
		}
		state.Adopt(d.Kind, resp)
		res.Reported = append(res.Reported, d)
	}

	s.show(display.FillAccepted)
	return res
}

// Validate checks added amounts against the known quantities and limits. Negative
// deltas (material removed) count as zero. Food is checked before water.
func Validate(addedFood, addedWater float64, st inventory.DeviceState) Outcome {
	if addedFood < 0 {
		addedFood = 0
	}
	if addedWater < 0 {
		addedWater = 0
	}
	if addedFood+st.FoodQuantity > st.FoodLimit {
		return FoodOverflow
	}
	if addedWater+st.WaterQuantity > st.WaterLimit {
		return WaterOverflow
	}
	return Accepted
}

func (s *Session) reset() {
	s.active = false
	s.initialFood = 0
	s.initialWater = 0
	s.startedAt = time.Time{}
}

func (s *Session) show(msg display.Message) {
	if s.display != nil {
		s.display.Show(msg)
	}
}
