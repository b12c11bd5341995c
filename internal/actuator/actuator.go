// Package actuator drives the dispensing gate. The gate is an on/off device: it is
// either open (food flows into the tray) or closed.
package actuator

import (
	"context"
	"fmt"
	"log"
	"time"

	"petfeeder/internal/sensor"
)

// Actuator opens and closes a dispensing channel.
type Actuator interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
}

// PWM is the boundary to a servo driver: it moves the horn to an angle in degrees.
type PWM interface {
	SetAngle(degrees int) error
}

// Servo is a gate actuated by a hobby servo with two fixed positions.
type Servo struct {
	pwm         PWM
	openAngle   int
	closedAngle int
	settle      time.Duration
}

// NewServo creates a servo gate. settle is how long the horn needs to reach a
// new position; zero skips the wait.
func NewServo(pwm PWM, openAngle, closedAngle int, settle time.Duration) *Servo {
	return &Servo{pwm: pwm, openAngle: openAngle, closedAngle: closedAngle, settle: settle}
}

// Open moves the horn to the open position.
func (s *Servo) Open(ctx context.Context) error {
	return s.move(ctx, s.openAngle)
}

// Close moves the horn to the closed position.
func (s *Servo) Close(ctx context.Context) error {
	return s.move(ctx, s.closedAngle)
}

func (s *Servo) move(ctx context.Context, angle int) error {
	if err := s.pwm.SetAngle(angle); err != nil {
		return fmt.Errorf("servo: set angle %d: %w", angle, err)
	}
	if s.settle <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.settle):
		return nil
	}
}

// SimulatedGate drives the gate of a sensor.Simulator.
type SimulatedGate struct {
	sim *sensor.Simulator
}

// NewSimulatedGate wraps the simulator's gate.
func NewSimulatedGate(sim *sensor.Simulator) *SimulatedGate {
	return &SimulatedGate{sim: sim}
}

// Open opens the simulated gate.
func (g *SimulatedGate) Open(ctx context.Context) error {
	log.Println("actuator: simulated gate open")
	g.sim.SetGate(true)
	return nil
}

// Close closes the simulated gate.
func (g *SimulatedGate) Close(ctx context.Context) error {
	log.Println("actuator: simulated gate closed")
	g.sim.SetGate(false)
	return nil
}
