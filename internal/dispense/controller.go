// Package dispense drives the food gate until the tray has gained a target weight.
// The gate is threshold-triggered: it opens when a task starts and closes once the
// measured delta reaches the target.
package dispense

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"petfeeder/internal/actuator"
	"petfeeder/internal/display"
)

// ErrDispenseStalled is reported when a task does not reach its target before the
// stall timeout.
var ErrDispenseStalled = errors.New("dispense: stalled before reaching target")

// TrayReader reads the tray weight. Reads are fail-soft.
type TrayReader interface {
	TrayWeight(ctx context.Context) float64
}

// Task is an in-progress dispense run.
type Task struct {
	TargetAmount   float64   `json:"target_amount"`
	BaselineWeight float64   `json:"baseline_weight"`
	StartedAt      time.Time `json:"started_at"`
}

// TickResult reports what a Tick observed. Finished is set when the task ended on
// this tick, either by reaching its target or, with Err set to
// ErrDispenseStalled, by timing out.
type TickResult struct {
	Task      Task
	Dispensed float64
	Finished  bool
	Err       error
}

// Controller runs at most one dispense task on its actuator channel. It is owned
// by the control loop and is not safe for concurrent use.
type Controller struct {
	tray         TrayReader
	gate         actuator.Actuator
	display      display.Display
	stallTimeout time.Duration
	now          func() time.Time

	task *Task
}

// NewController creates a controller. A zero stallTimeout disables the stall check,
// so a task that never reaches its target stays active.
func NewController(tray TrayReader, gate actuator.Actuator, d display.Display, stallTimeout time.Duration) *Controller {
	return &Controller{tray: tray, gate: gate, display: d, stallTimeout: stallTimeout, now: time.Now}
}

// Active reports whether a task is running.
func (c *Controller) Active() bool {
	return c.task != nil
}

// Task returns the running task, if any.
func (c *Controller) Task() (Task, bool) {
	if c.task == nil {
		return Task{}, false
	}
	return *c.task, true
}

// Evaluate compares the last known server quantity with the newly fetched one. A
// decrease authorises a dispense of the difference; a task is started unless one
// is already running. It reports whether a task was started.
func (c *Controller) Evaluate(ctx context.Context, previousTarget, currentServerQuantity float64) (bool, error) {
	target := previousTarget - currentServerQuantity
	if target <= 0 || c.task != nil {
		return false, nil
	}

	baseline := c.tray.TrayWeight(ctx)
	if err := c.gate.Open(ctx); err != nil {
		return false, fmt.Errorf("dispense: open gate: %w", err)
	}

	c.task = &Task{TargetAmount: target, BaselineWeight: baseline, StartedAt: c.now().UTC()}
	log.Printf("dispense: started target=%.1f baseline=%.1f", target, baseline)
	c.show(display.Dispensing)
	return true, nil
}

// Tick samples the tray and closes the gate once the target is reached. The gate
// is never closed early and never reopened by Tick.
func (c *Controller) Tick(ctx context.Context) TickResult {
	if c.task == nil {
		return TickResult{}
	}

	res := TickResult{Task: *c.task}
	res.Dispensed = c.tray.TrayWeight(ctx) - c.task.BaselineWeight

	switch {
	case res.Dispensed >= c.task.TargetAmount:
		if err := c.gate.Close(ctx); err != nil {
			log.Printf("dispense: close gate failed, will retry: %v", err)
			res.Err = fmt.Errorf("dispense: close gate: %w", err)
			return res
		}
		log.Printf("dispense: completed dispensed=%.1f target=%.1f", res.Dispensed, c.task.TargetAmount)
		c.task = nil
		res.Finished = true
		c.show(display.DispenseDone)

	case c.stallTimeout > 0 && c.now().Sub(c.task.StartedAt) >= c.stallTimeout:
		if err := c.gate.Close(ctx); err != nil {
			log.Printf("dispense: close gate after stall failed, will retry: %v", err)
			res.Err = fmt.Errorf("dispense: close gate: %w", err)
			return res
		}
		log.Printf("dispense: stalled dispensed=%.1f target=%.1f after %s", res.Dispensed, c.task.TargetAmount, c.stallTimeout)
		c.task = nil
		res.Finished = true
		res.Err = ErrDispenseStalled
		c.show(display.DispenseStall)
	}
	return res
}

func (c *Controller) show(msg display.Message) {
	if c.display != nil {
		c.display.Show(msg)
	}
}
