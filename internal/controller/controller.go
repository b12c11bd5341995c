// Package controller runs the feeder's control loop. One goroutine owns the
// cached device state, the refill session, the dispense task and the report
// outbox; everything else talks to it through Submit or reads a Snapshot.
package controller

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"petfeeder/config"
	"petfeeder/internal/actuator"
	"petfeeder/internal/dispense"
	"petfeeder/internal/display"
	"petfeeder/internal/fill"
	"petfeeder/internal/inventory"
	"petfeeder/internal/metrics"
	"petfeeder/internal/model"
	"petfeeder/internal/notification"
	"petfeeder/internal/sensor"
	"petfeeder/internal/store"
	"petfeeder/internal/telemetry"
	"petfeeder/internal/trigger"
)

// ErrStopped is returned by Submit once the loop has exited.
var ErrStopped = errors.New("controller: loop stopped")

// Sensors is the fail-soft view of the measurement points.
type Sensors interface {
	fill.BulkReader
	dispense.TrayReader
	ReadAll(ctx context.Context) sensor.Readings
}

// Alerter queues owner alerts.
type Alerter interface {
	Dispatch(alert notification.Alert)
}

// Deps are the collaborators of a Service. Store, Alerts, Telemetry and Metrics
// are optional.
type Deps struct {
	Inventory inventory.Inventory
	Sensors   Sensors
	Gate      actuator.Actuator
	Display   display.Display
	Store     store.Store
	Alerts    Alerter
	Telemetry telemetry.Sink
	Metrics   *metrics.Metrics
}

// Reply is the loop's answer to a submitted action.
type Reply struct {
	Action trigger.Action `json:"action"`
	Err    error          `json:"-"`
	Fill   *fill.Result   `json:"fill,omitempty"`
}

type request struct {
	action trigger.Action
	reply  chan Reply
}

// Snapshot is a read-only copy of the loop's state.
type Snapshot struct {
	Serial         string                    `json:"serial"`
	State          inventory.DeviceState     `json:"state"`
	Synced         bool                      `json:"synced"`
	Readings       sensor.Readings           `json:"readings"`
	FillActive     bool                      `json:"fill_active"`
	Dispense       *dispense.Task            `json:"dispense,omitempty"`
	PendingReports []inventory.PendingReport `json:"pending_reports"`
	LastPoll       time.Time                 `json:"last_poll"`
	LastPollError  string                    `json:"last_poll_error,omitempty"`
}

// Service is the control loop.
type Service struct {
	serial       string
	pollInterval time.Duration
	tickInterval time.Duration

	inv       inventory.Inventory
	sensors   Sensors
	session   *fill.Session
	dispenser *dispense.Controller
	outbox    *inventory.Outbox
	store     store.Store
	alerts    Alerter
	telemetry telemetry.Sink
	metrics   *metrics.Metrics
	recorder  *recorder
	now       func() time.Time

	// Owned by the loop goroutine.
	state       inventory.DeviceState
	readings    sensor.Readings
	lastPoll    time.Time
	lastPollErr string

	commands chan request
	done     chan struct{}

	mu   sync.RWMutex
	snap Snapshot
}

// NewService wires a control loop for the device with the given serial.
func NewService(cfg *config.Config, serial string, deps Deps) *Service {
	s := &Service{
		serial:       serial,
		pollInterval: cfg.Remote.PollInterval,
		tickInterval: cfg.Dispense.TickInterval,
		inv:          deps.Inventory,
		sensors:      deps.Sensors,
		session:      fill.NewSession(deps.Sensors, deps.Inventory, deps.Display),
		dispenser:    dispense.NewController(deps.Sensors, deps.Gate, deps.Display, cfg.Dispense.StallTimeout),
		outbox:       inventory.NewOutbox(cfg.Remote.OutboxSize),
		store:        deps.Store,
		alerts:       deps.Alerts,
		telemetry:    deps.Telemetry,
		metrics:      deps.Metrics,
		recorder:     newRecorder(recorderQueueSize),
		now:          time.Now,
		commands:     make(chan request),
		done:         make(chan struct{}),
	}
	if s.alerts == nil {
		s.alerts = discardAlerts{}
	}
	if s.telemetry == nil {
		s.telemetry = telemetry.Fanout{}
	}
	if s.metrics == nil {
		s.metrics = metrics.New(prometheus.NewRegistry())
	}
	s.publish()
	return s
}

// Run polls the inventory service, ticks the dispenser and serves submitted
// actions until ctx is done.
func (s *Service) Run(ctx context.Context) {
	log.Println("Starting controller loop...")
	defer close(s.done)

	go s.recorder.run(ctx)
	s.PollOnce(ctx)

	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Controller loop shutting down.")
			return
		case <-timer.C:
			s.PollOnce(ctx)
			timer.Reset(s.pollInterval)
		case <-ticker.C:
			s.TickOnce(ctx)
		case req := <-s.commands:
			req.reply <- s.handle(ctx, req.action)
		}
	}
}

// Submit hands an operator action to the loop and waits for its reply.
func (s *Service) Submit(ctx context.Context, action trigger.Action) (Reply, error) {
	req := request{action: action, reply: make(chan Reply, 1)}
	select {
	case s.commands <- req:
	case <-s.done:
		return Reply{}, ErrStopped
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

// Trigger submits an action from a button and logs the outcome. It matches the
// emit callback of trigger.Watcher.
func (s *Service) Trigger(ctx context.Context) func(trigger.Action) {
	return func(a trigger.Action) {
		r, err := s.Submit(ctx, a)
		switch {
		case err != nil:
			log.Printf("controller: %s not handled: %v", a, err)
		case r.Err != nil:
			log.Printf("controller: %s: %v", a, r.Err)
		}
	}
}

// Snapshot returns the last published state.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// PollOnce delivers queued reports, refreshes the cached device state, starts a
// dispense when the server quantity dropped and samples the sensors. A failed
// fetch keeps the cached state. Queued reports are not flushed while a dispense
// is running.
func (s *Service) PollOnce(ctx context.Context) {
	if !s.dispenser.Active() {
		s.flushOutbox(ctx)
	}

	st, err := s.inv.FetchState(ctx, s.serial)
	if err != nil {
		log.Printf("controller: fetch state failed, keeping cached state: %v", err)
		s.lastPollErr = err.Error()
		s.metrics.FetchFailures.Inc()
	} else {
		previous := s.state.FoodQuantity
		s.state = st
		s.lastPollErr = ""
		// A drop seen while a task runs is not queued; the next poll compares
		// against this quantity.
		if _, err := s.dispenser.Evaluate(ctx, previous, st.FoodQuantity); err != nil {
			log.Printf("controller: %v", err)
		}
		s.metrics.ObserveState(st)
		id := s.deviceID()
		s.recorder.submit("state", func(ctx context.Context) {
			s.telemetry.WriteEvent(ctx, id, "state", st)
		})
	}

	s.readings = s.sensors.ReadAll(ctx)
	s.metrics.ObserveReadings(s.readings)
	id, readings := s.deviceID(), s.readings
	s.recorder.submit("readings", func(ctx context.Context) {
		s.telemetry.WriteReadings(ctx, id, readings)
	})

	s.lastPoll = s.now().UTC()
	s.publish()
}

// TickOnce advances the running dispense task, if any.
func (s *Service) TickOnce(ctx context.Context) {
	res := s.dispenser.Tick(ctx)
	if !res.Finished {
		return
	}

	ev := &model.DispenseEvent{
		DeviceID:     s.deviceID(),
		Status:       model.DispenseCompleted,
		TargetAmount: res.Task.TargetAmount,
		Dispensed:    res.Dispensed,
		StartedAt:    res.Task.StartedAt,
		FinishedAt:   s.now().UTC(),
	}
	if errors.Is(res.Err, dispense.ErrDispenseStalled) {
		ev.Status = model.DispenseStalled
		s.alerts.Dispatch(notification.DispenseStalled(res.Task.TargetAmount, res.Dispensed))
	}

	s.metrics.DispenseResults.WithLabelValues(ev.Status).Inc()
	s.recorder.submit("dispense", func(ctx context.Context) {
		if s.store != nil {
			if err := s.store.RecordDispense(ctx, ev); err != nil {
				log.Printf("controller: %v", err)
			}
		}
		s.telemetry.WriteEvent(ctx, ev.DeviceID, "dispense", ev)
	})
	s.publish()
}

func (s *Service) handle(ctx context.Context, action trigger.Action) Reply {
	defer s.publish()

	switch action {
	case trigger.StartFill:
		return Reply{Action: action, Err: s.session.Start(ctx)}
	case trigger.EndFill:
		res := s.session.End(ctx, &s.state)
		s.afterFill(ctx, res)
		return Reply{Action: action, Fill: &res}
	default:
		return Reply{Action: action, Err: errors.New("controller: unknown action " + string(action))}
	}
}

// afterFill queues failed reports and records the session.
func (s *Service) afterFill(ctx context.Context, res fill.Result) {
	if res.Outcome == fill.NoActiveSession {
		return
	}
	s.metrics.FillOutcomes.WithLabelValues(string(res.Outcome)).Inc()

	ev := &model.FillEvent{
		DeviceID:   s.deviceID(),
		Outcome:    string(res.Outcome),
		AddedFood:  res.AddedFood,
		AddedWater: res.AddedWater,
		StartedAt:  res.StartedAt,
		EndedAt:    res.EndedAt,
	}
	for _, r := range res.Reported {
		switch r.Kind {
		case inventory.KindFood:
			ev.FoodReported = true
		case inventory.KindWater:
			ev.WaterReported = true
		}
	}
	for _, r := range res.Failed {
		s.metrics.ReportFailures.WithLabelValues(string(r.Kind)).Inc()
		if !inventory.Retryable(r.Err) {
			log.Printf("controller: %s report of %.1f discarded: %v", r.Kind, r.Quantity, r.Err)
			continue
		}
		s.enqueue(inventory.PendingReport{
			DeviceID: s.state.DeviceID,
			Kind:     r.Kind,
			Quantity: r.Quantity,
			QueuedAt: res.EndedAt,
		})
		ev.Queued++
	}

	switch res.Outcome {
	case fill.FoodOverflow:
		s.alerts.Dispatch(notification.FillRejected(string(inventory.KindFood), res.AddedFood, s.state.FoodQuantity, s.state.FoodLimit))
	case fill.WaterOverflow:
		s.alerts.Dispatch(notification.FillRejected(string(inventory.KindWater), res.AddedWater, s.state.WaterQuantity, s.state.WaterLimit))
	}

	s.recorder.submit("fill", func(ctx context.Context) {
		if s.store != nil {
			if err := s.store.RecordFill(ctx, ev); err != nil {
				log.Printf("controller: %v", err)
			}
		}
		s.telemetry.WriteEvent(ctx, ev.DeviceID, "fill", ev)
	})
}

func (s *Service) enqueue(p inventory.PendingReport) {
	dropped, evicted := s.outbox.Push(p)
	if evicted {
		log.Printf("controller: outbox full, dropped %s report of %.1f queued at %s", dropped.Kind, dropped.Quantity, dropped.QueuedAt.Format(time.RFC3339))
		s.metrics.ReportsDropped.Inc()
		s.alerts.Dispatch(notification.ReportDropped(string(dropped.Kind), dropped.Quantity))
	}
	s.metrics.OutboxDepth.Set(float64(s.outbox.Len()))
}

func (s *Service) flushOutbox(ctx context.Context) {
	if s.outbox.Len() == 0 {
		return
	}
	n, discarded := s.outbox.Flush(ctx, s.inv, func(kind inventory.Kind, resp inventory.DeviceState) {
		s.state.Adopt(kind, resp)
	})
	if n > 0 {
		log.Printf("controller: delivered %d queued reports, %d pending", n, s.outbox.Len())
	}
	for _, p := range discarded {
		s.metrics.ReportsDropped.Inc()
		s.alerts.Dispatch(notification.ReportDropped(string(p.Kind), p.Quantity))
	}
	s.metrics.OutboxDepth.Set(float64(s.outbox.Len()))
}

func (s *Service) deviceID() string {
	if s.state.DeviceID != "" {
		return s.state.DeviceID
	}
	return s.serial
}

// publish copies loop-owned state into the snapshot. Only the loop goroutine
// calls it.
func (s *Service) publish() {
	snap := Snapshot{
		Serial:         s.serial,
		State:          s.state,
		Synced:         s.state.Synced(),
		Readings:       s.readings,
		FillActive:     s.session.Active(),
		PendingReports: s.outbox.Pending(),
		LastPoll:       s.lastPoll,
		LastPollError:  s.lastPollErr,
	}
	if t, ok := s.dispenser.Task(); ok {
		snap.Dispense = &t
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

type discardAlerts struct{}

func (discardAlerts) Dispatch(notification.Alert) {}
