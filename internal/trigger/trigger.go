// Package trigger turns operator buttons into refill commands. Buttons are
// sampled on a timer; a press fires once, on the debounced released-to-pressed
// edge.
package trigger

import (
	"context"
	"log"
	"sync"
	"time"
)

// Action is an operator request.
type Action string

const (
	StartFill Action = "start_fill"
	EndFill   Action = "end_fill"
)

// Button reports the raw level of a push button.
type Button interface {
	Pressed(ctx context.Context) (bool, error)
}

type buttonState struct {
	action    Action
	button    Button
	stable    bool
	candidate bool
	since     time.Time
}

// Watcher samples buttons and emits an Action per debounced press.
type Watcher struct {
	buttons  []*buttonState
	poll     time.Duration
	debounce time.Duration
	now      func() time.Time
}

// NewWatcher creates a watcher. Buttons are sampled every poll and a new level
// must hold for debounce before it is accepted.
func NewWatcher(buttons map[Action]Button, poll, debounce time.Duration) *Watcher {
	w := &Watcher{poll: poll, debounce: debounce, now: time.Now}
	for _, a := range []Action{StartFill, EndFill} {
		if b, ok := buttons[a]; ok && b != nil {
			w.buttons = append(w.buttons, &buttonState{action: a, button: b})
		}
	}
	return w
}

// Run samples until ctx is done, calling emit for every press.
func (w *Watcher) Run(ctx context.Context, emit func(Action)) {
	if len(w.buttons) == 0 {
		log.Println("No operator buttons configured. Trigger watcher not starting.")
		return
	}

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, a := range w.Sample(ctx) {
				emit(a)
			}
		}
	}
}

// Sample reads every button once and returns the actions whose press was
// confirmed by this reading.
func (w *Watcher) Sample(ctx context.Context) []Action {
	now := w.now()
	var fired []Action
	for _, b := range w.buttons {
		raw, err := b.button.Pressed(ctx)
		if err != nil {
			log.Printf("trigger: reading %s button: %v", b.action, err)
			continue
		}
		if raw != b.candidate {
			b.candidate = raw
			b.since = now
		}
		if b.candidate != b.stable && now.Sub(b.since) >= w.debounce {
			b.stable = b.candidate
			if b.stable {
				fired = append(fired, b.action)
			}
		}
	}
	return fired
}

// Latch is a software button that reads pressed for a fixed hold time after
// Press. It stands in for hardware on a development machine.
type Latch struct {
	mu    sync.Mutex
	hold  time.Duration
	until time.Time
	now   func() time.Time
}

// NewLatch creates a released latch.
func NewLatch(hold time.Duration) *Latch {
	return &Latch{hold: hold, now: time.Now}
}

// Press holds the button down.
func (l *Latch) Press() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.until = l.now().Add(l.hold)
}

// Pressed implements Button.
func (l *Latch) Pressed(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now().Before(l.until), nil
}
