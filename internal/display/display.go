// Package display shows short status messages to the operator. Rendering on the
// physical panel is handled by a driver that satisfies Display.
package display

import (
	"fmt"
	"log"
)

// Message is a two line status message.
type Message struct {
	Title string
	Body  string
}

// Predefined messages shown by the fill and dispense logic.
var (
	FillInProgress = Message{Title: "Refill", Body: "fill in progress"}
	FillAccepted   = Message{Title: "Refill", Body: "accepted"}
	FoodOverflow   = Message{Title: "Refill rejected", Body: "food over capacity"}
	WaterOverflow  = Message{Title: "Refill rejected", Body: "water over capacity"}
	Dispensing     = Message{Title: "Feeding", Body: "dispensing"}
	DispenseDone   = Message{Title: "Feeding", Body: "done"}
	DispenseStall  = Message{Title: "Feeding", Body: "stalled, check hopper"}
)

// Display renders operator messages.
type Display interface {
	Show(msg Message)
}

// LogDisplay writes messages to a logger. It is used when no panel is attached.
type LogDisplay struct {
	logger *log.Logger
}

// NewLogDisplay creates a display backed by the given logger; nil uses the standard logger.
func NewLogDisplay(logger *log.Logger) *LogDisplay {
	return &LogDisplay{logger: logger}
}

// Show logs the message.
func (d *LogDisplay) Show(msg Message) {
	line := fmt.Sprintf("display: [%s] %s", msg.Title, msg.Body)
	if d.logger == nil {
		log.Println(line)
		return
	}
	d.logger.Println(line)
}
