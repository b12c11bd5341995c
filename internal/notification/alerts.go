package notification

import "fmt"

// FillRejected is sent when a refill would overfill a container.
func FillRejected(kind string, added, quantity, limit float64) Alert {
	return Alert{
		Title: "Refill rejected",
		Body:  fmt.Sprintf("Adding %.0f of %s would exceed the limit (%.0f of %.0f in stock).", added, kind, quantity, limit),
	}
}

// DispenseStalled is sent when the gate was forced closed before the target was met.
func DispenseStalled(target, dispensed float64) Alert {
	return Alert{
		Title: "Dispense stalled",
		Body:  fmt.Sprintf("Only %.0f of %.0f reached the tray; check the hopper.", dispensed, target),
	}
}

// ReportDropped is sent when a queued inventory report is evicted unsent.
func ReportDropped(kind string, quantity float64) Alert {
	return Alert{
		Title: "Inventory report lost",
		Body:  fmt.Sprintf("A refill of %.0f %s could not be reported to the server.", quantity, kind),
	}
}
