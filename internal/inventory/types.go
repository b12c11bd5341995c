package inventory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies an inventory channel.
type Kind string

const (
	KindFood  Kind = "food"
	KindWater Kind = "water"
)

// ActionAdd is the only action the feeder reports.
const ActionAdd = "add"

// DeviceState is the server-owned truth about this feeder, cached locally.
type DeviceState struct {
	DeviceID      string  `json:"id"`
	FoodQuantity  float64 `json:"food_quantity"`
	WaterQuantity float64 `json:"water_quantity"`
	FoodLimit     float64 `json:"food_limit"`
	WaterLimit    float64 `json:"water_limit"`
}

// Synced reports whether the state has been fetched from the server at least once.
func (s DeviceState) Synced() bool {
	return s.DeviceID != ""
}

// Quantity returns the known quantity for a channel.
func (s DeviceState) Quantity(k Kind) float64 {
	if k == KindWater {
		return s.WaterQuantity
	}
	return s.FoodQuantity
}

// Limit returns the container capacity for a channel.
func (s DeviceState) Limit(k Kind) float64 {
	if k == KindWater {
		return s.WaterLimit
	}
	return s.FoodLimit
}

// Adopt copies the quantity of one channel from a report response. Limits and
// the other channel are left alone.
func (s *DeviceState) Adopt(k Kind, from DeviceState) {
	switch k {
	case KindFood:
		s.FoodQuantity = from.FoodQuantity
	case KindWater:
		s.WaterQuantity = from.WaterQuantity
	}
}

// deviceResponse models the body returned by both upstream endpoints.
type deviceResponse struct {
	ID            flexID   `json:"id"`
	FoodQuantity  *float64 `json:"food_quantity"`
	WaterQuantity *float64 `json:"water_quantity"`
	FoodLimit     *float64 `json:"food_limit"`
	WaterLimit    *float64 `json:"water_limit"`
}

// dispenseRequest is the body of POST /dispense-request.
type dispenseRequest struct {
	DeviceID string  `json:"deviceId"`
	Type     Kind    `json:"type"`
	Quantity float64 `json:"quantity"`
	Action   string  `json:"action"`
}

// flexID accepts the device id as either a JSON string or number.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("device id: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("device id: %w", err)
	}
	*f = flexID(n.String())
	return nil
}
