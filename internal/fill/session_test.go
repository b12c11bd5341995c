package fill

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petfeeder/internal/display"
	"petfeeder/internal/inventory"
)

// fakeBulk returns scripted bulk readings; each read pops the next value.
type fakeBulk struct {
	food  []float64
	water []float64
}

func (f *fakeBulk) BulkFoodWeight(ctx context.Context) float64 {
	v := f.food[0]
	if len(f.food) > 1 {
		f.food = f.food[1:]
	}
	return v
}

func (f *fakeBulk) BulkWaterVolume(ctx context.Context) float64 {
	v := f.water[0]
	if len(f.water) > 1 {
		f.water = f.water[1:]
	}
	return v
}

type reportCall struct {
	DeviceID string
	Kind     inventory.Kind
	Quantity float64
}

// mockReporter records calls and answers with a server-side quantity.
type mockReporter struct {
	calls     []reportCall
	respond   func(kind inventory.Kind, qty float64) inventory.DeviceState
	failKinds map[inventory.Kind]bool
}

func (m *mockReporter) ReportDelta(ctx context.Context, deviceID string, kind inventory.Kind, quantity float64) (inventory.DeviceState, error) {
	m.calls = append(m.calls, reportCall{DeviceID: deviceID, Kind: kind, Quantity: quantity})
	if m.failKinds[kind] {
		return inventory.DeviceState{}, inventory.ErrNetwork
	}
	if m.respond != nil {
		return m.respond(kind, quantity), nil
	}
	return inventory.DeviceState{}, nil
}

type recordingDisplay struct {
	shown []display.Message
}

func (d *recordingDisplay) Show(msg display.Message) {
	d.shown = append(d.shown, msg)
}

func baseState() inventory.DeviceState {
	return inventory.DeviceState{DeviceID: "dev-7", FoodQuantity: 500, WaterQuantity: 200, FoodLimit: 1000, WaterLimit: 800}
}

func TestSession_AcceptedReportsFood(t *testing.T) {
	bulk := &fakeBulk{food: []float64{1200, 1500}, water: []float64{400, 400}}
	rep := &mockReporter{respond: func(kind inventory.Kind, qty float64) inventory.DeviceState {
		return inventory.DeviceState{FoodQuantity: 790, WaterQuantity: 999}
	}}
	disp := &recordingDisplay{}
	s := NewSession(bulk, rep, disp)
	st := baseState()

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Active())

	res := s.End(context.Background(), &st)

	assert.Equal(t, Accepted, res.Outcome)
	assert.Equal(t, 300.0, res.AddedFood)
	assert.Equal(t, []reportCall{{DeviceID: "dev-7", Kind: inventory.KindFood, Quantity: 300}}, rep.calls)
	assert.Equal(t, 790.0, st.FoodQuantity, "server quantity is adopted, not the local sum")
	assert.Equal(t, 200.0, st.WaterQuantity, "water was not reported so it is untouched")
	assert.False(t, s.Active())
	assert.Equal(t, []display.Message{display.FillInProgress, display.FillAccepted}, disp.shown)
}

func TestSession_FoodOverflowRejects(t *testing.T) {
	bulk := &fakeBulk{food: []float64{100, 300}, water: []float64{400, 500}}
	rep := &mockReporter{}
	disp := &recordingDisplay{}
	s := NewSession(bulk, rep, disp)
	st := baseState()
	st.FoodQuantity = 900
	before := st

	require.NoError(t, s.Start(context.Background()))
	res := s.End(context.Background(), &st)

	assert.Equal(t, FoodOverflow, res.Outcome)
	assert.Empty(t, rep.calls, "no partial reporting on rejection")
	assert.Equal(t, before, st)
	assert.False(t, s.Active())
	assert.Equal(t, display.FoodOverflow, disp.shown[len(disp.shown)-1])
}

func TestSession_WaterOverflowRejects(t *testing.T) {
	bulk := &fakeBulk{food: []float64{100, 150}, water: []float64{0, 700}}
	rep := &mockReporter{}
	s := NewSession(bulk, rep, nil)
	st := baseState()

	require.NoError(t, s.Start(context.Background()))
	res := s.End(context.Background(), &st)

	assert.Equal(t, WaterOverflow, res.Outcome)
	assert.Empty(t, rep.calls, "food delta is not reported when water overflows")
	assert.Equal(t, baseState(), st)
}

func TestSession_NegativeFoodDelta(t *testing.T) {
	bulk := &fakeBulk{food: []float64{600, 550}, water: []float64{100, 150}}
	rep := &mockReporter{respond: func(kind inventory.Kind, qty float64) inventory.DeviceState {
		return inventory.DeviceState{WaterQuantity: 250}
	}}
	s := NewSession(bulk, rep, nil)
	st := baseState()
	st.FoodQuantity = 1000 // full: any positive food delta would overflow

	require.NoError(t, s.Start(context.Background()))
	res := s.End(context.Background(), &st)

	assert.Equal(t, Accepted, res.Outcome)
	assert.Equal(t, -50.0, res.AddedFood)
	assert.Equal(t, []reportCall{{DeviceID: "dev-7", Kind: inventory.KindWater, Quantity: 50}}, rep.calls)
	assert.Equal(t, 1000.0, st.FoodQuantity)
	assert.Equal(t, 250.0, st.WaterQuantity)
}

func TestSession_EndTwiceIsNoop(t *testing.T) {
	bulk := &fakeBulk{food: []float64{0, 10}, water: []float64{0, 10}}
	rep := &mockReporter{}
	s := NewSession(bulk, rep, nil)
	st := baseState()

	require.NoError(t, s.Start(context.Background()))
	first := s.End(context.Background(), &st)
	second := s.End(context.Background(), &st)

	assert.Equal(t, Accepted, first.Outcome)
	assert.Equal(t, NoActiveSession, second.Outcome)
	assert.Len(t, rep.calls, 2, "second End must not report again")
}

func TestSession_EndWithoutStart(t *testing.T) {
	rep := &mockReporter{}
	s := NewSession(&fakeBulk{food: []float64{0}, water: []float64{0}}, rep, nil)
	st := baseState()

	res := s.End(context.Background(), &st)

	assert.Equal(t, NoActiveSession, res.Outcome)
	assert.Empty(t, rep.calls)
	assert.Equal(t, baseState(), st)
}

func TestSession_StartTwiceKeepsBaseline(t *testing.T) {
	bulk := &fakeBulk{food: []float64{100, 400}, water: []float64{0, 0}}
	rep := &mockReporter{respond: func(kind inventory.Kind, qty float64) inventory.DeviceState {
		return inventory.DeviceState{FoodQuantity: 800}
	}}
	s := NewSession(bulk, rep, nil)
	st := baseState()

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSessionActive)

	res := s.End(context.Background(), &st)
	assert.Equal(t, 300.0, res.AddedFood, "delta is measured from the first baseline")
}

func TestSession_ReportFailureLeavesChannelUntouched(t *testing.T) {
	bulk := &fakeBulk{food: []float64{0, 100}, water: []float64{0, 50}}
	rep := &mockReporter{
		failKinds: map[inventory.Kind]bool{inventory.KindFood: true},
		respond: func(kind inventory.Kind, qty float64) inventory.DeviceState {
			return inventory.DeviceState{WaterQuantity: 260}
		},
	}
	s := NewSession(bulk, rep, nil)
	st := baseState()

	require.NoError(t, s.Start(context.Background()))
	res := s.End(context.Background(), &st)

	assert.Equal(t, Accepted, res.Outcome)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, inventory.KindFood, res.Failed[0].Kind)
	assert.ErrorIs(t, res.Failed[0].Err, inventory.ErrNetwork)
	require.Len(t, res.Reported, 1)
	assert.Equal(t, 500.0, st.FoodQuantity)
	assert.Equal(t, 260.0, st.WaterQuantity)
}

func TestValidate_Property(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		st := inventory.DeviceState{
			FoodQuantity:  float64(r.Intn(1000)),
			WaterQuantity: float64(r.Intn(1000)),
			FoodLimit:     float64(r.Intn(1000)),
			WaterLimit:    float64(r.Intn(1000)),
		}
		addedFood := float64(r.Intn(1200) - 200)
		addedWater := float64(r.Intn(1200) - 200)

		foodOK := max(addedFood, 0)+st.FoodQuantity <= st.FoodLimit
		waterOK := max(addedWater, 0)+st.WaterQuantity <= st.WaterLimit

		got := Validate(addedFood, addedWater, st)
		switch {
		case foodOK && waterOK:
			assert.Equal(t, Accepted, got)
		case !foodOK:
			assert.Equal(t, FoodOverflow, got, "food is checked first")
		default:
			assert.Equal(t, WaterOverflow, got)
		}
	}
}

func TestValidate_Boundary(t *testing.T) {
	st := inventory.DeviceState{FoodQuantity: 500, FoodLimit: 1000, WaterQuantity: 0, WaterLimit: 100}

	assert.Equal(t, Accepted, Validate(500, 100, st), "filling exactly to the limit is allowed")
	assert.Equal(t, FoodOverflow, Validate(500.1, 0, st))
	assert.Equal(t, WaterOverflow, Validate(0, 100.1, st))
}
