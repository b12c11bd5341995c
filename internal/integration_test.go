package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"petfeeder/config"
	"petfeeder/internal/actuator"
	"petfeeder/internal/controller"
	"petfeeder/internal/fill"
	"petfeeder/internal/inventory"
	"petfeeder/internal/model"
	"petfeeder/internal/sensor"
	"petfeeder/internal/store"
	"petfeeder/internal/trigger"
)

// inventoryServer is an in-memory stand-in for the remote inventory service.
type inventoryServer struct {
	mu      sync.Mutex
	state   map[string]float64
	reports []map[string]any
}

func (s *inventoryServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/device":
		if r.URL.Query().Get("macAddress") != "24:6F:28:AA:10:01" {
			http.NotFound(w, r)
			return
		}
	case r.Method == http.MethodPost && r.URL.Path == "/dispense-request":
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.reports = append(s.reports, body)
		s.state[body["type"].(string)+"_quantity"] += body["quantity"].(float64)
	default:
		http.NotFound(w, r)
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"id":             "dev-7",
		"food_quantity":  s.state["food_quantity"],
		"water_quantity": s.state["water_quantity"],
		"food_limit":     s.state["food_limit"],
		"water_limit":    s.state["water_limit"],
	})
}

func (s *inventoryServer) consume(kind string, amount float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[kind+"_quantity"] -= amount
}

func (s *inventoryServer) reportCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

// TestFeederLifecycle runs the control loop against a fake inventory service and
// simulated hardware: a refill is accepted and reported, a second one is
// rejected, and a drop in the server quantity dispenses food into the tray.
func TestFeederLifecycle(t *testing.T) {
	testDB, err := gorm.Open(sqlite.Open("file:lifecycle?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	require.NoError(t, testDB.AutoMigrate(&model.FillEvent{}, &model.DispenseEvent{}, &model.PushSubscription{}))
	journal := store.NewGormStore(testDB)

	upstream := &inventoryServer{state: map[string]float64{
		"food_quantity":  400,
		"water_quantity": 1000,
		"food_limit":     1000,
		"water_limit":    1500,
	}}
	server := httptest.NewServer(upstream)
	defer server.Close()

	cfg := &config.Config{}
	cfg.Remote.BaseURL = server.URL
	cfg.ApplyDefaults()
	cfg.Remote.PollInterval = 20 * time.Millisecond
	cfg.Dispense.TickInterval = 5 * time.Millisecond

	sim := sensor.NewSimulator(400, 0, 10, 20, 1000)
	bank := sensor.NewBank(sim.BulkFood(), sim.Tray(), sensor.NewWaterGauge(sim.Distance(), 20, 100, 0))

	svc := controller.NewService(cfg, "24:6F:28:AA:10:01", controller.Deps{
		Inventory: inventory.NewClient(&cfg.Remote),
		Sensors:   bank,
		Gate:      actuator.NewSimulatedGate(sim),
		Store:     journal,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	require.Eventually(t, func() bool { return svc.Snapshot().Synced }, time.Second, 5*time.Millisecond)

	// Accepted refill: 300 g of food and 2 cm of water (200 ml).
	_, err = svc.Submit(ctx, trigger.StartFill)
	require.NoError(t, err)
	sim.AddFood(300)
	sim.AddWater(2)
	reply, err := svc.Submit(ctx, trigger.EndFill)
	require.NoError(t, err)
	assert.Equal(t, fill.Accepted, reply.Fill.Outcome)
	assert.InDelta(t, 300, reply.Fill.AddedFood, 0.001)
	assert.InDelta(t, 200, reply.Fill.AddedWater, 0.001)
	assert.Equal(t, 2, upstream.reportCount())

	snap := svc.Snapshot()
	assert.Equal(t, 700.0, snap.State.FoodQuantity)
	assert.Equal(t, 1200.0, snap.State.WaterQuantity)

	// Rejected refill: 400 g more would exceed the 1000 g limit.
	_, err = svc.Submit(ctx, trigger.StartFill)
	require.NoError(t, err)
	sim.AddFood(400)
	reply, err = svc.Submit(ctx, trigger.EndFill)
	require.NoError(t, err)
	assert.Equal(t, fill.FoodOverflow, reply.Fill.Outcome)
	assert.Equal(t, 2, upstream.reportCount(), "a rejected refill reports nothing")

	// The owner feeds 20 g through the service; the loop dispenses it.
	upstream.consume("food", 20)
	require.Eventually(t, func() bool {
		events, err := journal.RecentDispenses(ctx, 10)
		return err == nil && len(events) == 1
	}, 2*time.Second, 10*time.Millisecond)

	events, err := journal.RecentDispenses(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, model.DispenseCompleted, events[0].Status)
	assert.Equal(t, 20.0, events[0].TargetAmount)
	assert.GreaterOrEqual(t, events[0].Dispensed, 20.0)
	assert.Equal(t, "dev-7", events[0].DeviceID)

	fills, err := journal.RecentFills(ctx, 10)
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, string(fill.FoodOverflow), fills[0].Outcome)
	assert.True(t, fills[1].FoodReported)
	assert.True(t, fills[1].WaterReported)

	assert.Eventually(t, func() bool { return svc.Snapshot().Dispense == nil }, time.Second, 5*time.Millisecond)
}
