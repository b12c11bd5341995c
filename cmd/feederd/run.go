package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"petfeeder/config"
	"petfeeder/internal/actuator"
	"petfeeder/internal/api"
	"petfeeder/internal/controller"
	"petfeeder/internal/db"
	"petfeeder/internal/display"
	"petfeeder/internal/inventory"
	"petfeeder/internal/metrics"
	"petfeeder/internal/notification"
	"petfeeder/internal/sensor"
	"petfeeder/internal/store"
	"petfeeder/internal/telemetry"
	"petfeeder/internal/trigger"
)

func newRunCmd(load func() (*config.Config, string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the feeder control loop and status API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, serial, err := load()
			if err != nil {
				return err
			}
			return run(cfg, serial)
		},
	}
}

// hardware is the set of device capabilities the controller drives.
type hardware struct {
	sensors controller.Sensors
	gate    actuator.Actuator
	buttons map[trigger.Action]trigger.Button
}

// simulatedHardware builds an in-process feeder. SIGUSR1 presses the start-fill
// button, SIGUSR2 the end-fill button.
func simulatedHardware(ctx context.Context, cfg *config.Config, logger *log.Logger) hardware {
	tank := cfg.Sensors.WaterTank
	sim := sensor.NewSimulator(2000, 0, tank.HeightCm/2, tank.HeightCm, 5)
	gauge := sensor.NewWaterGauge(sim.Distance(), tank.HeightCm, tank.AreaCm2, cfg.Sensors.DistanceTimeout)

	hold := cfg.Trigger.Debounce + 3*cfg.Trigger.PollInterval
	start, end := trigger.NewLatch(hold), trigger.NewLatch(hold)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		defer signal.Stop(sigs)
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-sigs:
				if s == syscall.SIGUSR1 {
					logger.Println("simulated start-fill button pressed")
					start.Press()
				} else {
					logger.Println("simulated end-fill button pressed")
					end.Press()
				}
			}
		}
	}()

	return hardware{
		sensors: sensor.NewBank(sim.BulkFood(), sim.Tray(), gauge),
		gate:    actuator.NewSimulatedGate(sim),
		buttons: map[trigger.Action]trigger.Button{trigger.StartFill: start, trigger.EndFill: end},
	}
}

func telemetrySinks(ctx context.Context, cfg *config.Config, logger *log.Logger) (telemetry.Fanout, func()) {
	var sinks telemetry.Fanout
	cleanup := func() {}

	if cfg.MQTT.Enabled {
		client, err := telemetry.ConnectMQTT(ctx, &cfg.MQTT)
		if err != nil {
			logger.Printf("MQTT telemetry disabled: %v", err)
		} else {
			sinks = append(sinks, telemetry.NewMQTTPublisher(client, cfg.MQTT.TopicPrefix))
		}
	}

	if cfg.Influx.Enabled {
		w, err := telemetry.NewInfluxWriter(&cfg.Influx)
		if err != nil {
			logger.Printf("InfluxDB telemetry disabled: %v", err)
		} else {
			sinks = append(sinks, w)
			cleanup = w.Close
		}
	}
	return sinks, cleanup
}

func run(cfg *config.Config, serial string) error {
	logger := log.New(os.Stdout, "feederd ", log.LstdFlags)
	logger.Printf("configuration loaded, device %s", serial)

	if !cfg.Sensors.Simulated {
		return errors.New("no hardware drivers are linked into this build; set sensors.simulated: true")
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Println("database initialized successfully")
	appStore := store.NewGormStore(gormDB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var alerts controller.Alerter
	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Println("VAPID keys are not configured; owner alerts are disabled")
	} else {
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, &webpushOptions)
		pool.Start(ctx)
		alerts = pool
	}

	sinks, closeSinks := telemetrySinks(ctx, cfg, logger)
	defer closeSinks()

	hw := simulatedHardware(ctx, cfg, logger)

	svc := controller.NewService(cfg, serial, controller.Deps{
		Inventory: inventory.NewClient(&cfg.Remote),
		Sensors:   hw.sensors,
		Gate:      hw.gate,
		Display:   display.NewLogDisplay(logger),
		Store:     appStore,
		Alerts:    alerts,
		Telemetry: sinks,
		Metrics:   metrics.New(reg),
	})
	go svc.Run(ctx)

	watcher := trigger.NewWatcher(hw.buttons, cfg.Trigger.PollInterval, cfg.Trigger.Debounce)
	go watcher.Run(ctx, svc.Trigger(ctx))

	router := api.NewRouter(&cfg.Server, svc, appStore, &webpushOptions, reg)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Println("Shutdown signal received, stopping services...")
	case err := <-serverErr:
		logger.Printf("HTTP server failed: %v", err)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}

	logger.Println("Server gracefully stopped")
	return nil
}
