// Package inventory is the client for the remote inventory service that owns the
// feeder's quantities and container limits.
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"petfeeder/config"
)

var (
	// ErrNetwork covers connectivity failures, non-2xx responses and an open breaker.
	ErrNetwork = errors.New("inventory: network failure")
	// ErrMalformed is returned when a response body does not have the expected shape.
	ErrMalformed = errors.New("inventory: malformed response")
)

// Reporter pushes accepted deltas to the inventory service.
type Reporter interface {
	ReportDelta(ctx context.Context, deviceID string, kind Kind, quantity float64) (DeviceState, error)
}

// Inventory is the full remote interface consumed by the controller.
type Inventory interface {
	Reporter
	FetchState(ctx context.Context, serial string) (DeviceState, error)
}

// Client talks to the inventory service over HTTP/JSON.
type Client struct {
	baseURL     string
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker
	maxAttempts int
	newBackOff  func() backoff.BackOff
}

var _ Inventory = (*Client)(nil)

// NewClient creates a client from the remote configuration.
func NewClient(cfg *config.RemoteConfig) *Client {
	failures := cfg.BreakerFailures
	if failures <= 0 {
		failures = 5
	}
	attempts := cfg.ReportMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "inventory",
		Timeout: time.Duration(cfg.BreakerOpenSeconds) * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(failures)
		},
		// A rejected request says nothing about the service's health.
		IsSuccessful: func(err error) bool {
			return err == nil || !Retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("inventory: breaker %s %s -> %s", name, from, to)
		},
	})

	return &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		client:      &http.Client{Timeout: cfg.Timeout},
		breaker:     breaker,
		maxAttempts: attempts,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 500 * time.Millisecond
			bo.MaxElapsedTime = 10 * time.Second
			return bo
		},
	}
}

// FetchState retrieves the device record for the given serial (MAC address).
// It is not retried: the next poll is the retry.
func (c *Client) FetchState(ctx context.Context, serial string) (DeviceState, error) {
	endpoint := c.baseURL + "/device?macAddress=" + url.QueryEscape(serial)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return DeviceState{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return DeviceState{}, err
	}
	if resp.ID == "" || resp.FoodQuantity == nil || resp.WaterQuantity == nil ||
		resp.FoodLimit == nil || resp.WaterLimit == nil {
		return DeviceState{}, fmt.Errorf("%w: device record is incomplete", ErrMalformed)
	}

	return DeviceState{
		DeviceID:      string(resp.ID),
		FoodQuantity:  *resp.FoodQuantity,
		WaterQuantity: *resp.WaterQuantity,
		FoodLimit:     *resp.FoodLimit,
		WaterLimit:    *resp.WaterLimit,
	}, nil
}

// ReportDelta reports a quantity added to one channel. Transient failures are
// retried with exponential backoff up to the configured number of attempts.
// Only the quantities of the returned state are meaningful.
func (c *Client) ReportDelta(ctx context.Context, deviceID string, kind Kind, quantity float64) (DeviceState, error) {
	body, err := json.Marshal(dispenseRequest{
		DeviceID: deviceID,
		Type:     kind,
		Quantity: quantity,
		Action:   ActionAdd,
	})
	if err != nil {
		return DeviceState{}, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	var out DeviceState
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/dispense-request", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.do(req)
		if err != nil {
			if errors.Is(err, ErrMalformed) || errors.Is(err, errClient) {
				return backoff.Permanent(err)
			}
			log.Printf("inventory: report %s %.1f failed, may retry: %v", kind, quantity, err)
			return err
		}

		switch {
		case kind == KindFood && resp.FoodQuantity == nil,
			kind == KindWater && resp.WaterQuantity == nil:
			return backoff.Permanent(fmt.Errorf("%w: %s quantity missing", ErrMalformed, kind))
		}
		if resp.FoodQuantity != nil {
			out.FoodQuantity = *resp.FoodQuantity
		}
		if resp.WaterQuantity != nil {
			out.WaterQuantity = *resp.WaterQuantity
		}
		out.DeviceID = string(resp.ID)
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxAttempts-1)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return DeviceState{}, err
	}
	return out, nil
}

// errClient marks 4xx responses, which are not worth retrying.
var errClient = errors.New("client error")

// Retryable reports whether a failed call may succeed if repeated later. Client
// errors and malformed responses are final.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork) && !errors.Is(err, errClient)
}

// do executes the request through the circuit breaker and decodes the body.
func (c *Client) do(req *http.Request) (*deviceResponse, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: http request failed: %v", ErrNetwork, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, fmt.Errorf("%w: %w: status %d: %s", ErrNetwork, errClient, resp.StatusCode, strings.TrimSpace(string(b)))
			}
			return nil, fmt.Errorf("%w: status %d: %s", ErrNetwork, resp.StatusCode, strings.TrimSpace(string(b)))
		}

		var out deviceResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return &out, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		return nil, err
	}
	return res.(*deviceResponse), nil
}
