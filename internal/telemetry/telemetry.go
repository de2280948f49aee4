// Package telemetry provides opt-in anonymous usage analytics. Only
// intent types and resulting phases are reported, never goals, plans or
// any other payload content.
package telemetry

import (
	"errors"
	"runtime"
	"time"

	"github.com/posthog/posthog-go"
)

// Client is the interface for telemetry clients. The abstraction allows
// mocking in tests and a no-op when telemetry is disabled.
type Client interface {
	// Track sends an event asynchronously. Returns immediately.
	Track(event string, properties map[string]any)

	// Close flushes pending events. Uses a short timeout so it never
	// holds up CLI exit.
	Close() error
}

// Noop is the disabled client.
type Noop struct{}

func (Noop) Track(string, map[string]any) {}
func (Noop) Close() error                 { return nil }

// enqueuer is the subset of the PostHog client used here, extracted for
// testing.
type enqueuer interface {
	Enqueue(msg posthog.Message) error
	Close() error
}

// PostHogClient wraps the PostHog SDK for async telemetry.
type PostHogClient struct {
	client     enqueuer
	distinctID string
	version    string
}

// NewPostHogClient creates a telemetry client. Returns Noop when no API
// key is configured.
func NewPostHogClient(apiKey, distinctID, version string) (Client, error) {
	if apiKey == "" {
		return Noop{}, nil
	}
	client, err := posthog.NewWithConfig(apiKey, posthog.Config{
		// CLI processes exit quickly; keep batches small and flushes fast.
		BatchSize: 10,
		Interval:  time.Second,
	})
	if err != nil {
		return nil, err
	}
	return &PostHogClient{client: client, distinctID: distinctID, version: version}, nil
}

// Track enqueues one event with the standard properties attached.
func (c *PostHogClient) Track(event string, properties map[string]any) {
	props := posthog.NewProperties()
	for k, v := range properties {
		props.Set(k, v)
	}
	props.Set("os", runtime.GOOS)
	props.Set("arch", runtime.GOARCH)
	props.Set("cli_version", c.version)
	// No person profiles: telemetry stays anonymous.
	props.Set("$process_person_profile", false)

	_ = c.client.Enqueue(posthog.Capture{
		DistinctId: c.distinctID,
		Event:      event,
		Properties: props,
	})
}

// Close flushes and shuts down the underlying client, giving up after a
// short timeout so a slow endpoint never holds up CLI exit.
func (c *PostHogClient) Close() error {
	done := make(chan error, 1)
	go func() { done <- c.client.Close() }()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		return errors.New("telemetry flush timed out")
	}
}
