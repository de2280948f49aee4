package telemetry

import (
	"testing"

	"github.com/posthog/posthog-go"
)

type fakeEnqueuer struct {
	captures []posthog.Capture
	closed   bool
}

func (f *fakeEnqueuer) Enqueue(msg posthog.Message) error {
	if c, ok := msg.(posthog.Capture); ok {
		f.captures = append(f.captures, c)
	}
	return nil
}

func (f *fakeEnqueuer) Close() error {
	f.closed = true
	return nil
}

func TestNoopWithoutAPIKey(t *testing.T) {
	c, err := NewPostHogClient("", "id", "0.1.0")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(Noop); !ok {
		t.Fatalf("no API key should yield the noop client, got %T", c)
	}
	c.Track("event", nil) // must not panic
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestTrackAttachesStandardProperties(t *testing.T) {
	enq := &fakeEnqueuer{}
	c := &PostHogClient{client: enq, distinctID: "anon-1", version: "0.1.0"}

	c.Track("intent_handled", map[string]any{"intent": "replan", "phase": "planning"})

	if len(enq.captures) != 1 {
		t.Fatalf("got %d captures, want 1", len(enq.captures))
	}
	capture := enq.captures[0]
	if capture.DistinctId != "anon-1" || capture.Event != "intent_handled" {
		t.Fatalf("capture = %+v", capture)
	}
	if capture.Properties["intent"] != "replan" {
		t.Error("custom property dropped")
	}
	if capture.Properties["cli_version"] != "0.1.0" {
		t.Error("standard properties missing")
	}
	if capture.Properties["$process_person_profile"] != false {
		t.Error("person profiles must stay off")
	}
}

func TestCloseFlushes(t *testing.T) {
	enq := &fakeEnqueuer{}
	c := &PostHogClient{client: enq}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if !enq.closed {
		t.Fatal("close must reach the underlying client")
	}
}
