package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/planvane/planvane/models"
)

// taskEnvelope is the wire format sent to the execution backend.
type taskEnvelope struct {
	TaskID          string         `json:"task_id"`
	Inputs          map[string]any `json:"inputs"`
	Constraints     map[string]any `json:"constraints,omitempty"`
	ExpectedOutputs []any          `json:"expected_outputs,omitempty"`
}

// resultEnvelope is the wire format received from the execution backend.
type resultEnvelope struct {
	TaskID    string   `json:"task_id"`
	Status    string   `json:"status"`
	Artifacts []any    `json:"artifacts,omitempty"`
	Logs      []string `json:"logs,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// HTTPExecutorBackend posts task envelopes to an execution service. A
// free-text (non-JSON) response is treated as a success whose sole
// artifact is the raw text.
type HTTPExecutorBackend struct {
	url    string
	client *http.Client
	sink   ResultSink
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewHTTPExecutorBackend creates an executor backend for the given URL.
func NewHTTPExecutorBackend(url string, sink ResultSink, logger *slog.Logger) *HTTPExecutorBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPExecutorBackend{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Minute},
		sink:   sink,
		logger: logger,
	}
}

// Dispatch sends the task in the background; the executor's response is
// submitted to the sink as an agent result.
func (b *HTTPExecutorBackend) Dispatch(ctx context.Context, task models.AgentTask) error {
	run := context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.sink.Submit(run, b.execute(run, task))
	}()
	return nil
}

// Wait blocks until all in-flight executor calls have been submitted.
func (b *HTTPExecutorBackend) Wait() {
	b.wg.Wait()
}

func (b *HTTPExecutorBackend) execute(ctx context.Context, task models.AgentTask) models.AgentResult {
	envelope := taskEnvelope{TaskID: task.ID, Inputs: task.Input}
	if constraints, ok := task.Input["constraints"].(map[string]any); ok {
		envelope.Constraints = constraints
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return failure(task.ID, fmt.Sprintf("encode task envelope: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return failure(task.ID, fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return failure(task.ID, fmt.Sprintf("executor call: %v", err))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(task.ID, fmt.Sprintf("read executor response: %v", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failure(task.ID, fmt.Sprintf("executor returned %s: %s", resp.Status, strings.TrimSpace(string(raw))))
	}

	var envelopeOut resultEnvelope
	if err := json.Unmarshal(raw, &envelopeOut); err != nil || envelopeOut.Status == "" {
		// Free text counts as a success with the raw text as artifact.
		return models.AgentResult{
			TaskID:    task.ID,
			Status:    models.ResultSuccess,
			Artifacts: []any{string(raw)},
		}
	}

	status := models.ResultSuccess
	if envelopeOut.Status == "failure" {
		status = models.ResultFailure
	}
	return models.AgentResult{
		TaskID:    task.ID,
		Status:    status,
		Artifacts: envelopeOut.Artifacts,
		Logs:      envelopeOut.Logs,
		Error:     envelopeOut.Error,
	}
}

func failure(taskID, reason string) models.AgentResult {
	return models.AgentResult{TaskID: taskID, Status: models.ResultFailure, Error: reason}
}
