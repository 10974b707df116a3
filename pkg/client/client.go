package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/daniacca/stochkin/internal/kinetics"
)

// ModelBuilder provides a fluent API for building reaction network models.
// Use it to declare compartments, species with their initial counts, and
// the mass-action reactions between them.
type ModelBuilder struct {
	name         string
	compartments []kinetics.CompartmentConfig
	species      []kinetics.SpeciesConfig
	reactions    []*ReactionBuilder
}

// NewModel creates a new model builder with the given name.
func NewModel(name string) *ModelBuilder {
	return &ModelBuilder{
		name:      name,
		species:   make([]kinetics.SpeciesConfig, 0),
		reactions: make([]*ReactionBuilder, 0),
	}
}

// Compartment declares a compartment. Volumes scale the propensity of
// reactions with more than one substrate molecule.
func (mb *ModelBuilder) Compartment(name string, volume float64) *ModelBuilder {
	mb.compartments = append(mb.compartments, kinetics.CompartmentConfig{Name: name, Volume: volume})
	return mb
}

// Species adds a species with its initial molecule count.
func (mb *ModelBuilder) Species(name string, initialCount int64) *ModelBuilder {
	mb.species = append(mb.species, kinetics.SpeciesConfig{Name: name, InitialCount: initialCount})
	return mb
}

// SpeciesIn adds a species living in a named compartment.
func (mb *ModelBuilder) SpeciesIn(name, compartment string, initialCount int64) *ModelBuilder {
	mb.species = append(mb.species, kinetics.SpeciesConfig{
		Name:         name,
		Compartment:  compartment,
		InitialCount: initialCount,
	})
	return mb
}

// Reaction adds a reaction to the model.
func (mb *ModelBuilder) Reaction(rb *ReactionBuilder) *ModelBuilder {
	mb.reactions = append(mb.reactions, rb)
	return mb
}

// Build converts the builder to a ModelConfig that can be sent with
// ApplyModel or built locally with kinetics.BuildModelFromConfig.
func (mb *ModelBuilder) Build() kinetics.ModelConfig {
	reactions := make([]kinetics.ReactionConfig, 0, len(mb.reactions))
	for _, rb := range mb.reactions {
		reactions = append(reactions, rb.Build())
	}
	return kinetics.ModelConfig{
		Name:         mb.name,
		Compartments: mb.compartments,
		Species:      mb.species,
		Reactions:    reactions,
	}
}

// ReactionBuilder provides a fluent API for building a mass-action reaction.
type ReactionBuilder struct {
	id          string
	name        string
	compartment string
	rate        float64
	substrates  []kinetics.TermConfig
	products    []kinetics.TermConfig
}

// NewReaction creates a new reaction builder with the given ID. The ID must
// be unique within a model. The rate defaults to 1.
func NewReaction(id string) *ReactionBuilder {
	return &ReactionBuilder{id: id, name: id, rate: 1}
}

// Name sets the human-readable name. It defaults to the ID.
func (rb *ReactionBuilder) Name(name string) *ReactionBuilder {
	rb.name = name
	return rb
}

// Rate sets the stochastic rate constant.
func (rb *ReactionBuilder) Rate(rate float64) *ReactionBuilder {
	rb.rate = rate
	return rb
}

// In places the reaction in a compartment whose volume scales its propensity.
func (rb *ReactionBuilder) In(compartment string) *ReactionBuilder {
	rb.compartment = compartment
	return rb
}

// Substrate adds a consumed species with its multiplicity.
func (rb *ReactionBuilder) Substrate(species string, multiplicity int) *ReactionBuilder {
	rb.substrates = append(rb.substrates, kinetics.TermConfig{Species: species, Multiplicity: multiplicity})
	return rb
}

// Product adds a produced species with its multiplicity.
func (rb *ReactionBuilder) Product(species string, multiplicity int) *ReactionBuilder {
	rb.products = append(rb.products, kinetics.TermConfig{Species: species, Multiplicity: multiplicity})
	return rb
}

// Build converts the builder to a ReactionConfig.
func (rb *ReactionBuilder) Build() kinetics.ReactionConfig {
	return kinetics.ReactionConfig{
		ID:          rb.id,
		Name:        rb.name,
		Compartment: rb.compartment,
		Rate:        rb.rate,
		Substrates:  rb.substrates,
		Products:    rb.products,
	}
}

// APIError is returned when the server answers with a non-success status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// Client talks to a stochkin server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// PollInterval is used by WaitForRun.
	PollInterval time.Duration
}

// New creates a client for the server at baseURL (e.g. "http://localhost:8080").
// A nil httpClient uses a client with a 30 second timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, PollInterval: 200 * time.Millisecond}
}

func (c *Client) do(ctx context.Context, method string, body any, out any, okStatus int, path ...string) error {
	u, err := url.JoinPath(c.baseURL, path...)
	if err != nil {
		return fmt.Errorf("failed to build URL: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != okStatus {
		data, _ := io.ReadAll(resp.Body)
		msg := string(bytes.TrimSpace(data))
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ApplyModel registers the model under modelID, replacing any previous one.
func (c *Client) ApplyModel(ctx context.Context, modelID string, model *ModelBuilder) (kinetics.ModelInfo, error) {
	var info kinetics.ModelInfo
	err := c.do(ctx, http.MethodPost, model.Build(), &info, http.StatusOK, "models", modelID)
	return info, err
}

// DeleteModel removes a model. It fails while runs of the model are active.
func (c *Client) DeleteModel(ctx context.Context, modelID string) error {
	return c.do(ctx, http.MethodDelete, nil, nil, http.StatusNoContent, "models", modelID)
}

// StartRun submits a run of modelID and returns its ID without waiting.
// Notifier IDs, if any, must be registered on the server beforehand.
func (c *Client) StartRun(ctx context.Context, modelID string, cfg kinetics.RunConfig, notifierIDs ...string) (kinetics.RunID, error) {
	var out struct {
		RunID kinetics.RunID `json:"run_id"`
	}
	req := kinetics.RunRequest{Config: cfg, Notifiers: notifierIDs}
	if err := c.do(ctx, http.MethodPost, req, &out, http.StatusAccepted, "models", modelID, "runs"); err != nil {
		return "", err
	}
	return out.RunID, nil
}

// GetRun returns the run summary.
func (c *Client) GetRun(ctx context.Context, runID kinetics.RunID) (kinetics.RunRecord, error) {
	var rec kinetics.RunRecord
	err := c.do(ctx, http.MethodGet, nil, &rec, http.StatusOK, "runs", string(runID))
	return rec, err
}

// ListRuns returns every run known to the server, newest first.
func (c *Client) ListRuns(ctx context.Context) ([]kinetics.RunRecord, error) {
	var out struct {
		Runs []kinetics.RunRecord `json:"runs"`
	}
	err := c.do(ctx, http.MethodGet, nil, &out, http.StatusOK, "runs")
	return out.Runs, err
}

// GetTrajectory returns the recorded trajectory of a finished run.
func (c *Client) GetTrajectory(ctx context.Context, runID kinetics.RunID) (*kinetics.Trajectory, error) {
	var traj kinetics.Trajectory
	if err := c.do(ctx, http.MethodGet, nil, &traj, http.StatusOK, "runs", string(runID), "trajectory"); err != nil {
		return nil, err
	}
	return &traj, nil
}

// CancelRun requests cancellation. Cancelling a finished run is a no-op.
func (c *Client) CancelRun(ctx context.Context, runID kinetics.RunID) error {
	return c.do(ctx, http.MethodPost, nil, nil, http.StatusAccepted, "runs", string(runID), "cancel")
}

// WaitForRun polls until the run reaches a terminal status or ctx is done.
func (c *Client) WaitForRun(ctx context.Context, runID kinetics.RunID) (kinetics.RunRecord, error) {
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()
	for {
		rec, err := c.GetRun(ctx, runID)
		if err != nil {
			return kinetics.RunRecord{}, err
		}
		if rec.Status.Terminal() {
			return rec, nil
		}
		select {
		case <-ctx.Done():
			return kinetics.RunRecord{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunEnsemble runs replicates of modelID on the server and returns the
// aggregated mean and standard deviation. The call blocks until the whole
// ensemble is done.
func (c *Client) RunEnsemble(ctx context.Context, modelID string, cfg kinetics.RunConfig, replicates int) (*kinetics.EnsembleResult, error) {
	body := struct {
		Config     kinetics.RunConfig `json:"config"`
		Replicates int                `json:"replicates"`
	}{cfg, replicates}
	var res kinetics.EnsembleResult
	if err := c.do(ctx, http.MethodPost, body, &res, http.StatusOK, "models", modelID, "ensembles"); err != nil {
		return nil, err
	}
	return &res, nil
}

// RegisterNotifier registers a webhook or websocket notifier.
func (c *Client) RegisterNotifier(ctx context.Context, id, notifierType, targetURL string) error {
	body := map[string]string{"id": id, "type": notifierType}
	if targetURL != "" {
		body["url"] = targetURL
	}
	return c.do(ctx, http.MethodPost, body, nil, http.StatusCreated, "notifiers")
}
