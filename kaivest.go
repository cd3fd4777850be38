// Package kaivest is the in-process client for the advisory analysis
// stream: it opens the server-pushed debate feed, folds the typed
// progress events into a single consistent state, and hands read-only
// snapshots to whatever presentation layer sits on top.
package kaivest

import (
	"context"
	"time"

	"kaivest/internal/agentspec"
	"kaivest/internal/analysis"
	"kaivest/internal/config"
	"kaivest/internal/logger"
	"kaivest/internal/retry"
	"kaivest/internal/session"
	"kaivest/internal/store/analysislog"
	"kaivest/internal/store/journal"
)

// State model re-exported for presentation code.
type (
	AnalysisState  = analysis.State
	AgentState     = analysis.AgentState
	Round          = analysis.Round
	Thought        = analysis.Thought
	DecisionResult = analysis.DecisionResult
	Phase          = analysis.Phase
	Stage          = analysis.Stage
	StreamRequest  = session.StreamRequest
	Coordinator    = session.Coordinator
	SessionStatus  = session.Status
	FailureKind    = retry.Kind
	AgentProfile   = agentspec.Profile
)

// Client wires config, roster, persistence and the session factory.
type Client struct {
	cfg      *config.Config
	registry *agentspec.Registry
	store    *analysislog.Store
	journal  *journal.Journal
	token    func() string
	onUpdate func(AnalysisState)
}

// New builds a client from a yaml config file.
func New(configPath string) (*Client, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg)
}

// NewWithConfig builds a client from an already-validated config.
func NewWithConfig(cfg *config.Config) (*Client, error) {
	logger.SetLevel(cfg.App.LogLevel)

	registry, err := agentspec.NewRegistry(cfg.Agents.File)
	if err != nil {
		return nil, err
	}
	c := &Client{cfg: cfg, registry: registry}
	if cfg.Storage.AnalysisDB != "" {
		store, err := analysislog.NewStore(cfg.Storage.AnalysisDB)
		if err != nil {
			return nil, err
		}
		c.store = store
	}
	if cfg.Storage.JournalDB != "" {
		j, err := journal.Open(cfg.Storage.JournalDB)
		if err != nil {
			return nil, err
		}
		c.journal = j
	}
	return c, nil
}

// SetTokenSource installs the bearer token provider. Token refresh is
// session management's job; the stream just attaches what is current.
func (c *Client) SetTokenSource(fn func() string) { c.token = fn }

// OnUpdate installs the snapshot callback shared by all sessions
// started afterwards.
func (c *Client) OnUpdate(fn func(AnalysisState)) { c.onUpdate = fn }

// Roster returns the current agent roster snapshot.
func (c *Client) Roster() agentspec.Snapshot { return c.registry.Snapshot() }

// History lists recently persisted verdicts.
func (c *Client) History(ctx context.Context, ticker string, limit int) ([]analysislog.Record, error) {
	if c.store == nil {
		return nil, nil
	}
	return c.store.Recent(ctx, ticker, limit)
}

// StartAnalysis opens a streaming session for one ticker and runs its
// read loop until a terminal state or cancellation.
func (c *Client) StartAnalysis(ctx context.Context, req StreamRequest) *Coordinator {
	opts := session.Options{
		Transport: &session.HTTPTransport{
			BaseURL: c.cfg.API.BaseURL,
			Token:   c.token,
		},
		InactivityTimeout: time.Duration(c.cfg.API.InactivityTimeoutSeconds) * time.Second,
		OnUpdate:          c.onUpdate,
		Cards:             c.registry,
	}
	if c.store != nil {
		opts.Saver = c.store
	}
	if c.journal != nil {
		opts.Journal = c.journal
	}
	coord := session.NewCoordinator(req, opts)
	coord.Start(ctx)
	return coord
}

func (c *Client) Close() error {
	var first error
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			first = err
		}
	}
	if c.journal != nil {
		if err := c.journal.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
