package stream

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Kind is the semantic classification of a decoded event.
type Kind string

const (
	KindThinking      Kind = "kai_thinking"
	KindAgentStart    Kind = "agent_start"
	KindAgentToken    Kind = "agent_token"
	KindAgentComplete Kind = "agent_complete"
	KindAgentError    Kind = "agent_error"
	KindRoundStart    Kind = "round_start"
	KindDebateRound   Kind = "debate_round"
	KindDecision      Kind = "decision"
	KindStreamError   Kind = "error"
	KindUnknown       Kind = "unknown"
)

// Event is the tagged union produced by Decode. Concrete types below.
type Event interface {
	Kind() Kind
}

// ThinkingEvent is orchestrator-level reasoning narration. Agent is
// optional: when present the message also belongs to that worker's trace.
type ThinkingEvent struct {
	Phase   string
	Message string
	Tokens  []string
	Agent   string
}

func (ThinkingEvent) Kind() Kind { return KindThinking }

// AgentStartEvent marks a specialist worker going active.
type AgentStartEvent struct {
	Agent     string
	AgentName string
}

func (AgentStartEvent) Kind() Kind { return KindAgentStart }

// AgentTokenEvent carries one streamed text fragment for an active worker.
type AgentTokenEvent struct {
	Agent string
	Text  string
}

func (AgentTokenEvent) Kind() Kind { return KindAgentToken }

// AgentCompleteEvent finalizes a worker: the summary supersedes any
// streamed tokens, and the structured card fields ride along.
type AgentCompleteEvent struct {
	Agent          string
	Summary        string
	Recommendation string
	Confidence     float64
	Sources        []string
	Metrics        map[string]decimal.Decimal
	RawCard        json.RawMessage
}

func (AgentCompleteEvent) Kind() Kind { return KindAgentComplete }

// AgentErrorEvent fails a single worker without touching the others.
type AgentErrorEvent struct {
	Agent   string
	Message string
}

func (AgentErrorEvent) Kind() Kind { return KindAgentError }

// RoundStartEvent announces a debate round before statements arrive.
type RoundStartEvent struct {
	Round       int
	Description string
}

func (RoundStartEvent) Kind() Kind { return KindRoundStart }

// DebateRoundEvent delivers the per-worker statements of one round.
type DebateRoundEvent struct {
	Round      int
	Statements map[string]string
}

func (DebateRoundEvent) Kind() Kind { return KindDebateRound }

// DecisionEvent is the terminal verdict from the orchestrator.
type DecisionEvent struct {
	Ticker           string
	Decision         string
	Confidence       float64
	ConsensusReached bool
	FinalStatement   string
	PerAgentVotes    map[string]string
	RawCard          json.RawMessage
}

func (DecisionEvent) Kind() Kind { return KindDecision }

// StreamErrorEvent is a session-level fault announced in-band. It never
// mutates the analysis aggregate; the coordinator surfaces it.
type StreamErrorEvent struct {
	Message string
	Ticker  string
}

func (StreamErrorEvent) Kind() Kind { return KindStreamError }

// UnknownEvent preserves an unclassifiable payload for diagnostics.
type UnknownEvent struct {
	Raw json.RawMessage
}

func (UnknownEvent) Kind() Kind { return KindUnknown }
