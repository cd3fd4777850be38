package analysis

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Phase tracks pipeline progress. It only ever advances.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRound1
	PhaseRound2
	PhaseDecision
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRound1:
		return "round1"
	case PhaseRound2:
		return "round2"
	case PhaseDecision:
		return "decision"
	default:
		return "unknown"
	}
}

// Stage is a worker's lifecycle: idle -> active -> {complete|error}.
// Transitions are monotonic; a finished worker never reopens.
type Stage int

const (
	StageIdle Stage = iota
	StageActive
	StageComplete
	StageError
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageActive:
		return "active"
	case StageComplete:
		return "complete"
	case StageError:
		return "error"
	default:
		return "unknown"
	}
}

// AgentState is one specialist worker's folded view. Text is append-only
// while the worker streams; agent_complete replaces it with the summary.
type AgentState struct {
	Name           string
	Stage          Stage
	Round          int
	Text           string
	Thoughts       []string
	Err            string
	Recommendation string
	Confidence     float64
	Sources        []string
	Metrics        map[string]decimal.Decimal
	RawCard        json.RawMessage
}

func (a AgentState) clone() AgentState {
	out := a
	out.Thoughts = append([]string(nil), a.Thoughts...)
	out.Sources = append([]string(nil), a.Sources...)
	if a.Metrics != nil {
		out.Metrics = make(map[string]decimal.Decimal, len(a.Metrics))
		for k, v := range a.Metrics {
			out.Metrics[k] = v
		}
	}
	return out
}

// Round holds one debate round's per-worker statements.
type Round struct {
	Round      int
	Statements map[string]string
}

// Thought is one entry of the orchestrator-level reasoning trace.
type Thought struct {
	Phase   string
	Message string
	Tokens  []string
}

// DecisionResult is the terminal verdict. Once set, the aggregate stops
// mutating.
type DecisionResult struct {
	Ticker           string
	Decision         string
	Confidence       float64
	ConsensusReached bool
	FinalStatement   string
	PerAgentVotes    map[string]string
	RawCard          json.RawMessage
}

// State is the UI-agnostic aggregate folded from the event sequence.
// DroppedEvents counts mutating events that arrived after the decision;
// it is the observable flag for a misbehaving upstream, and the only
// field that moves once the state is terminal.
type State struct {
	Phase         Phase
	Agents        map[string]AgentState
	AgentOrder    []string
	Rounds        []Round
	Thinking      []Thought
	Decision      *DecisionResult
	DroppedEvents int
}

func NewState() State {
	return State{Agents: make(map[string]AgentState)}
}

// Terminal reports whether the decision has landed.
func (s State) Terminal() bool { return s.Decision != nil }

// Clone deep-copies the aggregate so consumers can hold snapshots while
// the fold keeps moving.
func (s State) Clone() State {
	out := s
	out.Agents = make(map[string]AgentState, len(s.Agents))
	for id, ag := range s.Agents {
		out.Agents[id] = ag.clone()
	}
	out.AgentOrder = append([]string(nil), s.AgentOrder...)
	if s.Rounds != nil {
		out.Rounds = make([]Round, len(s.Rounds))
		for i, r := range s.Rounds {
			stmts := make(map[string]string, len(r.Statements))
			for k, v := range r.Statements {
				stmts[k] = v
			}
			out.Rounds[i] = Round{Round: r.Round, Statements: stmts}
		}
	}
	if s.Thinking != nil {
		out.Thinking = make([]Thought, len(s.Thinking))
		for i, th := range s.Thinking {
			out.Thinking[i] = Thought{
				Phase:   th.Phase,
				Message: th.Message,
				Tokens:  append([]string(nil), th.Tokens...),
			}
		}
	}
	if s.Decision != nil {
		d := *s.Decision
		if s.Decision.PerAgentVotes != nil {
			d.PerAgentVotes = make(map[string]string, len(s.Decision.PerAgentVotes))
			for k, v := range s.Decision.PerAgentVotes {
				d.PerAgentVotes[k] = v
			}
		}
		out.Decision = &d
	}
	return out
}
