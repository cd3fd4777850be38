package analysis

import (
	"github.com/shopspring/decimal"

	"kaivest/internal/stream"
)

// Apply folds one decoded event into the aggregate and returns the next
// state. It never mutates its input. Unknown events and in-band error
// events are no-ops; the latter are the coordinator's problem, not the
// aggregate's.
//
// After the decision lands the aggregate is terminal: a repeated
// decision event is absorbed without effect (idempotent), and any other
// mutating event is dropped and counted in DroppedEvents.
func Apply(s State, ev stream.Event) State {
	if ev == nil {
		return s
	}
	switch ev.(type) {
	case stream.UnknownEvent, stream.StreamErrorEvent:
		return s
	}

	if s.Terminal() {
		if _, ok := ev.(stream.DecisionEvent); ok {
			return s
		}
		next := s.Clone()
		next.DroppedEvents++
		return next
	}

	next := s.Clone()
	switch e := ev.(type) {
	case stream.ThinkingEvent:
		next.Thinking = append(next.Thinking, Thought{
			Phase:   e.Phase,
			Message: e.Message,
			Tokens:  append([]string(nil), e.Tokens...),
		})
		if e.Phase == "debate" && next.Phase < PhaseRound2 {
			next.Phase = PhaseRound2
		}
		if e.Agent != "" {
			ag := next.ensureAgent(e.Agent)
			ag.Thoughts = append(ag.Thoughts, e.Message)
			next.Agents[e.Agent] = ag
		}

	case stream.AgentStartEvent:
		if next.Phase == PhaseIdle {
			next.Phase = PhaseRound1
		}
		ag := next.ensureAgent(e.Agent)
		if e.AgentName != "" {
			ag.Name = e.AgentName
		}
		if ag.Stage == StageIdle {
			ag.Stage = StageActive
		}
		if ag.Stage == StageActive {
			if next.Phase >= PhaseRound2 {
				ag.Round = 2
			} else {
				ag.Round = 1
			}
		}
		next.Agents[e.Agent] = ag

	case stream.AgentTokenEvent:
		ag, ok := next.Agents[e.Agent]
		if !ok || ag.Stage != StageActive {
			return s
		}
		ag.Text += e.Text
		next.Agents[e.Agent] = ag

	case stream.AgentCompleteEvent:
		ag := next.ensureAgent(e.Agent)
		if ag.Stage == StageError {
			return s
		}
		ag.Stage = StageComplete
		ag.Text = e.Summary
		ag.Recommendation = e.Recommendation
		ag.Confidence = e.Confidence
		ag.Sources = append([]string(nil), e.Sources...)
		if e.Metrics != nil {
			ag.Metrics = make(map[string]decimal.Decimal, len(e.Metrics))
			for k, v := range e.Metrics {
				ag.Metrics[k] = v
			}
		}
		ag.RawCard = e.RawCard
		next.Agents[e.Agent] = ag

	case stream.AgentErrorEvent:
		ag := next.ensureAgent(e.Agent)
		if ag.Stage == StageComplete {
			return s
		}
		ag.Stage = StageError
		ag.Err = e.Message
		next.Agents[e.Agent] = ag

	case stream.RoundStartEvent:
		target := PhaseRound1
		if e.Round >= 2 {
			target = PhaseRound2
		}
		if next.Phase < target {
			next.Phase = target
		}

	case stream.DebateRoundEvent:
		if len(next.Rounds) > 0 && e.Round <= next.Rounds[len(next.Rounds)-1].Round {
			return s
		}
		stmts := make(map[string]string, len(e.Statements))
		for k, v := range e.Statements {
			stmts[k] = v
		}
		next.Rounds = append(next.Rounds, Round{Round: e.Round, Statements: stmts})
		if e.Round >= 2 && next.Phase < PhaseRound2 {
			next.Phase = PhaseRound2
		}

	case stream.DecisionEvent:
		votes := make(map[string]string, len(e.PerAgentVotes))
		for k, v := range e.PerAgentVotes {
			votes[k] = v
		}
		next.Decision = &DecisionResult{
			Ticker:           e.Ticker,
			Decision:         e.Decision,
			Confidence:       e.Confidence,
			ConsensusReached: e.ConsensusReached,
			FinalStatement:   e.FinalStatement,
			PerAgentVotes:    votes,
			RawCard:          e.RawCard,
		}
		next.Phase = PhaseDecision

	default:
		return s
	}
	return next
}

func (s *State) ensureAgent(id string) AgentState {
	ag, ok := s.Agents[id]
	if !ok {
		s.AgentOrder = append(s.AgentOrder, id)
	}
	return ag
}
