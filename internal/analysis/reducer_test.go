package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kaivest/internal/stream"
)

func fold(s State, evs ...stream.Event) State {
	for _, ev := range evs {
		s = Apply(s, ev)
	}
	return s
}

func TestSummarySupersedesStreamedTokens(t *testing.T) {
	s := fold(NewState(),
		stream.AgentStartEvent{Agent: "fundamental", AgentName: "Fundamental Analyst"},
		stream.AgentTokenEvent{Agent: "fundamental", Text: "Rev"},
		stream.AgentTokenEvent{Agent: "fundamental", Text: "enue up"},
		stream.AgentCompleteEvent{Agent: "fundamental", Summary: "Revenue grew 12%."},
	)
	ag := s.Agents["fundamental"]
	assert.Equal(t, StageComplete, ag.Stage)
	assert.Equal(t, "Revenue grew 12%.", ag.Text)
}

func TestInterruptedStreamKeepsTokenConcatenation(t *testing.T) {
	s := fold(NewState(),
		stream.AgentStartEvent{Agent: "sentiment"},
		stream.AgentTokenEvent{Agent: "sentiment", Text: "Crowd "},
		stream.AgentTokenEvent{Agent: "sentiment", Text: "is "},
		stream.AgentTokenEvent{Agent: "sentiment", Text: "euphoric"},
	)
	ag := s.Agents["sentiment"]
	assert.Equal(t, StageActive, ag.Stage)
	assert.Equal(t, "Crowd is euphoric", ag.Text)
}

func TestTokensForInactiveAgentIgnored(t *testing.T) {
	s := fold(NewState(),
		stream.AgentTokenEvent{Agent: "ghost", Text: "boo"},
	)
	assert.NotContains(t, s.Agents, "ghost")

	s = fold(s,
		stream.AgentStartEvent{Agent: "fundamental"},
		stream.AgentCompleteEvent{Agent: "fundamental", Summary: "done"},
		stream.AgentTokenEvent{Agent: "fundamental", Text: "late token"},
	)
	assert.Equal(t, "done", s.Agents["fundamental"].Text)
}

func TestDecisionIsIdempotent(t *testing.T) {
	dec := stream.DecisionEvent{
		Ticker:         "AAPL",
		Decision:       "buy",
		Confidence:     0.82,
		FinalStatement: "Strong growth.",
	}
	once := fold(NewState(), dec)
	twice := fold(once, dec)
	assert.Equal(t, once, twice)
}

func TestDuplicateDebateRoundDropped(t *testing.T) {
	r2 := stream.DebateRoundEvent{Round: 2, Statements: map[string]string{"fundamental": "buy"}}
	s := fold(NewState(),
		stream.DebateRoundEvent{Round: 1, Statements: map[string]string{"fundamental": "hold"}},
		r2, r2,
	)
	require.Len(t, s.Rounds, 2)
	assert.Equal(t, 1, s.Rounds[0].Round)
	assert.Equal(t, 2, s.Rounds[1].Round)
}

func TestOutOfOrderRoundDropped(t *testing.T) {
	s := fold(NewState(),
		stream.DebateRoundEvent{Round: 2, Statements: map[string]string{}},
		stream.DebateRoundEvent{Round: 1, Statements: map[string]string{}},
	)
	require.Len(t, s.Rounds, 1)
	assert.Equal(t, 2, s.Rounds[0].Round)
}

func TestDecisionDoesNotForceCompletePendingAgents(t *testing.T) {
	s := fold(NewState(),
		stream.AgentStartEvent{Agent: "sentiment"},
		stream.DecisionEvent{Ticker: "AAPL", Decision: "buy", Confidence: 0.82, FinalStatement: "..."},
	)
	assert.Equal(t, PhaseDecision, s.Phase)
	require.NotNil(t, s.Decision)
	// Deliberate: pending agents keep their observed state.
	assert.Equal(t, StageActive, s.Agents["sentiment"].Stage)
}

func TestPostTerminalMutationsCounted(t *testing.T) {
	s := fold(NewState(),
		stream.DecisionEvent{Ticker: "AAPL", Decision: "hold", FinalStatement: "..."},
	)
	s = fold(s,
		stream.AgentTokenEvent{Agent: "fundamental", Text: "late"},
		stream.AgentStartEvent{Agent: "valuation"},
	)
	assert.Equal(t, 2, s.DroppedEvents)
	assert.NotContains(t, s.Agents, "valuation")
}

func TestThinkingAdvancesPhaseToRound2(t *testing.T) {
	s := fold(NewState(),
		stream.AgentStartEvent{Agent: "fundamental"},
	)
	assert.Equal(t, PhaseRound1, s.Phase)

	s = fold(s, stream.ThinkingEvent{Phase: "debate", Message: "starting cross-talk", Tokens: []string{"starting"}})
	assert.Equal(t, PhaseRound2, s.Phase)
	require.Len(t, s.Thinking, 1)
	assert.Equal(t, "starting cross-talk", s.Thinking[0].Message)

	// Agents started during the debate belong to round 2.
	s = fold(s, stream.AgentStartEvent{Agent: "sentiment"})
	assert.Equal(t, 2, s.Agents["sentiment"].Round)
}

func TestThinkingWithAgentFeedsWorkerTrace(t *testing.T) {
	s := fold(NewState(),
		stream.ThinkingEvent{Phase: "analysis", Message: "checking filings", Tokens: nil, Agent: "fundamental"},
	)
	require.Contains(t, s.Agents, "fundamental")
	assert.Equal(t, []string{"checking filings"}, s.Agents["fundamental"].Thoughts)
}

func TestAgentErrorIsolated(t *testing.T) {
	s := fold(NewState(),
		stream.AgentStartEvent{Agent: "fundamental"},
		stream.AgentStartEvent{Agent: "sentiment"},
		stream.AgentErrorEvent{Agent: "sentiment", Message: "model timeout"},
	)
	assert.Equal(t, StageError, s.Agents["sentiment"].Stage)
	assert.Equal(t, "model timeout", s.Agents["sentiment"].Err)
	assert.Equal(t, StageActive, s.Agents["fundamental"].Stage)
}

func TestApplyNeverMutatesInput(t *testing.T) {
	before := fold(NewState(),
		stream.AgentStartEvent{Agent: "fundamental"},
		stream.AgentTokenEvent{Agent: "fundamental", Text: "Rev"},
	)
	snapshot := before.Clone()
	_ = fold(before,
		stream.AgentTokenEvent{Agent: "fundamental", Text: "enue"},
		stream.DecisionEvent{Ticker: "AAPL", Decision: "buy", FinalStatement: "..."},
	)
	assert.Equal(t, snapshot, before)
}

func TestErrorAndUnknownEventsAreNoOps(t *testing.T) {
	base := fold(NewState(), stream.AgentStartEvent{Agent: "fundamental"})
	after := fold(base,
		stream.StreamErrorEvent{Message: "oops", Ticker: "AAPL"},
		stream.UnknownEvent{},
	)
	assert.Equal(t, base, after)
}

func TestRoundStartAdvancesPhaseMonotonically(t *testing.T) {
	s := fold(NewState(), stream.RoundStartEvent{Round: 1, Description: "independent analysis"})
	assert.Equal(t, PhaseRound1, s.Phase)
	s = fold(s, stream.RoundStartEvent{Round: 2, Description: "rebuttals"})
	assert.Equal(t, PhaseRound2, s.Phase)
	// Never regresses.
	s = fold(s, stream.RoundStartEvent{Round: 1, Description: "replay"})
	assert.Equal(t, PhaseRound2, s.Phase)
}
