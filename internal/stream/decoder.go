package stream

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Decode turns a raw record into a typed event. It returns nil when the
// payload is not valid JSON; it never panics. Classification is purely
// field-presence based because the explicit type tag on the wire has
// proven unreliable. The predicate order below is load-bearing and
// mirrors the backend's emission shapes; first match wins.
func Decode(rec Record) Event {
	data := strings.TrimSpace(rec.Data)
	if data == "" || !gjson.Valid(data) {
		return nil
	}
	payload := gjson.Parse(data)

	// Nested envelope {event, data, id?}: unwrap to the inner object.
	if payload.Get("event").Exists() {
		if inner := payload.Get("data"); inner.IsObject() {
			payload = inner
		}
	}

	switch {
	case payload.Get("phase").Exists() && payload.Get("message").Exists() && payload.Get("tokens").Exists():
		return decodeThinking(payload)
	case payload.Get("agent").Exists() && payload.Get("summary").Exists():
		return decodeAgentComplete(payload)
	case payload.Get("agent").Exists() && payload.Get("agent_name").Exists():
		return AgentStartEvent{
			Agent:     payload.Get("agent").String(),
			AgentName: payload.Get("agent_name").String(),
		}
	case payload.Get("type").String() == "token" && payload.Get("agent").Exists() && payload.Get("text").Exists():
		return AgentTokenEvent{
			Agent: payload.Get("agent").String(),
			Text:  payload.Get("text").String(),
		}
	case payload.Get("round").Exists() && payload.Get("description").Exists():
		return RoundStartEvent{
			Round:       int(payload.Get("round").Int()),
			Description: payload.Get("description").String(),
		}
	case payload.Get("round").Exists() && payload.Get("statements").Exists():
		return decodeDebateRound(payload)
	case payload.Get("decision").Exists() && payload.Get("final_statement").Exists():
		return decodeDecision(payload)
	case payload.Get("agent").Exists() && payload.Get("error").Exists():
		return AgentErrorEvent{
			Agent:   payload.Get("agent").String(),
			Message: payload.Get("error").String(),
		}
	case payload.Get("message").Exists() && payload.Get("ticker").Exists() && !payload.Get("agent").Exists():
		return StreamErrorEvent{
			Message: payload.Get("message").String(),
			Ticker:  payload.Get("ticker").String(),
		}
	default:
		return UnknownEvent{Raw: json.RawMessage(payload.Raw)}
	}
}

func decodeThinking(payload gjson.Result) Event {
	ev := ThinkingEvent{
		Phase:   payload.Get("phase").String(),
		Message: payload.Get("message").String(),
		Agent:   payload.Get("agent").String(),
	}
	payload.Get("tokens").ForEach(func(_, tok gjson.Result) bool {
		ev.Tokens = append(ev.Tokens, tok.String())
		return true
	})
	return ev
}

// agentCardKeys are the well-known agent_complete fields; every other
// numeric field on the card is a domain metric and is kept verbatim.
var agentCardKeys = map[string]bool{
	"agent": true, "agent_name": true, "summary": true,
	"recommendation": true, "confidence": true, "sources": true,
	"type": true, "event": true, "id": true,
}

func decodeAgentComplete(payload gjson.Result) Event {
	ev := AgentCompleteEvent{
		Agent:          payload.Get("agent").String(),
		Summary:        payload.Get("summary").String(),
		Recommendation: payload.Get("recommendation").String(),
		Confidence:     payload.Get("confidence").Float(),
		RawCard:        json.RawMessage(payload.Raw),
	}
	payload.Get("sources").ForEach(func(_, src gjson.Result) bool {
		ev.Sources = append(ev.Sources, src.String())
		return true
	})
	payload.ForEach(func(key, value gjson.Result) bool {
		if agentCardKeys[key.String()] || value.Type != gjson.Number {
			return true
		}
		// Parse from the raw token so figures like price targets keep
		// their exact decimal representation.
		d, err := decimal.NewFromString(value.Raw)
		if err != nil {
			return true
		}
		if ev.Metrics == nil {
			ev.Metrics = make(map[string]decimal.Decimal)
		}
		ev.Metrics[key.String()] = d
		return true
	})
	return ev
}

func decodeDebateRound(payload gjson.Result) Event {
	ev := DebateRoundEvent{Round: int(payload.Get("round").Int())}
	payload.Get("statements").ForEach(func(key, value gjson.Result) bool {
		if ev.Statements == nil {
			ev.Statements = make(map[string]string)
		}
		ev.Statements[key.String()] = value.String()
		return true
	})
	return ev
}

func decodeDecision(payload gjson.Result) Event {
	ev := DecisionEvent{
		Ticker:           payload.Get("ticker").String(),
		Decision:         payload.Get("decision").String(),
		Confidence:       payload.Get("confidence").Float(),
		ConsensusReached: payload.Get("consensus_reached").Bool(),
		FinalStatement:   payload.Get("final_statement").String(),
		RawCard:          json.RawMessage(payload.Raw),
	}
	payload.Get("per_agent_votes").ForEach(func(key, value gjson.Result) bool {
		if ev.PerAgentVotes == nil {
			ev.PerAgentVotes = make(map[string]string)
		}
		ev.PerAgentVotes[key.String()] = value.String()
		return true
	})
	return ev
}
