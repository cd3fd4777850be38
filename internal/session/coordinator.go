package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"kaivest/internal/analysis"
	"kaivest/internal/logger"
	"kaivest/internal/retry"
	"kaivest/internal/stream"
)

// Status is the coordinator's connection state machine.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusStreaming
	StatusRetrying
	StatusTerminalSuccess
	StatusTerminalError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusStreaming:
		return "streaming"
	case StatusRetrying:
		return "retrying"
	case StatusTerminalSuccess:
		return "terminal_success"
	case StatusTerminalError:
		return "terminal_error"
	default:
		return "unknown"
	}
}

// Saver persists the terminal decision. Invoked fire-and-forget: a save
// failure is logged and never affects session state.
type Saver interface {
	SaveAnalysis(ctx context.Context, sessionID string, res analysis.DecisionResult) error
}

// Journal captures raw wire records for later replay. Best-effort.
type Journal interface {
	Append(sessionID string, seq int, rec stream.Record) error
}

// CardValidator checks an agent's structured result card against its
// roster schema. Advisory: a failing card is logged, never dropped.
type CardValidator interface {
	ValidateCard(agentID string, card []byte) error
}

type Options struct {
	Transport         Transport
	Policy            *retry.Policy
	InactivityTimeout time.Duration
	OnUpdate          func(analysis.State)
	Saver             Saver
	Journal           Journal
	Cards             CardValidator
}

const DefaultInactivityTimeout = 120 * time.Second

var errInactivity = errors.New("stream inactive past deadline")

// Coordinator owns one analysis session: it drives the transport,
// pipes bytes through parser -> decoder -> reducer, applies the retry
// policy, and hands out read-only snapshots of the folded state.
// Exactly one read loop runs at a time.
type Coordinator struct {
	id   string
	req  StreamRequest
	opts Options

	mu       sync.Mutex
	status   Status
	state    analysis.State
	attempts int // rate_limit / server_error failures so far
	lost     int // connection_lost failures, tracked separately
	seq      int
	lastErr  error
	lastKind retry.Kind
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewCoordinator(req StreamRequest, opts Options) *Coordinator {
	if opts.Policy == nil {
		opts.Policy = retry.NewPolicy()
	}
	if opts.InactivityTimeout <= 0 {
		opts.InactivityTimeout = DefaultInactivityTimeout
	}
	return &Coordinator{
		id:     uuid.NewString(),
		req:    req,
		opts:   opts,
		status: StatusIdle,
		state:  analysis.NewState(),
	}
}

func (c *Coordinator) ID() string { return c.id }

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Snapshot returns a deep copy of the folded analysis state.
func (c *Coordinator) Snapshot() analysis.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Failure reports the terminal failure classification and error, if
// any. The UI picks its recovery affordance off the kind (retry button
// for retryable kinds, reauthentication prompt for auth_expired).
func (c *Coordinator) Failure() (retry.Kind, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastKind, c.lastErr
}

// Run drives the session to a terminal state or cancellation. Blocking;
// callers wanting a goroutine use Start.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		c.setStatus(StatusConnecting)
		events, err := c.streamOnce(ctx)
		if err == nil {
			c.setStatus(StatusTerminalSuccess)
			return nil
		}
		if ctx.Err() != nil {
			// User cancel: discard any pending retry, go quiet.
			c.setStatus(StatusIdle)
			return ctx.Err()
		}
		kind := classifyErr(err)
		attempt := c.bumpAttempt(kind)
		if !c.opts.Policy.ShouldRetry(kind, attempt) {
			c.failTerminal(kind, err)
			return err
		}
		delay := c.opts.Policy.Delay(kind, attempt)
		logger.Warnf("session %s: %s (%v), reconnect %d in %s", c.id, kind, err, attempt, delay)
		if events == 0 {
			// Nothing folded from the failed attempt, safe to start
			// the aggregate over. Otherwise it survives the reconnect.
			c.resetAggregate()
		}
		c.setStatus(StatusRetrying)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.setStatus(StatusIdle)
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Start runs the loop in its own goroutine; Cancel stops it
// cooperatively and waits for the loop to exit.
func (c *Coordinator) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()
	go func() {
		defer close(done)
		if err := c.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Debugf("session %s ended: %v", c.id, err)
		}
	}()
}

func (c *Coordinator) Cancel() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Done is closed once a Start-ed loop has exited.
func (c *Coordinator) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Retry restarts a terminal session on user request: clean aggregate,
// fresh attempt counters.
func (c *Coordinator) Retry(ctx context.Context) error {
	c.mu.Lock()
	c.attempts = 0
	c.lost = 0
	c.seq = 0
	c.lastErr = nil
	c.lastKind = retry.KindUnknown
	c.state = analysis.NewState()
	c.mu.Unlock()
	return c.Run(ctx)
}

// streamOnce performs one connect-and-read attempt. A nil error means
// the stream ended cleanly (EOF or decision); events is the number of
// decoded events folded during the attempt.
func (c *Coordinator) streamOnce(ctx context.Context) (int, error) {
	attemptCtx, cancelAttempt := context.WithCancel(ctx)
	defer cancelAttempt()

	var timedOut atomic.Bool
	watchdog := time.AfterFunc(c.opts.InactivityTimeout, func() {
		timedOut.Store(true)
		cancelAttempt()
	})
	defer watchdog.Stop()

	body, err := c.opts.Transport.Open(attemptCtx, c.req)
	if err != nil {
		if timedOut.Load() {
			return 0, errInactivity
		}
		return 0, err
	}
	defer body.Close()
	c.setStatus(StatusStreaming)

	parser := stream.NewParser()
	events := 0
	buf := make([]byte, 4096)
	for {
		if attemptCtx.Err() != nil {
			if timedOut.Load() {
				return events, errInactivity
			}
			return events, attemptCtx.Err()
		}
		n, rerr := body.Read(buf)
		if n > 0 {
			watchdog.Reset(c.opts.InactivityTimeout)
			for _, rec := range parser.Feed(string(buf[:n])) {
				terminal, fault := c.handleRecord(rec, &events)
				if fault != nil {
					return events, fault
				}
				if terminal {
					return events, nil
				}
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				for _, rec := range parser.Flush() {
					terminal, fault := c.handleRecord(rec, &events)
					if fault != nil {
						return events, fault
					}
					if terminal {
						return events, nil
					}
				}
				return events, nil
			}
			if timedOut.Load() {
				return events, errInactivity
			}
			return events, rerr
		}
	}
}

// handleRecord journals, decodes and folds one wire record. A malformed
// record is logged and skipped; one bad record never kills a session.
func (c *Coordinator) handleRecord(rec stream.Record, events *int) (terminal bool, fault error) {
	c.seq++
	if c.opts.Journal != nil {
		if err := c.opts.Journal.Append(c.id, c.seq, rec); err != nil {
			logger.Debugf("session %s: journal append: %v", c.id, err)
		}
	}
	ev := stream.Decode(rec)
	if ev == nil {
		logger.Warnf("session %s: skipping malformed record (event=%q, %d bytes)", c.id, rec.Event, len(rec.Data))
		return false, nil
	}
	if e, ok := ev.(stream.StreamErrorEvent); ok {
		return false, &StreamFault{Message: e.Message, Ticker: e.Ticker}
	}
	if e, ok := ev.(stream.AgentCompleteEvent); ok && c.opts.Cards != nil && len(e.RawCard) > 0 {
		if err := c.opts.Cards.ValidateCard(e.Agent, e.RawCard); err != nil {
			logger.Warnf("session %s: %s result card: %v", c.id, e.Agent, err)
		}
	}

	*events++
	c.mu.Lock()
	c.state = analysis.Apply(c.state, ev)
	snap := c.state.Clone()
	c.mu.Unlock()
	if c.opts.OnUpdate != nil {
		c.opts.OnUpdate(snap)
	}

	if _, ok := ev.(stream.DecisionEvent); ok {
		c.persistDecision()
		return true, nil
	}
	return false, nil
}

func (c *Coordinator) persistDecision() {
	if c.opts.Saver == nil {
		return
	}
	c.mu.Lock()
	var res *analysis.DecisionResult
	if c.state.Decision != nil {
		res = c.state.Clone().Decision
	}
	c.mu.Unlock()
	if res == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.opts.Saver.SaveAnalysis(ctx, c.id, *res); err != nil {
			logger.Warnf("session %s: save analysis: %v", c.id, err)
		}
	}()
}

func (c *Coordinator) resetAggregate() {
	c.mu.Lock()
	c.state = analysis.NewState()
	snap := c.state.Clone()
	c.mu.Unlock()
	if c.opts.OnUpdate != nil {
		c.opts.OnUpdate(snap)
	}
}

func (c *Coordinator) bumpAttempt(kind retry.Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if kind == retry.KindConnectionLost {
		c.lost++
		return c.lost
	}
	c.attempts++
	return c.attempts
}

func (c *Coordinator) setStatus(to Status) {
	c.mu.Lock()
	from := c.status
	c.status = to
	c.mu.Unlock()
	if from != to {
		logger.Debugf("session %s: %s -> %s", c.id, from, to)
	}
}

func (c *Coordinator) failTerminal(kind retry.Kind, err error) {
	c.mu.Lock()
	c.lastKind = kind
	c.lastErr = err
	c.mu.Unlock()
	c.setStatus(StatusTerminalError)
	logger.Errorf("session %s: terminal %s: %v", c.id, kind, err)
}

func classifyErr(err error) retry.Kind {
	var se *StatusError
	if errors.As(err, &se) {
		return retry.Classify(se.Status, nil)
	}
	var sf *StreamFault
	if errors.As(err, &sf) {
		return retry.KindUnknown
	}
	return retry.Classify(0, err)
}
