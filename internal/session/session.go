package session

import (
	"time"

	"github.com/qmuntal/stateless"
	"github.com/sandevgo/chorus/internal/core"
)

// Lock states. The advisory lock is an explicit two-state machine rather
// than a bare flag: the only legal transitions are Idle → Processing on
// acquire and Processing → Idle on release, and an acquire attempted from
// Processing is rejected.
const (
	stateIdle       = "idle"
	stateProcessing = "processing"

	triggerAcquire = "acquire"
	triggerRelease = "release"
)

// Config is the session-creation configuration. SystemPrompt is the static
// persona prompt; it is stored as-is and never mutated by per-turn context
// injection.
type Config struct {
	SystemPrompt string
}

// Session is the in-memory conversational state for one (user, persona)
// pair. It is owned exclusively by the Store; in-flight turns hold a
// reference, never a copy. All mutation goes through Store methods, which
// serialize access under the store mutex.
type Session struct {
	ID           string
	UserID       string
	Persona      string
	Messages     []core.Message
	Config       Config
	LastActiveAt time.Time

	plan []core.PlanStep
	lock *stateless.StateMachine
}

func newSession(id string, cfg Config) *Session {
	s := &Session{
		ID:           id,
		Config:       cfg,
		LastActiveAt: time.Now(),
		lock:         newLockMachine(),
	}
	if cfg.SystemPrompt != "" {
		s.Messages = []core.Message{{Role: core.RoleSystem, Content: cfg.SystemPrompt}}
	}
	return s
}

func newLockMachine() *stateless.StateMachine {
	sm := stateless.NewStateMachine(stateIdle)
	sm.Configure(stateIdle).Permit(triggerAcquire, stateProcessing)
	sm.Configure(stateProcessing).Permit(triggerRelease, stateIdle)
	return sm
}

func (s *Session) processing() bool {
	return s.lock.MustState() == stateProcessing
}

// Plan and SetPlan implement core.SessionRef for session-scoped tools.
func (s *Session) Plan() []core.PlanStep {
	out := make([]core.PlanStep, len(s.plan))
	copy(out, s.plan)
	return out
}

func (s *Session) SetPlan(steps []core.PlanStep) {
	s.plan = steps
}
