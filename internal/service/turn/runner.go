// Package turn orchestrates one conversational exchange: resolve the
// persona, lock the session, retrieve context, assemble the prompt, run
// the model/tool loop under the persona's queue slot, then commit the
// result to the session and storage.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sandevgo/chorus/internal/core"
	"github.com/sandevgo/chorus/internal/queue"
	"github.com/sandevgo/chorus/internal/service/agent"
	"github.com/sandevgo/chorus/internal/service/prompt"
	"github.com/sandevgo/chorus/internal/session"
	"github.com/sandevgo/chorus/pkg/log"
)

var (
	ErrEmptyUserID    = errors.New("user id is required")
	ErrEmptyMessage   = errors.New("message is required")
	ErrUnknownPersona = errors.New("unknown persona")
	// ErrSessionBusy means the session is already processing a turn; the
	// caller should retry once the in-flight turn finishes.
	ErrSessionBusy = errors.New("session is busy")
	// ErrModelFailure wraps provider errors so transports can map them to
	// an upstream-failure status.
	ErrModelFailure = errors.New("model request failed")
)

type Request struct {
	UserID    string
	Persona   string
	Message   string
	SessionID string // optional; defaults to the (user, persona) session
}

type Response struct {
	Reply      string
	SessionID  string
	Persona    string // display name
	QueueDepth int
}

// Retriever is the read side of the retrieval index.
type Retriever interface {
	SearchContext(ctx context.Context, query string, limit int, threshold float32) []core.ContextItem
	SearchKnowledge(ctx context.Context, topics []string, limit int, threshold float32) []core.ContextItem
}

// ProviderResolver hands out the chat client bound to a persona.
type ProviderResolver interface {
	ProviderFor(ctx context.Context, persona core.Persona) (core.AIProvider, error)
}

// Saver persists a finished turn. May be nil-checked through the
// Runner's field; persistence failures never fail the turn.
type Saver interface {
	Save(ctx context.Context, s *session.Session) error
}

type Config struct {
	RetrievalLimit     int
	RetrievalThreshold float32
}

type Runner struct {
	personas  map[string]core.Persona
	providers ProviderResolver
	store     *session.Store
	queue     *queue.Queue
	assembler *prompt.Assembler
	retriever Retriever
	agent     *agent.Agent
	saver     Saver
	cfg       Config
}

func NewRunner(
	personas []core.Persona,
	providers ProviderResolver,
	store *session.Store,
	q *queue.Queue,
	assembler *prompt.Assembler,
	retriever Retriever,
	ag *agent.Agent,
	saver Saver,
	cfg Config,
) *Runner {
	byName := make(map[string]core.Persona, len(personas))
	for _, p := range personas {
		byName[p.Name] = p
	}
	return &Runner{
		personas:  byName,
		providers: providers,
		store:     store,
		queue:     q,
		assembler: assembler,
		retriever: retriever,
		agent:     ag,
		saver:     saver,
		cfg:       cfg,
	}
}

// Personas lists the registered personas in no particular order.
func (r *Runner) Personas() []core.Persona {
	out := make([]core.Persona, 0, len(r.personas))
	for _, p := range r.personas {
		out = append(out, p)
	}
	return out
}

// Run executes one turn. Concurrent turns against the same session are
// rejected with ErrSessionBusy; turns against the same persona from
// different sessions queue up and run one at a time.
func (r *Runner) Run(ctx context.Context, req Request) (Response, error) {
	userID := strings.TrimSpace(req.UserID)
	message := strings.TrimSpace(req.Message)
	if userID == "" {
		return Response{}, ErrEmptyUserID
	}
	if message == "" {
		return Response{}, ErrEmptyMessage
	}

	persona, ok := r.personas[req.Persona]
	if !ok {
		return Response{}, fmt.Errorf("%w: %q", ErrUnknownPersona, req.Persona)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = userID + ":" + persona.Name
	}

	logger := log.FromCtx(ctx).With().
		Str("turn_id", uuid.NewString()).
		Str("session_id", sessionID).
		Str("persona", persona.Name).
		Logger()
	ctx = logger.WithContext(ctx)

	if !r.store.TryLock(sessionID) {
		return Response{}, fmt.Errorf("%w: %s", ErrSessionBusy, sessionID)
	}
	defer r.store.Unlock(sessionID)

	s := r.store.GetOrCreate(sessionID, session.Config{SystemPrompt: persona.SystemPrompt})
	if s.UserID == "" {
		s.UserID = userID
	}
	s.Persona = persona.Name

	provider, err := r.providers.ProviderFor(ctx, persona)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrModelFailure, err)
	}

	memories := r.retriever.SearchContext(ctx, message, r.cfg.RetrievalLimit, r.cfg.RetrievalThreshold)
	memories = append(memories, r.retriever.SearchKnowledge(ctx, []string{message}, r.cfg.RetrievalLimit, r.cfg.RetrievalThreshold)...)

	assembled := r.assembler.Assemble(ctx, s.Messages, persona, memories, message)

	tc := core.ToolContext{
		SessionID: sessionID,
		UserID:    userID,
		Session:   s,
	}

	var produced []core.Message
	var reply string
	err = r.queue.Do(ctx, persona.Name, func(ctx context.Context) error {
		var runErr error
		produced, reply, runErr = r.agent.Run(ctx, provider, assembled, tc)
		return runErr
	})
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrModelFailure, err)
	}

	history := make([]core.Message, 0, len(s.Messages)+1+len(produced))
	history = append(history, s.Messages...)
	history = append(history, core.Message{Role: core.RoleUser, Content: message})
	history = append(history, produced...)
	r.store.UpdateHistory(sessionID, history)

	if r.saver != nil {
		if err := r.saver.Save(ctx, s); err != nil {
			logger.Error().Err(err).Msg("failed to persist conversation")
		}
	}

	logger.Info().
		Int("history_len", len(history)).
		Int("produced", len(produced)).
		Msg("turn completed")

	return Response{
		Reply:      reply,
		SessionID:  sessionID,
		Persona:    persona.DisplayName,
		QueueDepth: r.queue.Len(persona.Name),
	}, nil
}
