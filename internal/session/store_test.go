package session

import (
	"testing"
	"time"

	"github.com/sandevgo/chorus/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateSeedsSystemPrompt(t *testing.T) {
	st := NewStore(0, 0)

	s := st.GetOrCreate("u1:muse", Config{SystemPrompt: "You are Muse."})
	require.Len(t, s.Messages, 1)
	assert.Equal(t, core.RoleSystem, s.Messages[0].Role)
	assert.Equal(t, "You are Muse.", s.Messages[0].Content)

	again := st.GetOrCreate("u1:muse", Config{SystemPrompt: "You are Muse."})
	assert.Same(t, s, again)
	assert.Len(t, again.Messages, 1)
}

func TestGetOrCreateReplacesDifferingSystemPrompt(t *testing.T) {
	st := NewStore(0, 0)

	s := st.GetOrCreate("u1:muse", Config{SystemPrompt: "old prompt"})
	s.Messages = append(s.Messages, core.Message{Role: core.RoleUser, Content: "hi"})

	st.GetOrCreate("u1:muse", Config{SystemPrompt: "new prompt"})
	require.Len(t, s.Messages, 2)
	assert.Equal(t, core.RoleSystem, s.Messages[0].Role)
	assert.Equal(t, "new prompt", s.Messages[0].Content)
	assert.Equal(t, "hi", s.Messages[1].Content)
}

func TestGetOrCreateInsertsSystemPromptWhenMissing(t *testing.T) {
	st := NewStore(0, 0)

	s := st.GetOrCreate("u1:muse", Config{})
	require.Empty(t, s.Messages)
	s.Messages = []core.Message{{Role: core.RoleUser, Content: "hi"}}

	st.GetOrCreate("u1:muse", Config{SystemPrompt: "prompt"})
	require.Len(t, s.Messages, 2)
	assert.Equal(t, core.RoleSystem, s.Messages[0].Role)
	assert.Equal(t, core.RoleUser, s.Messages[1].Role)
}

func TestTryLockSemantics(t *testing.T) {
	st := NewStore(0, 0)
	st.GetOrCreate("s1", Config{})

	assert.True(t, st.TryLock("s1"), "unlocked session must be lockable")
	assert.False(t, st.TryLock("s1"), "second TryLock before Unlock must fail")

	st.Unlock("s1")
	assert.True(t, st.TryLock("s1"), "TryLock after Unlock must succeed")
}

func TestTryLockAbsentSessionCreatesHeld(t *testing.T) {
	st := NewStore(0, 0)

	require.True(t, st.TryLock("u1:muse"))
	assert.Equal(t, 1, st.Len(), "first acquire creates the session")

	// The first turn's acquisition must hold across session configuration:
	// a concurrent acquire before Unlock is rejected.
	st.GetOrCreate("u1:muse", Config{SystemPrompt: "p"})
	assert.False(t, st.TryLock("u1:muse"), "second TryLock before Unlock must fail")

	st.Unlock("u1:muse")
	assert.True(t, st.TryLock("u1:muse"))
}

func TestUnlockAbsentSessionIsNoOp(t *testing.T) {
	st := NewStore(0, 0)
	st.Unlock("missing")
	assert.Equal(t, 0, st.Len())
}

func TestUnlockIdleSessionIsNoOp(t *testing.T) {
	st := NewStore(0, 0)
	st.GetOrCreate("s1", Config{})
	st.Unlock("s1")
	assert.True(t, st.TryLock("s1"))
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	st := NewStore(50*time.Millisecond, time.Hour)

	st.GetOrCreate("stale", Config{})
	fresh := st.GetOrCreate("fresh", Config{})

	stale, _ := st.Get("stale")
	stale.LastActiveAt = time.Now().Add(-time.Minute)

	evicted := st.sweep()
	assert.Equal(t, 1, evicted)

	_, ok := st.Get("stale")
	assert.False(t, ok)
	got, ok := st.Get("fresh")
	require.True(t, ok)
	assert.Same(t, fresh, got)
}

func TestSweepSkipsProcessingSessions(t *testing.T) {
	st := NewStore(50*time.Millisecond, time.Hour)

	s := st.GetOrCreate("busy", Config{})
	require.True(t, st.TryLock("busy"))
	s.LastActiveAt = time.Now().Add(-time.Minute)

	assert.Equal(t, 0, st.sweep())
	_, ok := st.Get("busy")
	assert.True(t, ok)
}

func TestUpdateHistory(t *testing.T) {
	st := NewStore(0, 0)
	s := st.GetOrCreate("s1", Config{SystemPrompt: "p"})
	before := s.LastActiveAt

	history := append(s.Messages,
		core.Message{Role: core.RoleUser, Content: "hi"},
		core.Message{Role: core.RoleAssistant, Content: "hello"},
	)
	time.Sleep(time.Millisecond)
	st.UpdateHistory("s1", history)

	assert.Len(t, s.Messages, 3)
	assert.True(t, s.LastActiveAt.After(before))

	// Unknown ids are ignored.
	st.UpdateHistory("ghost", history)
	assert.Equal(t, 1, st.Len())
}
