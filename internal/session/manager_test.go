package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"paperwhisper/internal/models"
	"paperwhisper/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_CapEvictsOldestPairs(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), 10)
	s, err := m.Create(ctx, "doc")
	require.NoError(t, err)

	for i := 1; i <= 12; i++ {
		require.NoError(t, m.AppendExchange(ctx, s.SessionID, "doc", fmt.Sprintf("question %d", i), fmt.Sprintf("answer %d", i)))
	}
	got, err := m.Get(ctx, s.SessionID, "doc")
	require.NoError(t, err)
	require.Len(t, got.Messages, 20)
	assert.Equal(t, "question 3", got.Messages[0].Content)
	assert.Equal(t, models.RoleUser, got.Messages[0].Role)
	assert.Equal(t, "answer 12", got.Messages[19].Content)
}

func TestManager_Recent(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), 10)
	s, err := m.Create(ctx, "doc")
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		require.NoError(t, m.AppendExchange(ctx, s.SessionID, "doc", fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i)))
	}

	recent, err := m.Recent(ctx, s.SessionID, "doc", 3)
	require.NoError(t, err)
	require.Len(t, recent, 6)
	assert.Equal(t, "q3", recent[0].Content)
	assert.Equal(t, "a5", recent[5].Content)
}

func TestManager_DocumentMismatch(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), 10)
	s, err := m.Create(ctx, "doc-a")
	require.NoError(t, err)

	_, err = m.Resolve(ctx, s.SessionID, "doc-b")
	require.ErrorIs(t, err, util.ErrSessionMismatch)
	assert.Equal(t, util.KindConflict, util.Kind(err))

	err = m.AppendExchange(ctx, s.SessionID, "doc-b", "q", "a")
	require.ErrorIs(t, err, util.ErrSessionMismatch)
	got, err := m.Get(ctx, s.SessionID, "doc-a")
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
}

func TestManager_ResolveCreatesOrFails(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), 10)

	s, err := m.Resolve(ctx, "", "doc")
	require.NoError(t, err)
	assert.NotEmpty(t, s.SessionID)
	assert.Equal(t, "doc", s.DocumentID)

	_, err = m.Resolve(ctx, "missing", "doc")
	require.ErrorIs(t, err, util.ErrSessionNotFound)
	assert.Equal(t, util.KindNotFound, util.Kind(err))
}

func TestManager_ClearAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), 10)
	s, err := m.Create(ctx, "doc")
	require.NoError(t, err)
	require.NoError(t, m.AppendExchange(ctx, s.SessionID, "doc", "q", "a"))

	require.NoError(t, m.Clear(ctx, s.SessionID, "doc"))
	got, err := m.Get(ctx, s.SessionID, "")
	require.NoError(t, err)
	assert.Empty(t, got.Messages)

	require.NoError(t, m.Delete(ctx, s.SessionID))
	require.ErrorIs(t, m.Delete(ctx, s.SessionID), util.ErrSessionNotFound)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	require.NoError(t, st.Create(ctx, &models.Session{SessionID: "s", DocumentID: "d"}))
	a, err := st.Get(ctx, "s")
	require.NoError(t, err)
	a.Messages = append(a.Messages, models.Message{Content: "leak"})
	b, err := st.Get(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, b.Messages)
}

func TestManager_ConcurrentAppendsKeepPairsIntact(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), 50)
	s, err := m.Create(ctx, "doc")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				q := fmt.Sprintf("q%d-%d", w, i)
				assert.NoError(t, m.AppendExchange(ctx, s.SessionID, "doc", q, "a"+q[1:]))
			}
		}(w)
	}
	wg.Wait()

	got, err := m.Get(ctx, s.SessionID, "doc")
	require.NoError(t, err)
	require.Len(t, got.Messages, 80)
	for i := 0; i < len(got.Messages); i += 2 {
		assert.Equal(t, models.RoleUser, got.Messages[i].Role)
		assert.Equal(t, models.RoleAssistant, got.Messages[i+1].Role)
		assert.Equal(t, "a"+got.Messages[i].Content[1:], got.Messages[i+1].Content)
	}
}
