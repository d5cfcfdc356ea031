package strike

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu     sync.Mutex
	flags  map[string]*UserFlag
	events map[string]bool
	err    error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{flags: map[string]*UserFlag{}, events: map[string]bool{}}
}

func (m *memoryRepo) Increment(_ context.Context, userID, source string, at time.Time) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, false, m.err
	}

	if source != "" {
		key := userID + "|" + source
		if m.events[key] {
			if f, ok := m.flags[userID]; ok {
				return f.StrikeCount, false, nil
			}
			return 0, false, nil
		}
		m.events[key] = true
	}

	f, ok := m.flags[userID]
	if !ok {
		f = &UserFlag{UserID: userID}
		m.flags[userID] = f
	}
	f.StrikeCount++
	f.LastStrikeAt = at
	f.UpdatedAt = at
	return f.StrikeCount, true, nil
}

func (m *memoryRepo) GetFlag(_ context.Context, userID string) (*UserFlag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flags[userID]
	if !ok {
		return nil, ErrFlagNotFound
	}
	cp := *f
	return &cp, nil
}

func TestAddStrikeCreatesFlag(t *testing.T) {
	repo := newMemoryRepo()
	ledger := NewLedger(repo)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return at }

	count, err := ledger.AddStrike(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	flag, err := ledger.GetFlag(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, flag.StrikeCount)
	assert.True(t, flag.LastStrikeAt.Equal(at))
}

func TestConsecutiveStrikes(t *testing.T) {
	repo := newMemoryRepo()
	ledger := NewLedger(repo)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	const n = 5
	var last time.Time
	for i := 0; i < n; i++ {
		last = base.Add(time.Duration(i) * time.Minute)
		ledger.now = func() time.Time { return last }
		_, err := ledger.AddStrike(context.Background(), "u1")
		require.NoError(t, err)
	}

	flag, err := ledger.GetFlag(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, n, flag.StrikeCount)
	assert.True(t, flag.LastStrikeAt.Equal(last))
}

func TestAddStrikeForDedupesSource(t *testing.T) {
	ledger := NewLedger(newMemoryRepo())
	ctx := context.Background()

	count, err := ledger.AddStrikeFor(ctx, "u1", "b/pending/sale_item/x.jpg")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = ledger.AddStrikeFor(ctx, "u1", "b/pending/sale_item/x.jpg")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = ledger.AddStrikeFor(ctx, "u1", "b/pending/sale_item/y.jpg")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestAddStrikeConcurrentDuplicates(t *testing.T) {
	repo := newMemoryRepo()
	ledger := NewLedger(repo)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = ledger.AddStrikeFor(context.Background(), "u1", "b/pending/profile_photo/me.jpg")
		}()
	}
	wg.Wait()

	flag, err := ledger.GetFlag(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, flag.StrikeCount)
}

func TestAddStrikeValidation(t *testing.T) {
	ledger := NewLedger(newMemoryRepo())
	_, err := ledger.AddStrike(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyUserID)
}

func TestAddStrikePropagatesRepoError(t *testing.T) {
	repo := newMemoryRepo()
	repo.err = errors.New("connection reset")
	ledger := NewLedger(repo)

	_, err := ledger.AddStrike(context.Background(), "u1")
	assert.Error(t, err)

	_, err = ledger.GetFlag(context.Background(), "u2")
	assert.ErrorIs(t, err, ErrFlagNotFound)
}
