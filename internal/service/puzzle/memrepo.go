package puzzle

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/park285/mate-puzzle-bot/internal/domain"
)

// memrepo keeps attempts and profiles in process memory. It backs the bot
// when DATABASE_URL is not set.
type memrepo struct {
	mu sync.RWMutex

	nextID int64

	attemptsByUser    map[string][]*domain.PuzzleAttempt
	attemptsBySession map[string]*domain.PuzzleAttempt

	profiles map[string]*domain.PuzzleProfile
}

func NewMemoryRepository() Repository {
	return &memrepo{
		attemptsByUser:    make(map[string][]*domain.PuzzleAttempt),
		attemptsBySession: make(map[string]*domain.PuzzleAttempt),
		profiles:          make(map[string]*domain.PuzzleProfile),
	}
}

func (m *memrepo) InsertAttempt(ctx context.Context, attempt *domain.PuzzleAttempt) (int64, error) {
	if attempt == nil {
		return 0, ErrDuplicateAttempt
	}
	key := joinKey(attempt.SessionUUID, attempt.PlayerHash)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.attemptsBySession[key]; exists {
		return 0, ErrDuplicateAttempt
	}
	m.nextID++
	stored := cloneAttempt(attempt)
	stored.ID = m.nextID
	m.attemptsBySession[key] = stored
	m.attemptsByUser[attempt.PlayerHash] = append(m.attemptsByUser[attempt.PlayerHash], stored)
	return stored.ID, nil
}

func (m *memrepo) GetRecentAttempts(ctx context.Context, playerHash string, limit int) ([]*domain.PuzzleAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.attemptsByUser[playerHash]
	items := make([]*domain.PuzzleAttempt, 0, len(list))
	for _, a := range list {
		items = append(items, cloneAttempt(a))
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memrepo) GetAttemptBySession(ctx context.Context, sessionUUID string, playerHash string) (*domain.PuzzleAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.attemptsBySession[joinKey(sessionUUID, playerHash)]; ok {
		return cloneAttempt(a), nil
	}
	return nil, nil
}

func (m *memrepo) GetProfile(ctx context.Context, playerHash string, roomHash string) (*domain.PuzzleProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.profiles[joinKey(playerHash, roomHash)]; ok {
		c := *p
		return &c, nil
	}
	return nil, nil
}

func (m *memrepo) UpsertProfile(ctx context.Context, profile *domain.PuzzleProfile) error {
	if profile == nil {
		return nil
	}
	c := *profile
	m.mu.Lock()
	m.profiles[joinKey(profile.PlayerHash, profile.RoomHash)] = &c
	m.mu.Unlock()
	return nil
}

func cloneAttempt(a *domain.PuzzleAttempt) *domain.PuzzleAttempt {
	c := *a
	c.UserSANs = append([]string(nil), a.UserSANs...)
	c.OpponentSANs = append([]string(nil), a.OpponentSANs...)
	return &c
}

func joinKey(a, b string) string {
	return strings.TrimSpace(a) + "|" + strings.TrimSpace(b)
}
