package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"sync"

	"github.com/mikoto-dev/banchod/internal/match"
)

// Memory is an in-process Store used by tests and local development.
type Memory struct {
	mu       sync.Mutex
	users    map[string]memUser
	beatmaps map[int32]BeatmapMeta
	results  []match.Result
	nextID   int32
}

type memUser struct {
	id          int32
	privileges  int32
	passwordMD5 string
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]memUser),
		beatmaps: make(map[int32]BeatmapMeta),
		nextID:   3, // ids 1-2 reserved for system accounts
	}
}

// AddUser registers an account with a plaintext password and returns its id.
func (m *Memory) AddUser(name, password string, privileges int32) int32 {
	sum := md5.Sum([]byte(password))
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.users[name] = memUser{id: id, privileges: privileges, passwordMD5: hex.EncodeToString(sum[:])}
	return id
}

func (m *Memory) AddBeatmap(b BeatmapMeta) {
	m.mu.Lock()
	m.beatmaps[b.ID] = b
	m.mu.Unlock()
}

func (m *Memory) Authenticate(_ context.Context, username, passwordMD5 string) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok || u.passwordMD5 != passwordMD5 {
		return Identity{}, ErrBadCredentials
	}
	return Identity{UserID: u.id, Username: username, Privileges: u.privileges}, nil
}

func (m *Memory) FetchBeatmapMeta(_ context.Context, id int32) (BeatmapMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.beatmaps[id]
	if !ok {
		return BeatmapMeta{}, ErrNotFound
	}
	return b, nil
}

func (m *Memory) RecordMatchResult(_ context.Context, res match.Result) error {
	m.mu.Lock()
	m.results = append(m.results, res)
	m.mu.Unlock()
	return nil
}

// Results returns the recorded snapshots, oldest first.
func (m *Memory) Results() []match.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]match.Result, len(m.results))
	copy(out, m.results)
	return out
}
