// Package store defines the persistence collaborators the engine consults:
// credential verification, beatmap metadata and match-result recording.
// The engine only sees these interfaces; calls may block on I/O and are
// therefore never made while a core lock is held.
package store

import (
	"context"
	"errors"

	"github.com/mikoto-dev/banchod/internal/match"
)

var (
	// ErrBadCredentials reports a failed name/password verification.
	ErrBadCredentials = errors.New("store: invalid credentials")

	// ErrNotFound reports a missing row.
	ErrNotFound = errors.New("store: not found")
)

// Identity is the durable account behind a session.
type Identity struct {
	UserID     int32
	Username   string
	Privileges int32
}

// BeatmapMeta is the metadata block for one beatmap.
type BeatmapMeta struct {
	ID       int32
	Checksum string
	Title    string
	Status   int32
}

type Authenticator interface {
	// Authenticate verifies a username and the md5 of the client's
	// password, returning the account identity or ErrBadCredentials.
	Authenticate(ctx context.Context, username, passwordMD5 string) (Identity, error)
}

type BeatmapStore interface {
	FetchBeatmapMeta(ctx context.Context, id int32) (BeatmapMeta, error)
}

type ResultStore interface {
	RecordMatchResult(ctx context.Context, res match.Result) error
}

// Store bundles every collaborator the dispatcher needs.
type Store interface {
	Authenticator
	BeatmapStore
	ResultStore
}
