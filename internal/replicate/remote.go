package replicate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dueskeeper/dueskeeper/internal/common"
	"github.com/dueskeeper/dueskeeper/internal/logging"
	"github.com/dueskeeper/dueskeeper/internal/state"
)

// SnapshotSchemaVersion identifies the remote snapshot format.
const SnapshotSchemaVersion = 1

// RemoteClient is a versioned remote file: read returns the current content
// together with an opaque revision marker, and writes must present the
// marker they read (optimistic concurrency). An empty marker on Put means
// "create new file". Get returns common.ErrNotFound when the file does not
// exist; Put returns common.ErrRevisionConflict on a marker mismatch.
type RemoteClient interface {
	Get(ctx context.Context) (content []byte, rev string, err error)
	Put(ctx context.Context, content []byte, rev string) error
}

// remoteUser is the reduced user projection pushed to the remote snapshot:
// durable identity and credential fields only. Volatile fields (last seen,
// last login) are excluded so a heartbeat never causes a remote write.
type remoteUser struct {
	ID           string `json:"id"`
	Login        string `json:"login"`
	Salt         string `json:"salt,omitempty"`
	PasswordHash string `json:"passwordHash,omitempty"`
	IsActive     bool   `json:"isActive"`
	IsDeleted    bool   `json:"isDeleted"`
	CreatedAt    string `json:"createdAt,omitempty"`
}

type remoteSnapshot struct {
	SchemaVersion int             `json:"schemaVersion"`
	Users         []remoteUser    `json:"users"`
	Payments      []state.Payment `json:"payments"`
}

// Remote replicates a reduced, stable-sorted projection of the document to a
// version-controlled remote file. Pushes whose content hash equals the last
// confirmed push are skipped entirely; real pushes wait out a trailing-edge
// debounce delay before the read-then-write against the remote.
type Remote struct {
	client   RemoteClient
	debounce time.Duration
	logger   logging.Logger

	mu         sync.Mutex
	lastPushed string
}

// NewRemote returns a remote backend. debounce may be zero (no delay), which
// tests rely on.
func NewRemote(client RemoteClient, debounce time.Duration, logger logging.Logger) *Remote {
	return &Remote{
		client:   client,
		debounce: debounce,
		logger:   logger.With("backend", "remote"),
	}
}

func (r *Remote) Name() string { return "remote" }

// Write pushes the projection of doc unless its content hash matches the
// last confirmed push.
func (r *Remote) Write(ctx context.Context, doc *state.Document) error {
	content, hash, err := EncodeSnapshot(doc)
	if err != nil {
		return err
	}

	if hash == r.lastPushedHash() {
		r.logger.Debug(ctx, "remote content unchanged, skipping push", "hash", hash)
		return nil
	}

	if r.debounce > 0 {
		timer := time.NewTimer(r.debounce)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	_, rev, err := r.client.Get(ctx)
	if errors.Is(err, common.ErrNotFound) {
		rev = "" // create
	} else if err != nil {
		return fmt.Errorf("remote get: %w", err)
	}

	if err := r.client.Put(ctx, content, rev); err != nil {
		return fmt.Errorf("remote put: %w", err)
	}

	r.setLastPushedHash(hash)
	return nil
}

// Fetch reads the remote snapshot and expands it back into a document (with
// an empty audit log — the audit log is never replicated remotely). Returns
// common.ErrNotFound when the remote file does not exist.
func (r *Remote) Fetch(ctx context.Context) (*state.Document, error) {
	content, _, err := r.client.Get(ctx)
	if err != nil {
		return nil, err
	}

	snap := &remoteSnapshot{}
	if err := json.Unmarshal(content, snap); err != nil {
		return nil, fmt.Errorf("decode remote snapshot: %w", err)
	}

	doc := state.New()
	for _, u := range snap.Users {
		doc.Users = append(doc.Users, state.User{
			ID:           u.ID,
			Login:        u.Login,
			Salt:         u.Salt,
			PasswordHash: u.PasswordHash,
			IsActive:     u.IsActive,
			IsDeleted:    u.IsDeleted,
			CreatedAt:    u.CreatedAt,
		})
	}
	doc.Payments = append(doc.Payments, snap.Payments...)
	doc.Normalize()
	return doc, nil
}

func (r *Remote) lastPushedHash() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastPushed
}

func (r *Remote) setLastPushedHash(h string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastPushed = h
}

// EncodeSnapshot builds the stable-sorted reduced projection of doc and
// returns its serialized form together with its sha256 content hash.
func EncodeSnapshot(doc *state.Document) (content []byte, hash string, err error) {
	snap := remoteSnapshot{
		SchemaVersion: SnapshotSchemaVersion,
		Users:         make([]remoteUser, 0, len(doc.Users)),
		Payments:      make([]state.Payment, 0, len(doc.Payments)),
	}

	for _, u := range doc.Users {
		snap.Users = append(snap.Users, remoteUser{
			ID:           u.ID,
			Login:        u.Login,
			Salt:         u.Salt,
			PasswordHash: u.PasswordHash,
			IsActive:     u.IsActive,
			IsDeleted:    u.IsDeleted,
			CreatedAt:    u.CreatedAt,
		})
	}
	snap.Payments = append(snap.Payments, doc.Payments...)

	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].ID < snap.Users[j].ID })
	sort.Slice(snap.Payments, func(i, j int) bool {
		a, b := snap.Payments[i], snap.Payments[j]
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		if a.PaidAt != b.PaidAt {
			return a.PaidAt < b.PaidAt
		}
		return a.ID < b.ID
	})

	content, err = json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("encode remote snapshot: %w", err)
	}

	sum := sha256.Sum256(content)
	return content, hex.EncodeToString(sum[:]), nil
}
