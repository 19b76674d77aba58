package replicate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dueskeeper/dueskeeper/internal/common"
	"github.com/dueskeeper/dueskeeper/internal/state"
)

// fakeRemote is an in-memory RemoteClient with revision tracking.
type fakeRemote struct {
	mu      sync.Mutex
	content []byte
	rev     int
	exists  bool

	gets int
	puts int

	getErr error
	putErr error
}

func (f *fakeRemote) Get(ctx context.Context) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, "", f.getErr
	}
	if !f.exists {
		return nil, "", common.ErrNotFound
	}
	return f.content, revToken(f.rev), nil
}

func (f *fakeRemote) Put(ctx context.Context, content []byte, rev string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.putErr != nil {
		return f.putErr
	}
	if f.exists && rev != revToken(f.rev) {
		return common.ErrRevisionConflict
	}
	if !f.exists && rev != "" {
		return common.ErrRevisionConflict
	}
	f.content = content
	f.rev++
	f.exists = true
	return nil
}

func revToken(n int) string {
	return "rev-" + string(rune('0'+n))
}

func (f *fakeRemote) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

func remoteDoc() *state.Document {
	doc := state.New()
	doc.Users = append(doc.Users, state.User{
		ID:          "u1",
		Login:       "79001234567",
		Salt:        "aa",
		LastSeenAt:  "2024-05-01T10:00:00Z",
		LastLoginAt: "2024-05-01T09:00:00Z",
	})
	doc.Payments = append(doc.Payments, state.Payment{UserID: "u1", Month: "2024-05"})
	doc.Audit = append(doc.Audit, state.AuditRecord{At: "t", Action: "login"})
	return doc
}

func TestRemote_Write_CreatesFile(t *testing.T) {
	client := &fakeRemote{}
	r := NewRemote(client, 0, discardLogger())

	require.NoError(t, r.Write(context.Background(), remoteDoc()))
	require.Equal(t, 1, client.putCount())
	require.True(t, client.exists)
}

func TestRemote_Write_SkipsIdenticalContent(t *testing.T) {
	client := &fakeRemote{}
	r := NewRemote(client, 0, discardLogger())
	ctx := context.Background()

	doc := remoteDoc()
	require.NoError(t, r.Write(ctx, doc))

	// identical projection content: at most one outbound push in total
	require.NoError(t, r.Write(ctx, doc.Clone()))
	require.Equal(t, 1, client.putCount())
}

func TestRemote_Write_VolatileFieldsDoNotTriggerPush(t *testing.T) {
	client := &fakeRemote{}
	r := NewRemote(client, 0, discardLogger())
	ctx := context.Background()

	doc := remoteDoc()
	require.NoError(t, r.Write(ctx, doc))

	// heartbeats and audit appends change the document but not its projection
	bumped := doc.Clone()
	bumped.Users[0].LastSeenAt = "2024-05-01T10:05:00Z"
	bumped.Users[0].LastLoginAt = "2024-05-01T10:05:00Z"
	bumped.Audit = append(bumped.Audit, state.AuditRecord{At: "t2", Action: "seen"})

	require.NoError(t, r.Write(ctx, bumped))
	require.Equal(t, 1, client.putCount())
}

func TestRemote_Write_UsesRevisionMarker(t *testing.T) {
	client := &fakeRemote{}
	r := NewRemote(client, 0, discardLogger())
	ctx := context.Background()

	require.NoError(t, r.Write(ctx, remoteDoc()))

	changed := remoteDoc()
	changed.Payments = append(changed.Payments, state.Payment{UserID: "u1", Month: "2024-06"})
	require.NoError(t, r.Write(ctx, changed))

	// second write presented the marker from its read, so the fake accepted it
	require.Equal(t, 2, client.putCount())
	require.Equal(t, 2, client.rev)
}

func TestRemote_Write_SurfacesConflict(t *testing.T) {
	client := &fakeRemote{putErr: common.ErrRevisionConflict}
	r := NewRemote(client, 0, discardLogger())

	err := r.Write(context.Background(), remoteDoc())
	require.ErrorIs(t, err, common.ErrRevisionConflict)

	// a failed push must not mark the content as confirmed
	client.putErr = nil
	require.NoError(t, r.Write(context.Background(), remoteDoc()))
}

func TestRemote_Write_DebounceHonorsContext(t *testing.T) {
	client := &fakeRemote{}
	r := NewRemote(client, time.Minute, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := r.Write(ctx, remoteDoc())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, client.putCount())
}

func TestRemote_FetchRoundTrip(t *testing.T) {
	client := &fakeRemote{}
	r := NewRemote(client, 0, discardLogger())
	ctx := context.Background()

	require.NoError(t, r.Write(ctx, remoteDoc()))

	got, err := r.Fetch(ctx)
	require.NoError(t, err)

	require.Len(t, got.Users, 1)
	require.Equal(t, "u1", got.Users[0].ID)
	require.Equal(t, "aa", got.Users[0].Salt)
	// volatile fields and the audit log never travel through the remote
	require.Empty(t, got.Users[0].LastSeenAt)
	require.Empty(t, got.Audit)
	require.Len(t, got.Payments, 1)
}

func TestRemote_Fetch_NotFound(t *testing.T) {
	r := NewRemote(&fakeRemote{}, 0, discardLogger())

	_, err := r.Fetch(context.Background())
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestEncodeSnapshot_StableAcrossOrdering(t *testing.T) {
	a := state.New()
	a.Users = []state.User{{ID: "u1"}, {ID: "u2"}}
	a.Payments = []state.Payment{
		{UserID: "u2", Month: "2024-05"},
		{UserID: "u1", Month: "2024-05"},
	}

	b := a.Clone()
	b.Users[0], b.Users[1] = b.Users[1], b.Users[0]
	b.Payments[0], b.Payments[1] = b.Payments[1], b.Payments[0]

	_, hashA, err := EncodeSnapshot(a)
	require.NoError(t, err)
	_, hashB, err := EncodeSnapshot(b)
	require.NoError(t, err)

	require.Equal(t, hashA, hashB)
}
