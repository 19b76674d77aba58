package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dueskeeper/dueskeeper/internal/common"
	"github.com/dueskeeper/dueskeeper/internal/state"
)

func TestAddUser_CreatesCredentialedUser(t *testing.T) {
	s, _, _ := newTestStore(t)

	u, err := s.AddUser(context.Background(), "admin", "+7 900 123-45-67", "s3cret")
	require.NoError(t, err)

	require.NotEmpty(t, u.ID)
	require.NotEmpty(t, u.Salt)
	require.NotEmpty(t, u.PasswordHash)
	require.True(t, u.IsActive)
	require.NotEmpty(t, u.CreatedAt)

	doc := s.Snapshot()
	require.Len(t, doc.Users, 1)

	// the audit trail names the action and the acting identity
	require.Len(t, doc.Audit, 1)
	require.Equal(t, "user.add", doc.Audit[0].Action)
	require.Contains(t, doc.Audit[0].Details, "by admin")
}

func TestAddUser_RejectsFormattedDuplicateLogin(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.AddUser(ctx, "admin", "+7 (900) 123-45-67", "s3cret")
	require.NoError(t, err)

	_, err = s.AddUser(ctx, "admin", "79001234567", "other")
	require.ErrorIs(t, err, common.ErrLoginTaken)
}

func TestAddUser_RejectsEmptyInput(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.AddUser(ctx, "admin", "  ", "s3cret")
	require.ErrorIs(t, err, common.ErrInvalidLogin)

	_, err = s.AddUser(ctx, "admin", "79001234567", "")
	require.ErrorIs(t, err, common.ErrInvalidLogin)
}

func TestVerifyLogin_RecordsLoginTime(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	created, err := s.AddUser(ctx, "admin", "79001234567", "s3cret")
	require.NoError(t, err)
	require.Empty(t, created.LastLoginAt)

	u, err := s.VerifyLogin(ctx, "+7 900 123 45 67", "s3cret")
	require.NoError(t, err)
	require.Equal(t, created.ID, u.ID)
	require.NotEmpty(t, u.LastLoginAt)
}

func TestVerifyLogin_WrongPassword(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.AddUser(ctx, "admin", "79001234567", "s3cret")
	require.NoError(t, err)

	_, err = s.VerifyLogin(ctx, "79001234567", "nope")
	require.ErrorIs(t, err, common.ErrInvalidLogin)
}

func TestVerifyLogin_DeletedOrInactiveUser(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	u, err := s.AddUser(ctx, "admin", "79001234567", "s3cret")
	require.NoError(t, err)

	require.NoError(t, s.SetActive(ctx, "admin", u.ID, false))
	_, err = s.VerifyLogin(ctx, "79001234567", "s3cret")
	require.ErrorIs(t, err, common.ErrInvalidLogin)

	require.NoError(t, s.SetActive(ctx, "admin", u.ID, true))
	require.NoError(t, s.SoftDeleteUser(ctx, "admin", u.ID))
	_, err = s.VerifyLogin(ctx, "79001234567", "s3cret")
	require.ErrorIs(t, err, common.ErrInvalidLogin)
}

func TestSoftDeleteUser_KeepsRecord(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	u, err := s.AddUser(ctx, "admin", "79001234567", "s3cret")
	require.NoError(t, err)

	require.NoError(t, s.SoftDeleteUser(ctx, "admin", u.ID))

	doc := s.Snapshot()
	require.Len(t, doc.Users, 1, "soft delete never removes the record")
	require.True(t, doc.Users[0].IsDeleted)
	require.False(t, doc.Users[0].IsActive)
}

func TestTouchSeen_UpdatesHeartbeatWithoutAudit(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	u, err := s.AddUser(ctx, "admin", "79001234567", "s3cret")
	require.NoError(t, err)

	auditBefore := len(s.Snapshot().Audit)
	require.NoError(t, s.TouchSeen(ctx, u.ID))

	doc := s.Snapshot()
	require.NotEmpty(t, doc.Users[0].LastSeenAt)
	require.Len(t, doc.Audit, auditBefore)
}

func TestTouchSeen_UnknownUser(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.ErrorIs(t, s.TouchSeen(context.Background(), "ghost"), common.ErrNotFound)
}

func TestRecordPayment_FillsDefaultsAndAudits(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	u, err := s.AddUser(ctx, "admin", "79001234567", "s3cret")
	require.NoError(t, err)

	p, err := s.RecordPayment(ctx, "admin", state.Payment{
		UserID: u.ID,
		Month:  "2024-05",
		Amount: 1500,
		Method: "cash",
	})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	require.NotEmpty(t, p.PaidAt)

	doc := s.Snapshot()
	require.Len(t, doc.Payments, 1)
	require.Equal(t, "payment.record", doc.Audit[len(doc.Audit)-1].Action)
}

func TestRecordPayment_OnePerUserPerMonth(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	u, err := s.AddUser(ctx, "admin", "79001234567", "s3cret")
	require.NoError(t, err)

	_, err = s.RecordPayment(ctx, "admin", state.Payment{UserID: u.ID, Month: "2024-05"})
	require.NoError(t, err)

	_, err = s.RecordPayment(ctx, "admin", state.Payment{UserID: u.ID, Month: "2024-05"})
	require.ErrorIs(t, err, common.ErrDuplicatePayment)

	// a different month is fine
	_, err = s.RecordPayment(ctx, "admin", state.Payment{UserID: u.ID, Month: "2024-06"})
	require.NoError(t, err)
}

func TestRecordPayment_UnknownUser(t *testing.T) {
	s, _, _ := newTestStore(t)

	_, err := s.RecordPayment(context.Background(), "admin", state.Payment{UserID: "ghost", Month: "2024-05"})
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestAppendAudit_TrimsToCap(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	doc := state.New()
	for i := 0; i < state.MaxAudit; i++ {
		doc.Audit = append(doc.Audit, state.AuditRecord{At: "t", Action: "old"})
	}
	require.NoError(t, s.Replace(ctx, doc, "seed"))

	require.NoError(t, s.AppendAudit(ctx, "admin", "new.action", "target", ""))

	got := s.Snapshot()
	require.Len(t, got.Audit, state.MaxAudit)
	require.Equal(t, "new.action", got.Audit[len(got.Audit)-1].Action)
}
