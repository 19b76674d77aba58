package state

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScore_ZeroOnlyWhenEmpty(t *testing.T) {
	tests := []struct {
		name string
		doc  *Document
		zero bool
	}{
		{"empty", New(), true},
		{"one user", &Document{Users: []User{{ID: "u1"}}}, false},
		{"one payment", &Document{Payments: []Payment{{UserID: "u1", Month: "2024-05"}}}, false},
		{"one audit entry", &Document{Audit: []AuditRecord{{Action: "login"}}}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.zero, tc.doc.Score() == 0)
		})
	}
}

func TestScore_Weights(t *testing.T) {
	doc := &Document{
		Users:    []User{{ID: "u1"}, {ID: "u2"}},
		Payments: []Payment{{UserID: "u1", Month: "2024-05"}},
		Audit:    []AuditRecord{{Action: "a"}, {Action: "b"}, {Action: "c"}},
	}
	require.Equal(t, int64(2_001_003), doc.Score())
}

func TestNormalize_CoercesNilCollections(t *testing.T) {
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(`{"users":null}`), &doc))

	doc.Normalize()

	require.NotNil(t, doc.Users)
	require.NotNil(t, doc.Payments)
	require.NotNil(t, doc.Audit)
}

func TestNormalize_TrimsOldestBeyondCaps(t *testing.T) {
	doc := New()
	for i := 0; i < MaxAudit+10; i++ {
		doc.Audit = append(doc.Audit, AuditRecord{Action: fmt.Sprintf("a%d", i)})
	}

	doc.Normalize()

	require.Len(t, doc.Audit, MaxAudit)
	// the oldest ten entries were trimmed, the newest kept
	require.Equal(t, "a10", doc.Audit[0].Action)
	require.Equal(t, fmt.Sprintf("a%d", MaxAudit+9), doc.Audit[len(doc.Audit)-1].Action)
}

func TestClone_IsIndependent(t *testing.T) {
	doc := New()
	doc.Users = append(doc.Users, User{ID: "u1", Login: "79001234567"})

	c := doc.Clone()
	c.Users[0].Login = "changed"
	c.Users = append(c.Users, User{ID: "u2"})

	require.Equal(t, "79001234567", doc.Users[0].Login)
	require.Len(t, doc.Users, 1)
}

func TestNormalizeLogin(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+7 (900) 123-45-67", "79001234567"},
		{"79001234567", "79001234567"},
		{"  Alice@Example.COM ", "alice@example.com"},
		{"", ""},
	}

	for _, tc := range tests {
		require.Equal(t, tc.want, NormalizeLogin(tc.in), "input %q", tc.in)
	}
}

func TestUserByLogin_MatchesFormattedVariants(t *testing.T) {
	doc := New()
	doc.Users = append(doc.Users, User{ID: "u1", Login: "+7 900 123-45-67"})

	require.NotNil(t, doc.UserByLogin("79001234567"))
	require.Nil(t, doc.UserByLogin("79990000000"))
}

func TestParseTime_Lenient(t *testing.T) {
	require.True(t, ParseTime("").IsZero())
	require.True(t, ParseTime("yesterday").IsZero())

	got := ParseTime("2024-05-01T10:00:00Z")
	require.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), got)
}
