package store

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/dueskeeper/dueskeeper/internal/common"
	"github.com/dueskeeper/dueskeeper/internal/cryptox"
	"github.com/dueskeeper/dueskeeper/internal/state"
)

// Typed mutation operations. These are the only writers of the document's
// collections; each goes through the commit funnel and leaves an audit entry
// naming the acting identity supplied by the caller.

// AddUser registers a new member with a fresh salt and password hash.
// Logins are unique under state.NormalizeLogin, soft-deleted users included.
func (s *Store) AddUser(ctx context.Context, actor, login, password string) (state.User, error) {
	if strings.TrimSpace(login) == "" || password == "" {
		return state.User{}, common.ErrInvalidLogin
	}

	salt, err := cryptox.NewSalt()
	if err != nil {
		return state.User{}, err
	}
	hash, err := cryptox.HashPassword(password, salt)
	if err != nil {
		return state.User{}, err
	}

	user := state.User{
		ID:           uuid.NewString(),
		Login:        login,
		Salt:         salt,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    state.Now(),
	}

	err = s.Update(ctx, "user-add", func(doc *state.Document) error {
		if doc.UserByLogin(login) != nil {
			return common.ErrLoginTaken
		}
		doc.Users = append(doc.Users, user)
		appendAudit(doc, actor, "user.add", user.ID, login)
		return nil
	})
	if err != nil {
		return state.User{}, err
	}
	return user, nil
}

// VerifyLogin checks the password for the given login and records the login
// time. Soft-deleted and deactivated users cannot log in.
func (s *Store) VerifyLogin(ctx context.Context, login, password string) (state.User, error) {
	var out state.User
	err := s.Update(ctx, "user-login", func(doc *state.Document) error {
		u := doc.UserByLogin(login)
		if u == nil || u.IsDeleted || !u.IsActive {
			return common.ErrInvalidLogin
		}
		if !cryptox.VerifyPassword(password, u.Salt, u.PasswordHash) {
			return common.ErrInvalidLogin
		}
		u.LastLoginAt = state.Now()
		u.LastSeenAt = u.LastLoginAt
		appendAudit(doc, u.Login, "user.login", u.ID, "")
		out = *u
		return nil
	})
	if err != nil {
		return state.User{}, err
	}
	return out, nil
}

// TouchSeen updates the user's last-seen heartbeat. No audit entry: the
// heartbeat would flood the log.
func (s *Store) TouchSeen(ctx context.Context, userID string) error {
	return s.Update(ctx, "user-seen", func(doc *state.Document) error {
		u := doc.UserByID(userID)
		if u == nil {
			return common.ErrNotFound
		}
		u.LastSeenAt = state.Now()
		return nil
	})
}

// SetActive toggles a user's active flag.
func (s *Store) SetActive(ctx context.Context, actor, userID string, active bool) error {
	return s.Update(ctx, "user-set-active", func(doc *state.Document) error {
		u := doc.UserByID(userID)
		if u == nil {
			return common.ErrNotFound
		}
		u.IsActive = active
		action := "user.deactivate"
		if active {
			action = "user.activate"
		}
		appendAudit(doc, actor, action, userID, "")
		return nil
	})
}

// SoftDeleteUser marks a user deleted. The record stays in the document.
func (s *Store) SoftDeleteUser(ctx context.Context, actor, userID string) error {
	return s.Update(ctx, "user-delete", func(doc *state.Document) error {
		u := doc.UserByID(userID)
		if u == nil {
			return common.ErrNotFound
		}
		u.IsDeleted = true
		u.IsActive = false
		appendAudit(doc, actor, "user.delete", userID, "")
		return nil
	})
}

// RecordPayment appends a dues payment, enforcing one payment per user per
// month. Missing ID and PaidAt fields are filled in.
func (s *Store) RecordPayment(ctx context.Context, actor string, p state.Payment) (state.Payment, error) {
	if p.UserID == "" || p.Month == "" {
		return state.Payment{}, common.ErrNotFound
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.PaidAt == "" {
		p.PaidAt = state.Now()
	}

	err := s.Update(ctx, "payment-record", func(doc *state.Document) error {
		if doc.UserByID(p.UserID) == nil {
			return common.ErrNotFound
		}
		for _, existing := range doc.Payments {
			if existing.UserID == p.UserID && existing.Month == p.Month {
				return common.ErrDuplicatePayment
			}
		}
		doc.Payments = append(doc.Payments, p)
		appendAudit(doc, actor, "payment.record", p.UserID, p.Month)
		return nil
	})
	if err != nil {
		return state.Payment{}, err
	}
	return p, nil
}

// AppendAudit records an arbitrary audit entry on behalf of an outer layer.
func (s *Store) AppendAudit(ctx context.Context, actor, action, target, details string) error {
	return s.Update(ctx, "audit-append", func(doc *state.Document) error {
		appendAudit(doc, actor, action, target, details)
		return nil
	})
}

func appendAudit(doc *state.Document, actor, action, target, details string) {
	if actor != "" {
		if details != "" {
			details = "by " + actor + "; " + details
		} else {
			details = "by " + actor
		}
	}
	doc.Audit = append(doc.Audit, state.AuditRecord{
		ID:      uuid.NewString(),
		At:      state.Now(),
		Action:  action,
		Target:  target,
		Details: details,
	})
}
