package state

// Merge combines two document snapshots into one. It is total (never fails)
// and idempotent: merging the result with either input again adds nothing.
//
// Rules:
//   - Users are keyed by id. When both sides have the id, the record with
//     the more recent lastLoginAt wins and its empty string fields are
//     back-filled from the other side, so no information is dropped.
//   - Payments are deduplicated by (userId, month, paidAt); the first
//     occurrence wins, scanning a before b.
//   - Audit entries are deduplicated by (at, action, target, details).
//
// Collection caps apply to the combined lists, trimming from the oldest end.
func Merge(a, b *Document) *Document {
	if a == nil {
		a = New()
	}
	if b == nil {
		b = New()
	}

	out := &Document{
		Users:    mergeUsers(a.Users, b.Users),
		Payments: mergePayments(a.Payments, b.Payments),
		Audit:    mergeAudit(a.Audit, b.Audit),
	}
	out.Normalize()
	return out
}

func mergeUsers(a, b []User) []User {
	byID := make(map[string]int, len(b))
	for i := range b {
		byID[b[i].ID] = i
	}

	merged := make([]User, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a))

	for i := range a {
		u := a[i]
		if j, ok := byID[u.ID]; ok {
			u = mergeUser(u, b[j])
		}
		merged = append(merged, u)
		seen[u.ID] = struct{}{}
	}
	for i := range b {
		if _, ok := seen[b[i].ID]; !ok {
			merged = append(merged, b[i])
		}
	}
	return merged
}

// mergeUser picks the record with the later login as the base; ties go to x.
// Missing/invalid timestamps compare as the zero time.
func mergeUser(x, y User) User {
	base, other := x, y
	if ParseTime(y.LastLoginAt).After(ParseTime(x.LastLoginAt)) {
		base, other = y, x
	}

	if base.Login == "" {
		base.Login = other.Login
	}
	if base.Salt == "" {
		base.Salt = other.Salt
	}
	if base.PasswordHash == "" {
		base.PasswordHash = other.PasswordHash
	}
	if base.CreatedAt == "" {
		base.CreatedAt = other.CreatedAt
	}
	if base.LastLoginAt == "" {
		base.LastLoginAt = other.LastLoginAt
	}
	if base.LastSeenAt == "" {
		base.LastSeenAt = other.LastSeenAt
	}
	return base
}

func paymentKey(p Payment) string {
	return p.UserID + "\x00" + p.Month + "\x00" + p.PaidAt
}

func mergePayments(a, b []Payment) []Payment {
	merged := make([]Payment, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))

	for _, list := range [][]Payment{a, b} {
		for _, p := range list {
			k := paymentKey(p)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			merged = append(merged, p)
		}
	}
	return merged
}

func auditKey(r AuditRecord) string {
	return r.At + "\x00" + r.Action + "\x00" + r.Target + "\x00" + r.Details
}

func mergeAudit(a, b []AuditRecord) []AuditRecord {
	merged := make([]AuditRecord, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))

	for _, list := range [][]AuditRecord{a, b} {
		for _, r := range list {
			k := auditKey(r)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			merged = append(merged, r)
		}
	}
	return merged
}
