package billing

import "go.uber.org/zap"

// Scope distinguishes the two kinds of billable identities.
type Scope string

const (
	// ScopeUser is an individual user account.
	ScopeUser Scope = "user"
	// ScopeOrganization is an organization account.
	ScopeOrganization Scope = "organization"
)

// AccountScope identifies a billable account: a user or an organization.
// Every ledger, gate, and plan operation is keyed by it, so user and
// organization billing share a single code path.
type AccountScope struct {
	ID    string
	Scope Scope
}

// UserScope returns the account identity for an individual user.
func UserScope(id string) AccountScope {
	return AccountScope{ID: id, Scope: ScopeUser}
}

// OrgScope returns the account identity for an organization.
func OrgScope(id string) AccountScope {
	return AccountScope{ID: id, Scope: ScopeOrganization}
}

// Valid reports whether the identity is usable.
func (a AccountScope) Valid() bool {
	return a.ID != "" && (a.Scope == ScopeUser || a.Scope == ScopeOrganization)
}

// Target returns the notification target label ("user" or "organization").
func (a AccountScope) Target() string {
	return string(a.Scope)
}

// Fields returns zap fields identifying the account in log entries.
func (a AccountScope) Fields() []zap.Field {
	return []zap.Field{
		zap.String("account_id", a.ID),
		zap.String("scope", string(a.Scope)),
	}
}
