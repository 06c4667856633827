package checkout

import "context"

type Permission string

const PermissionCreditOverride Permission = "credit_override"

// Authorizer answers permission checks for the current operator.
type Authorizer interface {
	Allowed(ctx context.Context, p Permission) bool
}

// Permissions is a fixed grant list.
type Permissions []Permission

func (ps Permissions) Allowed(_ context.Context, p Permission) bool {
	for _, granted := range ps {
		if granted == p {
			return true
		}
	}
	return false
}
