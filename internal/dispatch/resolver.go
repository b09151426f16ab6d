package dispatch

import (
	"context"

	"pagenotify/internal/cms"
	"pagenotify/internal/types"
)

// DefaultRecipientPageSize bounds a single membership query against the
// platform API.
const DefaultRecipientPageSize = 500

// RecipientResolver expands a rule's group list into user identifiers via
// the platform membership service. Email and unsubscribe filtering happen
// later, per recipient, inside the engine.
type RecipientResolver struct {
	membership cms.MembershipService
	pageSize   int
}

// NewRecipientResolver creates a resolver. pageSize <= 0 selects
// DefaultRecipientPageSize.
func NewRecipientResolver(membership cms.MembershipService, pageSize int) *RecipientResolver {
	if pageSize <= 0 {
		pageSize = DefaultRecipientPageSize
	}
	return &RecipientResolver{membership: membership, pageSize: pageSize}
}

// Resolve returns the deduplicated user ids targeted by groups. An empty
// group list resolves to no recipients without touching the platform.
func (r *RecipientResolver) Resolve(ctx context.Context, groups []string) ([]int64, error) {
	if len(groups) == 0 {
		return nil, nil
	}
	ids, err := r.membership.UsersInGroups(ctx, groups, r.pageSize)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeMembershipQuery, "resolving group membership", err)
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
