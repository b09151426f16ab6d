// Package cms defines the contracts the notification engine needs from the
// host content-management platform: page rendering, group membership
// resolution, user contact lookup, and permission checks.
//
// The engine never talks to the platform's storage directly; it consumes
// these interfaces, which are satisfied either by the HTTP API adapter in
// internal/external or by stubs in local/test mode.
package cms

import (
	"context"

	"pagenotify/internal/types"
)

// PageRenderer produces per-locale HTML for a target content page and for
// inline markup fragments (subject templates).
type PageRenderer interface {
	// RenderPage renders the page in the given locale and returns its HTML.
	// A non-existent or non-renderable page returns an AppError with code
	// types.ErrCodePageInvalid.
	RenderPage(ctx context.Context, pageID int64, locale string) (string, error)

	// RenderInline renders a markup fragment (e.g. a subject template) in
	// the given locale and returns its HTML.
	RenderInline(ctx context.Context, markup string, locale string) (string, error)

	// PurgePage invalidates the platform's render cache for the page so the
	// next RenderPage sees fresh content.
	PurgePage(ctx context.Context, pageID int64) error
}

// MembershipService resolves group names to user identifiers.
type MembershipService interface {
	// UsersInGroups returns the identifiers of all users whose effective
	// group membership intersects groups, deduplicated, bounded to limit
	// per underlying query (the platform paginates internally).
	UsersInGroups(ctx context.Context, groups []string, limit int) ([]int64, error)
}

// UserDirectory looks up per-user contact data and capabilities.
type UserDirectory interface {
	// GetUserContact returns the user's delivery address, display name, and
	// configured locale. A user without a confirmed email returns a contact
	// with an empty Email, not an error.
	GetUserContact(ctx context.Context, userID int64) (types.UserContact, error)

	// UserHasPermission reports whether the user holds the named capability.
	UserHasPermission(ctx context.Context, userID int64, capability string) (bool, error)
}

// Platform bundles the three platform-facing contracts so wiring code can
// pass them around as a unit.
type Platform struct {
	Renderer   PageRenderer
	Membership MembershipService
	Users      UserDirectory
}

// ManageCapability is the capability a user must hold to create or edit
// notification rules through the admin surfaces.
const ManageCapability = "emailnotifications-can-manage"
