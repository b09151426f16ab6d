// Package admin exposes the rule management operations offered to the host
// platform's administrative surfaces: rule CRUD, send history, and recent
// engagement activity. Every operation checks the acting user's capability
// before touching storage.
package admin

import (
	"context"

	"pagenotify/internal/cms"
	"pagenotify/internal/db"
	"pagenotify/internal/types"
)

// RuleStore is the repository surface the service manages rules through.
type RuleStore interface {
	Create(ctx context.Context, rule *types.NotificationRule) error
	Update(ctx context.Context, rule *types.NotificationRule) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*types.NotificationRule, error)
	List(ctx context.Context) ([]types.NotificationRule, error)
}

// HistoryStore reads per-rule send history.
type HistoryStore interface {
	ListByRule(ctx context.Context, notificationID int64, limit int) ([]types.SentRecord, error)
}

// ActivityStore reads recent engagement events across all rules.
type ActivityStore interface {
	ListRecent(ctx context.Context, limit int) ([]types.EngagementEvent, error)
}

// PermissionChecker asks the host platform whether a user holds a capability.
type PermissionChecker interface {
	UserHasPermission(ctx context.Context, userID int64, capability string) (bool, error)
}

// Service bundles the management operations behind a single authorization
// gate. Capability lookups go through the platform once per user and are
// memoized for the service's lifetime.
type Service struct {
	rules  RuleStore
	sent   HistoryStore
	events ActivityStore
	perms  PermissionChecker
	auth   *db.AuthCache
	logger types.Logger
}

// NewService creates a Service. A nil auth cache gets a fresh one.
func NewService(rules RuleStore, sent HistoryStore, events ActivityStore, perms PermissionChecker, auth *db.AuthCache, logger types.Logger) *Service {
	if auth == nil {
		auth = db.NewAuthCache()
	}
	return &Service{
		rules:  rules,
		sent:   sent,
		events: events,
		perms:  perms,
		auth:   auth,
		logger: logger,
	}
}

// authorize resolves whether actorID may manage notification rules. A
// platform lookup failure is not cached.
func (s *Service) authorize(ctx context.Context, actorID int64) error {
	allowed, cached := s.auth.Get(actorID)
	if !cached {
		var err error
		allowed, err = s.perms.UserHasPermission(ctx, actorID, cms.ManageCapability)
		if err != nil {
			return types.NewAppError(types.ErrCodeUpstreamPlatform, "failed to check manage capability", err)
		}
		s.auth.Put(actorID, allowed)
	}
	if !allowed {
		return types.NewAppError(types.ErrCodePermissionInsufficient, "user may not manage notification rules", nil)
	}
	return nil
}

// CreateRule stores a new rule on behalf of the acting user. The actor's
// name is stamped as the rule's creator.
func (s *Service) CreateRule(ctx context.Context, actorID int64, actorName string, rule *types.NotificationRule) error {
	if err := s.authorize(ctx, actorID); err != nil {
		return err
	}
	rule.CreatedBy = actorName
	if err := s.rules.Create(ctx, rule); err != nil {
		return err
	}
	s.logger.Info("notification rule created",
		"notification_id", rule.ID, "subject", rule.Subject, "actor_id", actorID)
	return nil
}

// UpdateRule rewrites an existing rule on behalf of the acting user.
func (s *Service) UpdateRule(ctx context.Context, actorID int64, rule *types.NotificationRule) error {
	if err := s.authorize(ctx, actorID); err != nil {
		return err
	}
	if err := s.rules.Update(ctx, rule); err != nil {
		return err
	}
	s.logger.Info("notification rule updated",
		"notification_id", rule.ID, "actor_id", actorID)
	return nil
}

// DeleteRule removes a rule and its unsubscribe records.
func (s *Service) DeleteRule(ctx context.Context, actorID, ruleID int64) error {
	if err := s.authorize(ctx, actorID); err != nil {
		return err
	}
	if err := s.rules.Delete(ctx, ruleID); err != nil {
		return err
	}
	s.logger.Info("notification rule deleted",
		"notification_id", ruleID, "actor_id", actorID)
	return nil
}

// GetRule returns a single rule.
func (s *Service) GetRule(ctx context.Context, actorID, ruleID int64) (*types.NotificationRule, error) {
	if err := s.authorize(ctx, actorID); err != nil {
		return nil, err
	}
	return s.rules.GetByID(ctx, ruleID)
}

// ListRules returns all rules, enabled or not.
func (s *Service) ListRules(ctx context.Context, actorID int64) ([]types.NotificationRule, error) {
	if err := s.authorize(ctx, actorID); err != nil {
		return nil, err
	}
	return s.rules.List(ctx)
}

// SendHistory returns the newest send records for a rule.
func (s *Service) SendHistory(ctx context.Context, actorID, ruleID int64, limit int) ([]types.SentRecord, error) {
	if err := s.authorize(ctx, actorID); err != nil {
		return nil, err
	}
	return s.sent.ListByRule(ctx, ruleID, limit)
}

// RecentActivity returns the newest engagement events across all rules.
func (s *Service) RecentActivity(ctx context.Context, actorID int64, limit int) ([]types.EngagementEvent, error) {
	if err := s.authorize(ctx, actorID); err != nil {
		return nil, err
	}
	return s.events.ListRecent(ctx, limit)
}

var (
	_ RuleStore     = (*db.RuleRepository)(nil)
	_ HistoryStore  = (*db.SentRepository)(nil)
	_ ActivityStore = (*db.EventRepository)(nil)
)
