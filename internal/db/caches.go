package db

import "sync"

// RuleCache memoizes the subject<->id lookups the events endpoints and admin
// surfaces perform on every hit. It is an explicit object owned by the
// RuleRepository rather than ambient package state, and is invalidated on
// every rule create, update, or delete.
type RuleCache struct {
	mu        sync.RWMutex
	idSubject map[int64]string
	subjectID map[string]int64
}

// NewRuleCache creates an empty RuleCache.
func NewRuleCache() *RuleCache {
	return &RuleCache{
		idSubject: map[int64]string{},
		subjectID: map[string]int64{},
	}
}

// SubjectByID returns the cached subject for a rule id.
func (c *RuleCache) SubjectByID(id int64) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.idSubject[id]
	return s, ok
}

// IDBySubject returns the cached rule id for a subject.
func (c *RuleCache) IDBySubject(subject string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.subjectID[subject]
	return id, ok
}

// Put stores both directions of the subject<->id mapping.
func (c *RuleCache) Put(id int64, subject string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idSubject[id] = subject
	c.subjectID[subject] = id
}

// Invalidate drops any cached entries for the rule id.
func (c *RuleCache) Invalidate(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if subject, ok := c.idSubject[id]; ok {
		delete(c.subjectID, subject)
	}
	delete(c.idSubject, id)
}

// AuthCache memoizes per-user authorization checks for the admin surfaces.
// Entries live for the process lifetime; group membership changes take
// effect on restart, matching the behavior administrators already expect.
type AuthCache struct {
	mu sync.RWMutex
	m  map[int64]bool
}

// NewAuthCache creates an empty AuthCache.
func NewAuthCache() *AuthCache {
	return &AuthCache{m: map[int64]bool{}}
}

// Get returns the cached authorization result for a user.
func (c *AuthCache) Get(userID int64) (bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[userID]
	return v, ok
}

// Put stores an authorization result for a user.
func (c *AuthCache) Put(userID int64, authorized bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[userID] = authorized
}
