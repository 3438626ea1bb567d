// Package testutil holds test doubles shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"faixabet-api/internal/ledger"
	"faixabet-api/internal/models"
)

// WebhookEvent mirrors a webhook_events row.
type WebhookEvent struct {
	ID          string
	Type        string
	ProcessedAt time.Time
	Error       string
}

// MemStore is an in-memory store with the same uniqueness rules as the
// schema: unique user email, one assignment per user, unique ledger
// external reference. Ledger transactions apply all-or-nothing.
type MemStore struct {
	mu sync.Mutex

	state memState
	// FailUserUpdate makes SetUserPlan fail inside the ledger transaction.
	FailUserUpdate error
	// PingErr is returned by Ping.
	PingErr error
}

type memState struct {
	nextUserID  int64
	nextEntryID int64
	users       map[int64]models.User
	assignments map[int64]models.PlanAssignment
	entries     []models.LedgerEntry
	events      map[string]WebhookEvent
}

func NewMemStore() *MemStore {
	return &MemStore{state: memState{
		users:       map[int64]models.User{},
		assignments: map[int64]models.PlanAssignment{},
		events:      map[string]WebhookEvent{},
	}}
}

func (s memState) clone() memState {
	c := memState{
		nextUserID:  s.nextUserID,
		nextEntryID: s.nextEntryID,
		users:       make(map[int64]models.User, len(s.users)),
		assignments: make(map[int64]models.PlanAssignment, len(s.assignments)),
		entries:     append([]models.LedgerEntry(nil), s.entries...),
		events:      make(map[string]WebhookEvent, len(s.events)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.assignments {
		c.assignments[k] = v
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	return c
}

func (m *MemStore) Ping(context.Context) error {
	return m.PingErr
}

func (m *MemStore) EmailExists(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.state.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemStore) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.state.users {
		if existing.Email == u.Email {
			return models.ErrDuplicateEmail
		}
	}
	m.state.nextUserID++
	u.ID = m.state.nextUserID
	u.CreatedAt = time.Now()
	m.state.users[u.ID] = *u
	return nil
}

func (m *MemStore) AssignmentBySubscription(_ context.Context, subscriptionID string) (*models.PlanAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.state.assignments {
		if a.SubscriptionID == subscriptionID {
			a := a
			return &a, nil
		}
	}
	return nil, fmt.Errorf("%w: subscription %s", models.ErrNotFound, subscriptionID)
}

func (m *MemStore) RecordWebhookEvent(_ context.Context, id, eventType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.events[id]; ok {
		return false, nil
	}
	m.state.events[id] = WebhookEvent{ID: id, Type: eventType}
	return true, nil
}

func (m *MemStore) MarkWebhookEvent(_ context.Context, id string, procErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := m.state.events[id]
	ev.ID = id
	ev.ProcessedAt = time.Now()
	ev.Error = ""
	if procErr != nil {
		ev.Error = procErr.Error()
	}
	m.state.events[id] = ev
	return nil
}

func (m *MemStore) InLedgerTx(ctx context.Context, fn func(ledger.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{state: m.state.clone(), failUserUpdate: m.FailUserUpdate}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

// Users returns a snapshot of all users.
func (m *MemStore) Users() []models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.User, 0, len(m.state.users))
	for _, u := range m.state.users {
		out = append(out, u)
	}
	return out
}

// User returns the user with the given id.
func (m *MemStore) User(id int64) (models.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.state.users[id]
	return u, ok
}

// Assignment returns the user's plan assignment.
func (m *MemStore) Assignment(userID int64) (models.PlanAssignment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.state.assignments[userID]
	return a, ok
}

// Entries returns the ledger entries of a user in insertion order.
func (m *MemStore) Entries(userID int64) []models.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range m.state.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

// EntryCount returns the number of ledger entries across all users.
func (m *MemStore) EntryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.entries)
}

// Event returns the recorded webhook event.
func (m *MemStore) Event(id string) (WebhookEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.state.events[id]
	return ev, ok
}

type memTx struct {
	state          memState
	failUserUpdate error
}

func (t *memTx) InsertLedgerEntry(_ context.Context, e *models.LedgerEntry) (bool, error) {
	for _, existing := range t.state.entries {
		if existing.ExternalRef == e.ExternalRef {
			return false, nil
		}
	}
	t.state.nextEntryID++
	e.ID = t.state.nextEntryID
	t.state.entries = append(t.state.entries, *e)
	return true, nil
}

func (t *memTx) UpsertPlanAssignment(_ context.Context, a *models.PlanAssignment) error {
	if existing, ok := t.state.assignments[a.UserID]; ok {
		if existing.PlanID == a.PlanID && existing.Active {
			a.IncludedAt = existing.IncludedAt
		}
		if a.SubscriptionID == "" {
			a.SubscriptionID = existing.SubscriptionID
		}
	}
	t.state.assignments[a.UserID] = *a
	return nil
}

func (t *memTx) SetUserPlan(_ context.Context, userID, planID int64) error {
	if t.failUserUpdate != nil {
		return t.failUserUpdate
	}
	u, ok := t.state.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %d", models.ErrNotFound, userID)
	}
	u.PlanID = planID
	u.Active = true
	t.state.users[userID] = u
	return nil
}

func (t *memTx) DeactivateSubscription(_ context.Context, subscriptionID string) (int64, error) {
	for userID, a := range t.state.assignments {
		if a.SubscriptionID != subscriptionID {
			continue
		}
		a.Active = false
		t.state.assignments[userID] = a
		if u, ok := t.state.users[userID]; ok {
			u.Active = false
			t.state.users[userID] = u
		}
		return userID, nil
	}
	return 0, fmt.Errorf("%w: subscription %s", models.ErrNotFound, subscriptionID)
}
