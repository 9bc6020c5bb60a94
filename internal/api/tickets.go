package api

import (
	"context"
	"crypto/rand"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/venus-bridge/internal/auth"
)

// ticketTTL bounds how long a WebSocket ticket stays redeemable.
const ticketTTL = time.Minute

// ticketEntry is the identity a ticket was issued to.
type ticketEntry struct {
	subject   string
	role      auth.Role
	expiresAt time.Time
}

// ticketStore holds single-use WebSocket tickets. Browsers cannot set an
// Authorization header on a WebSocket dial, so the panel trades its JWT
// for a ticket and passes that in the URL instead.
type ticketStore struct {
	mu      sync.Mutex
	pending map[string]ticketEntry
	now     func() time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{pending: make(map[string]ticketEntry), now: time.Now}
}

// issue returns a fresh random ticket for subject and role.
func (ts *ticketStore) issue(subject string, role auth.Role) string {
	ticket := rand.Text()

	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.pending[ticket] = ticketEntry{subject: subject, role: role, expiresAt: ts.now().Add(ticketTTL)}
	return ticket
}

// consume redeems ticket. A ticket works at most once and only before it
// expires.
func (ts *ticketStore) consume(ticket string) (ticketEntry, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	entry, ok := ts.pending[ticket]
	delete(ts.pending, ticket)
	if !ok || !ts.now().Before(entry.expiresAt) {
		return ticketEntry{}, false
	}
	return entry, true
}

func (ts *ticketStore) cleanExpired() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := ts.now()
	for ticket, e := range ts.pending {
		if !now.Before(e.expiresAt) {
			delete(ts.pending, ticket)
		}
	}
}

func (ts *ticketStore) len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.pending)
}

// handleWSTicket issues a ticket bound to the caller's identity.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     s.tickets.issue(subjectFromContext(ctx), roleFromContext(ctx)),
		"expires_in": int(ticketTTL / time.Second),
	})
}

// cleanTicketsLoop sweeps expired tickets once per TTL until ctx ends.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	tick := time.NewTicker(ticketTTL)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.tickets.cleanExpired()
		}
	}
}
