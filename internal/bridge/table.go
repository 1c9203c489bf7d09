package bridge

import "sync"

// ticketTable is the concurrent insert/remove registry of outstanding
// tickets. A single RWMutex is sufficient here: entries are identified by
// a random uuid so contention is already spread across lookups, and the
// table is never walked under lock — only point lookups/inserts/removes.
type ticketTable struct {
	mu      sync.RWMutex
	tickets map[string]*Ticket
}

func newTicketTable() *ticketTable {
	return &ticketTable{tickets: make(map[string]*Ticket)}
}

func (t *ticketTable) register(ticket *Ticket) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tickets[ticket.ID] = ticket
}

func (t *ticketTable) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tickets, id)
}

func (t *ticketTable) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tickets)
}
