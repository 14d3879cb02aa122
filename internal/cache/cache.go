// Package cache holds the in-process view of contacts and conversations.
//
// Each contact's messages are kept sorted by timestamp (ties by id). The
// contact's LastMessage and UnreadCount are maintained on every insert so
// list views never scan a conversation.
package cache

import (
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/waconsole/internal/bus"
	"github.com/matheus3301/waconsole/internal/domain"
)

// Cache is safe for concurrent use. Callers that need a read-modify-write
// sequence over one contact serialize it themselves.
type Cache struct {
	mu       sync.RWMutex
	contacts map[string]*domain.Contact
	messages map[string][]domain.Message
	index    map[string]map[string]domain.Message // contact -> message id -> stored copy
	bus      *bus.Bus
	now      func() time.Time
}

// Update describes a change applied by AppendMessage.
type Update struct {
	ContactID string
	MessageID string
	Inserted  bool
}

// New creates an empty cache. b may be nil.
func New(b *bus.Bus) *Cache {
	return &Cache{
		contacts: make(map[string]*domain.Contact),
		messages: make(map[string][]domain.Message),
		index:    make(map[string]map[string]domain.Message),
		bus:      b,
		now:      time.Now,
	}
}

// UpsertContacts merges contacts by id. Incoming values replace stored ones;
// a remote LastMessage is kept only while the cache has no messages for the
// contact.
func (c *Cache) UpsertContacts(contacts []domain.Contact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, in := range contacts {
		if in.ID == "" {
			continue
		}
		next := in.Clone()
		if msgs := c.messages[in.ID]; len(msgs) > 0 {
			last := msgs[len(msgs)-1].Clone()
			next.LastMessage = &last
		}
		c.contacts[in.ID] = &next
	}
}

// EnsureContact adds ct if no contact with its id exists. It reports
// whether ct was added.
func (c *Cache) EnsureContact(ct domain.Contact) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ct.ID == "" {
		return false
	}
	if _, ok := c.contacts[ct.ID]; ok {
		return false
	}
	next := ct.Clone()
	c.contacts[ct.ID] = &next
	return true
}

// MergeContact adds ct, or refreshes the identity fields of the stored
// contact with the non-empty ones from ct. UnreadCount and LastMessage of a
// stored contact are left alone. It reports whether ct was added.
func (c *Cache) MergeContact(ct domain.Contact) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ct.ID == "" {
		return false
	}
	cur, ok := c.contacts[ct.ID]
	if !ok {
		next := ct.Clone()
		c.contacts[ct.ID] = &next
		return true
	}
	if ct.Name != "" {
		cur.Name = ct.Name
	}
	if ct.PhoneNumber != "" {
		cur.PhoneNumber = ct.PhoneNumber
	}
	if ct.ProfileImage != "" {
		cur.ProfileImage = ct.ProfileImage
	}
	if ct.LastSeen != nil {
		seen := *ct.LastSeen
		cur.LastSeen = &seen
	}
	return false
}

// AppendMessage inserts msg in timestamp order, or replaces the stored
// message with the same id. It reports whether msg was newly inserted.
// Messages without a contact id or message id are dropped.
func (c *Cache) AppendMessage(msg domain.Message) bool {
	if msg.ContactID == "" || msg.ID == "" {
		return false
	}
	msg = msg.Clone()

	c.mu.Lock()
	ids := c.index[msg.ContactID]
	if ids == nil {
		ids = make(map[string]domain.Message)
		c.index[msg.ContactID] = ids
	}
	msgs := c.messages[msg.ContactID]

	old, replacing := ids[msg.ID]
	if replacing {
		msgs = remove(msgs, old)
	}
	pos := sort.Search(len(msgs), func(i int) bool { return msg.Before(msgs[i]) })
	msgs = slices.Insert(msgs, pos, msg)
	c.messages[msg.ContactID] = msgs
	ids[msg.ID] = msg

	ct := c.contacts[msg.ContactID]
	if ct == nil {
		ct = &domain.Contact{ID: msg.ContactID, Name: msg.ContactID}
		c.contacts[msg.ContactID] = ct
	}
	last := msgs[len(msgs)-1].Clone()
	ct.LastMessage = &last
	if !replacing && msg.Status == domain.StatusReceived {
		ct.UnreadCount++
	}
	c.mu.Unlock()

	c.bus.Emit(bus.KindConversationUpdate, Update{
		ContactID: msg.ContactID,
		MessageID: msg.ID,
		Inserted:  !replacing,
	})
	return !replacing
}

// remove deletes old from the sorted slice msgs.
func remove(msgs []domain.Message, old domain.Message) []domain.Message {
	i := sort.Search(len(msgs), func(i int) bool { return !msgs[i].Before(old) })
	for ; i < len(msgs); i++ {
		if msgs[i].ID == old.ID {
			return slices.Delete(msgs, i, i+1)
		}
	}
	return msgs
}

// MessagesFor returns a copy of the contact's conversation in ascending
// order, or an empty slice for an unknown contact.
func (c *Cache) MessagesFor(contactID string) []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	msgs := c.messages[contactID]
	out := make([]domain.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// Message looks up one message.
func (c *Cache) Message(contactID, msgID string) (domain.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.index[contactID][msgID]
	if !ok {
		return domain.Message{}, false
	}
	return m.Clone(), true
}

// Contact returns a copy of one contact.
func (c *Cache) Contact(id string) (domain.Contact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ct, ok := c.contacts[id]
	if !ok {
		return domain.Contact{}, false
	}
	return ct.Clone(), true
}

// Contacts returns all contacts, most recent activity first.
func (c *Cache) Contacts() []domain.Contact {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sortedContacts(func(domain.Contact) bool { return true })
}

// SearchContacts returns contacts whose name contains query (case
// insensitive) or whose phone number contains it. An empty query matches all.
func (c *Cache) SearchContacts(query string) []domain.Contact {
	q := strings.ToLower(strings.TrimSpace(query))
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sortedContacts(func(ct domain.Contact) bool {
		return q == "" ||
			strings.Contains(strings.ToLower(ct.Name), q) ||
			strings.Contains(ct.PhoneNumber, q)
	})
}

func (c *Cache) sortedContacts(keep func(domain.Contact) bool) []domain.Contact {
	out := make([]domain.Contact, 0, len(c.contacts))
	for _, ct := range c.contacts {
		if keep(*ct) {
			out = append(out, ct.Clone())
		}
	}
	SortByActivity(out)
	return out
}

// SortByActivity orders contacts most recent activity first, then by name
// and id.
func SortByActivity(contacts []domain.Contact) {
	sort.SliceStable(contacts, func(i, j int) bool {
		a, b := contacts[i].LastActivity(), contacts[j].LastActivity()
		if !a.Equal(b) {
			return a.After(b)
		}
		if contacts[i].Name != contacts[j].Name {
			return contacts[i].Name < contacts[j].Name
		}
		return contacts[i].ID < contacts[j].ID
	})
}

// MarkRead clears the contact's unread count.
func (c *Cache) MarkRead(contactID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ct := c.contacts[contactID]; ct != nil {
		ct.UnreadCount = 0
	}
}

// Derive recomputes a contact's summary from its message log: the message
// with the greatest timestamp and the number of received messages.
func (c *Cache) Derive(contactID string) (last *domain.Message, received int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	msgs := c.messages[contactID]
	for _, m := range msgs {
		if m.Status == domain.StatusReceived {
			received++
		}
	}
	if len(msgs) > 0 {
		lm := msgs[len(msgs)-1].Clone()
		last = &lm
	}
	return last, received
}

// Rebuild resets the contact's LastMessage from its message log.
func (c *Cache) Rebuild(contactID string) {
	last, _ := c.Derive(contactID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if ct := c.contacts[contactID]; ct != nil && last != nil {
		ct.LastMessage = last
	}
}

// Snapshot returns a deep copy of every contact and message, taken under a
// single read lock.
func (c *Cache) Snapshot() domain.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := domain.Snapshot{
		Contacts: c.sortedContacts(func(domain.Contact) bool { return true }),
		TakenAt:  c.now(),
	}
	for _, ct := range snap.Contacts {
		for _, m := range c.messages[ct.ID] {
			snap.Messages = append(snap.Messages, m.Clone())
		}
	}
	return snap
}

// Len returns the number of contacts and messages held.
func (c *Cache) Len() (contacts, messages int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, msgs := range c.messages {
		messages += len(msgs)
	}
	return len(c.contacts), messages
}
