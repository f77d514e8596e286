package store

import (
	"courier.chat/relay/core/db"
)

// Stores provides typed data access over a Querier, which may be the pool or
// a transaction. Binding Stores to a pgx.Tx makes every store method in the
// closure transactional.
type Stores struct {
	q db.Querier
}

func NewStores(q db.Querier) *Stores {
	return &Stores{q: q}
}

func (s *Stores) Conversations() ConversationStore {
	return newConversationStore(s.q)
}

func (s *Stores) Messages() MessageStore {
	return newMessageStore(s.q)
}
