package trader

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrDuplicateName      = errors.New("participant name already taken")
)

// Roster is the registry of humans and AIs. It returns copies, never internal
// references.
type Roster struct {
	mu     sync.RWMutex
	humans map[ID]Human
	ais    map[ID]AI
	names  map[string]ID
	order  []ID
}

// NewRoster creates an empty Roster.
func NewRoster() *Roster {
	return &Roster{
		humans: make(map[ID]Human),
		ais:    make(map[ID]AI),
		names:  make(map[string]ID),
	}
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// AddHuman registers a player. An empty ID is filled in.
func (r *Roster) AddHuman(h Human) (Human, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.names[nameKey(h.Name)]; taken {
		return Human{}, ErrDuplicateName
	}
	if h.ID == "" {
		h.ID = NewID()
	}
	r.humans[h.ID] = h
	r.names[nameKey(h.Name)] = h.ID
	r.order = append(r.order, h.ID)
	return h, nil
}

// AddAI registers a counterparty. An empty ID is filled in.
func (r *Roster) AddAI(a AI) (AI, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.names[nameKey(a.Name)]; taken {
		return AI{}, ErrDuplicateName
	}
	if a.ID == "" {
		a.ID = NewID()
	}
	r.ais[a.ID] = a.Clone()
	r.names[nameKey(a.Name)] = a.ID
	r.order = append(r.order, a.ID)
	return a.Clone(), nil
}

// Human returns the player with the given ID.
func (r *Roster) Human(id ID) (Human, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.humans[id]
	return h, ok
}

// HumanByName looks a player up by case-insensitive name.
func (r *Roster) HumanByName(name string) (Human, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.names[nameKey(name)]
	if !ok {
		return Human{}, false
	}
	h, ok := r.humans[id]
	return h, ok
}

// AI returns the counterparty with the given ID.
func (r *Roster) AI(id ID) (AI, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.ais[id]
	if !ok {
		return AI{}, false
	}
	return a.Clone(), true
}

// AIs returns every counterparty in registration order.
func (r *Roster) AIs() []AI {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]AI, 0, len(r.ais))
	for _, id := range r.order {
		if a, ok := r.ais[id]; ok {
			out = append(out, a.Clone())
		}
	}
	return out
}

// AIIDs returns the IDs of every counterparty in registration order.
func (r *Roster) AIIDs() []ID {
	ais := r.AIs()
	ids := make([]ID, len(ais))
	for i, a := range ais {
		ids[i] = a.ID
	}
	return ids
}

// Humans returns every player sorted by name.
func (r *Roster) Humans() []Human {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Human, 0, len(r.humans))
	for _, h := range r.humans {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Name resolves a participant ID of either kind to its display name.
func (r *Roster) Name(id ID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.humans[id]; ok {
		return h.Name
	}
	if a, ok := r.ais[id]; ok {
		return a.Name
	}
	return ""
}

// UpdateHuman applies fn to the stored player under the write lock and
// returns the result.
func (r *Roster) UpdateHuman(id ID, fn func(*Human)) (Human, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.humans[id]
	if !ok {
		return Human{}, ErrUnknownParticipant
	}
	fn(&h)
	r.humans[id] = h
	return h, nil
}

// SetSnapshot stores the denormalized position and cash flow of a player.
func (r *Roster) SetSnapshot(id ID, position int64, cashFlow decimal.Decimal) error {
	_, err := r.UpdateHuman(id, func(h *Human) {
		h.Position = position
		h.CashFlow = cashFlow
	})
	return err
}
