package collab

import (
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
)

type PresenceManager struct {
	mu        sync.RWMutex
	presences map[string]*PresencePayload // clientID -> presence
}

func NewPresenceManager() *PresenceManager {
	return &PresenceManager{
		presences: make(map[string]*PresencePayload),
	}
}

func (pm *PresenceManager) Update(clientID string, p *PresencePayload) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.presences[clientID] = p
}

func (pm *PresenceManager) Remove(clientID string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.presences, clientID)
}

// Prune drops the given element ids from every selection and reports whether
// any presence changed.
func (pm *PresenceManager) Prune(ids []string) bool {
	if len(ids) == 0 {
		return false
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()

	changed := false
	for clientID, p := range pm.presences {
		kept := slices.DeleteFunc(slices.Clone(p.Selection), func(id string) bool {
			return slices.Contains(ids, id)
		})
		if len(kept) == len(p.Selection) {
			continue
		}
		next := *p
		next.Selection = kept
		pm.presences[clientID] = &next
		changed = true
	}
	return changed
}

func (pm *PresenceManager) GetAll() map[string]*PresencePayload {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	result := make(map[string]*PresencePayload, len(pm.presences))
	for k, v := range pm.presences {
		result[k] = v
	}
	return result
}

func (pm *PresenceManager) StateMessage(diagramID string) *Message {
	all := pm.GetAll()
	payload, err := json.Marshal(PresenceStatePayload{Presences: all})
	if err != nil {
		slog.Error("marshal presence state", "error", err)
		return nil
	}
	return &Message{
		Type:      TypePresenceState,
		DiagramID: diagramID,
		Payload:   payload,
	}
}
