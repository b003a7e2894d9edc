package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kilianp07/chargewatch/core/model"
)

// MemoryStore is an in-process Store enforcing the same constraints as the
// SQL backends. It is used by tests and local experiments.
type MemoryStore struct {
	mu          sync.RWMutex
	chargers    map[int64]model.Charger
	controllers map[string]model.Controller
	statuses    map[int64]model.ConnectionStatus
	states      map[string]model.VehicleState
	sessions    []model.ChargingSession
	nextID      int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chargers:    map[int64]model.Charger{},
		controllers: map[string]model.Controller{},
		statuses:    map[int64]model.ConnectionStatus{},
		states:      map[string]model.VehicleState{},
	}
}

// PutCharger adds or replaces a charger in the inventory.
func (s *MemoryStore) PutCharger(c model.Charger) {
	s.mu.Lock()
	s.chargers[c.ID] = c
	s.mu.Unlock()
}

// RemoveCharger deletes a charger from the inventory.
func (s *MemoryStore) RemoveCharger(id int64) {
	s.mu.Lock()
	delete(s.chargers, id)
	s.mu.Unlock()
}

func (s *MemoryStore) ListChargers(context.Context) ([]model.Charger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Charger, 0, len(s.chargers))
	for _, c := range s.chargers {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *MemoryStore) UpsertConnectionStatus(_ context.Context, st model.ConnectionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chargers[st.ChargerID]; !ok {
		return fmt.Errorf("%w: charger %d", ErrConstraint, st.ChargerID)
	}
	s.statuses[st.ChargerID] = st
	return nil
}

// ConnectionStatus returns the stored status for a charger.
func (s *MemoryStore) ConnectionStatus(chargerID int64) (model.ConnectionStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[chargerID]
	return st, ok
}

func (s *MemoryStore) GetLastState(_ context.Context, controllerID string) (model.VehicleState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[controllerID]
	return st, ok, nil
}

func (s *MemoryStore) SetLastState(_ context.Context, controllerID string, state model.VehicleState) error {
	if err := ValidateState(state); err != nil {
		return err
	}
	s.mu.Lock()
	s.states[controllerID] = state
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) UpsertController(_ context.Context, c model.Controller) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chargers[c.ChargerID]; !ok {
		return fmt.Errorf("%w: charger %d", ErrConstraint, c.ChargerID)
	}
	s.controllers[c.ID] = c
	return nil
}

func (s *MemoryStore) ControllerExists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.controllers[id]
	return ok, nil
}

// Controller returns the stored metadata for a controller.
func (s *MemoryStore) Controller(id string) (model.Controller, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.controllers[id]
	return c, ok
}

func (s *MemoryStore) OpenSession(_ context.Context, start model.SessionStart) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.controllers[start.ControllerID]; !ok {
		return 0, fmt.Errorf("%w: controller %s", ErrConstraint, start.ControllerID)
	}
	for _, sess := range s.sessions {
		if sess.ControllerID == start.ControllerID && sess.Open() {
			return 0, fmt.Errorf("%w: controller %s already has open session %d", ErrConstraint, start.ControllerID, sess.ID)
		}
	}
	s.nextID++
	s.sessions = append(s.sessions, model.ChargingSession{
		ID:           s.nextID,
		ControllerID: start.ControllerID,
		StartTime:    start.StartTime,
		StartReading: start.StartReading,
		RFIDTag:      start.RFIDTag,
		RFIDTime:     start.RFIDTime,
	})
	return s.nextID, nil
}

func (s *MemoryStore) FindOpenSession(_ context.Context, controllerID string) (*model.ChargingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.ControllerID == controllerID && sess.Open() {
			cp := sess
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) CloseSession(_ context.Context, sessionID int64, end model.SessionEnd) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sessions {
		sess := &s.sessions[i]
		if sess.ID != sessionID || !sess.Open() {
			continue
		}
		endTime, reading, consumption, duration := end.EndTime, end.EndReading, end.Consumption, end.Duration
		sess.EndTime = &endTime
		sess.EndReading = &reading
		sess.Consumption = &consumption
		sess.Duration = &duration
		if end.RFIDTag != nil && sess.RFIDTag == nil {
			sess.RFIDTag = end.RFIDTag
			sess.RFIDTime = end.RFIDTime
		}
		return nil
	}
	return fmt.Errorf("%w: open session %d", ErrNotFound, sessionID)
}

// Sessions returns every session of a controller in creation order.
func (s *MemoryStore) Sessions(controllerID string) []model.ChargingSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.ChargingSession
	for _, sess := range s.sessions {
		if sess.ControllerID == controllerID {
			res = append(res, sess)
		}
	}
	return res
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
