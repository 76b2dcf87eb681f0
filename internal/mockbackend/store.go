package mockbackend

import (
	"sort"
	"sync"
	"time"

	"github.com/jo-hoe/insightboard/internal/jobs"
	"github.com/jo-hoe/insightboard/internal/llm"
)

type analysis struct {
	ID        string
	Owner     string
	Name      string
	Persona   jobs.Persona
	Context   string
	Status    jobs.Status
	CreatedAt time.Time
	Seq       int
	Result    *llm.Result
}

// memStore keeps analyses in memory, standing in for the backend database.
type memStore struct {
	mu   sync.RWMutex
	byID map[string]*analysis
	seq  int
}

func newMemStore() *memStore {
	return &memStore{byID: make(map[string]*analysis)}
}

func (s *memStore) create(a analysis) analysis {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	a.Seq = s.seq
	cp := a
	s.byID[a.ID] = &cp
	return cp
}

func (s *memStore) setStatus(id string, st jobs.Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return false
	}
	a.Status = st
	return true
}

func (s *memStore) complete(id string, res llm.Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return false
	}
	a.Result = &res
	a.Status = jobs.StatusDone
	return true
}

func (s *memStore) get(id string) (analysis, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return analysis{}, false
	}
	return *a, true
}

// list returns the owner's analyses newest first.
func (s *memStore) list(owner string) []analysis {
	s.mu.RLock()
	out := make([]analysis, 0, len(s.byID))
	for _, a := range s.byID {
		if a.Owner == owner {
			out = append(out, *a)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Seq > out[j].Seq
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *memStore) delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}
