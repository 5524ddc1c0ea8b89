package events

import (
	"log"
	"sync"
)

// Stats counts event outcomes across the listener's lifetime.
type Stats struct {
	counts map[Outcome]int
	mu     sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		counts: make(map[Outcome]int),
	}
}

func (s *Stats) Count(outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts[outcome]++
}

func (s *Stats) PrintCounts(logger *log.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for outcome, count := range s.counts {
		logger.Printf("Block events %s: %d", outcome, count)
	}
}
