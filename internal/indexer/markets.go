package indexer

import "sync"

// marketSet maps tracked market contract addresses to market IDs. Reads far
// outnumber writes: every wasm event is classified against it, while the
// only writer is the market_instantiated handler after its commit.
type marketSet struct {
	mu     sync.RWMutex
	byAddr map[string]string
}

func newMarketSet() *marketSet {
	return &marketSet{byAddr: make(map[string]string)}
}

func (s *marketSet) load(addrs map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, id := range addrs {
		s.byAddr[addr] = id
	}
}

func (s *marketSet) lookup(addr string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byAddr[addr]
	return id, ok
}

func (s *marketSet) add(addr, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byAddr[addr] = id
}

func (s *marketSet) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byAddr)
}
