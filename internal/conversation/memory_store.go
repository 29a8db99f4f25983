package conversation

import (
	"context"
	"sync"
)

// MemoryStateStore is an in-process StateStore for tests and local runs.
type MemoryStateStore struct {
	mu    sync.Mutex
	state map[string]ExtractedData
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{state: make(map[string]ExtractedData)}
}

func (s *MemoryStateStore) Load(_ context.Context, key Key) (ExtractedData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data, ok := s.state[key.ID()]; ok {
		return data.Clone(), nil
	}
	return ExtractedData{}, nil
}

func (s *MemoryStateStore) Save(_ context.Context, key Key, data ExtractedData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key.ID()] = data.Clone()
	return nil
}

// MemoryHistoryStore is an in-process HistoryStore for tests and local runs.
type MemoryHistoryStore struct {
	mu      sync.Mutex
	history map[string][]ChatMessage
}

func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{history: make(map[string][]ChatMessage)}
}

func (s *MemoryHistoryStore) Append(_ context.Context, key Key, msgs ...ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[key.ID()] = append(s.history[key.ID()], msgs...)
	return nil
}

func (s *MemoryHistoryStore) Recent(_ context.Context, key Key, limit int) ([]ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.history[key.ID()]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}
