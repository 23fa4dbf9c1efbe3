package agent

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Importance ranks memory entries for eviction. It is unrelated to task
// priority: importance decides what an agent forgets first.
type Importance string

const (
	ImportanceCritical Importance = "critical"
	ImportanceHigh     Importance = "high"
	ImportanceNormal   Importance = "normal"
	ImportanceLow      Importance = "low"
)

// Score maps importance to a numeric rank. Entries scoring 2 or below are
// evictable; high and critical entries are never evicted implicitly.
func (i Importance) Score() int {
	switch i {
	case ImportanceCritical:
		return 4
	case ImportanceHigh:
		return 3
	case ImportanceLow:
		return 1
	default:
		return 2
	}
}

// MemoryEntry is a single remembered value with access metadata
type MemoryEntry struct {
	Key         string     `json:"key"`
	Value       any        `json:"value"`
	Importance  Importance `json:"importance"`
	CreatedAt   time.Time  `json:"created_at"`
	AccessedAt  time.Time  `json:"accessed_at"`
	AccessCount int        `json:"access_count"`
}

// Memory is a bounded, importance-ranked key/value store owned by one
// agent. It carries no internal locking: the owning Agent serializes all
// access through its own mutex.
type Memory struct {
	entries map[string]*MemoryEntry
	maxSize int
}

// NewMemory creates a memory store with the given capacity
func NewMemory(maxSize int) *Memory {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &Memory{
		entries: make(map[string]*MemoryEntry),
		maxSize: maxSize,
	}
}

// Add inserts a value. At capacity it first evicts the oldest entry with
// importance score <= 2. If every entry is high or critical, nothing is
// evicted and the store grows past its bound; HealthCheck surfaces that
// condition via UsagePercentage.
func (m *Memory) Add(key string, value any, importance Importance) {
	if importance == "" {
		importance = ImportanceNormal
	}

	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxSize {
		m.evictOldest()
	}

	now := time.Now()
	m.entries[key] = &MemoryEntry{
		Key:        key,
		Value:      value,
		Importance: importance,
		CreatedAt:  now,
		AccessedAt: now,
	}
}

// Get returns the stored value, or nil if absent. Access metadata is
// updated as a side effect.
func (m *Memory) Get(key string) any {
	entry, ok := m.entries[key]
	if !ok {
		return nil
	}

	entry.AccessedAt = time.Now()
	entry.AccessCount++
	return entry.Value
}

// Remove deletes an entry and returns its value, or nil if absent
func (m *Memory) Remove(key string) any {
	entry, ok := m.entries[key]
	if !ok {
		return nil
	}

	delete(m.entries, key)
	return entry.Value
}

// Search finds entries whose key or stringified value contains the query
// (case-insensitive), sorted by descending importance score and capped at
// limit.
func (m *Memory) Search(query string, limit int) []*MemoryEntry {
	if limit <= 0 {
		limit = 10
	}
	needle := strings.ToLower(query)

	matches := make([]*MemoryEntry, 0)
	for _, entry := range m.entries {
		if strings.Contains(strings.ToLower(entry.Key), needle) ||
			strings.Contains(strings.ToLower(fmt.Sprintf("%v", entry.Value)), needle) {
			matches = append(matches, entry)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Importance.Score() > matches[j].Importance.Score()
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// Recent returns the n most recently created entries, newest first
func (m *Memory) Recent(n int) []*MemoryEntry {
	entries := m.all()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// Important returns up to n entries with importance score >= 3, highest
// first
func (m *Memory) Important(n int) []*MemoryEntry {
	entries := make([]*MemoryEntry, 0)
	for _, entry := range m.entries {
		if entry.Importance.Score() >= 3 {
			entries = append(entries, entry)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Importance.Score() > entries[j].Importance.Score()
	})

	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// Size returns the number of stored entries
func (m *Memory) Size() int {
	return len(m.entries)
}

// MaxSize returns the configured capacity
func (m *Memory) MaxSize() int {
	return m.maxSize
}

// UsagePercentage returns entries/maxSize*100 rounded to two decimals.
// Values above 100 mean the store outgrew its bound with unevictable
// entries.
func (m *Memory) UsagePercentage() float64 {
	pct := float64(len(m.entries)) / float64(m.maxSize) * 100
	return math.Round(pct*100) / 100
}

// evictOldest removes the oldest entry among those with importance score
// <= 2. High and critical entries are left alone.
func (m *Memory) evictOldest() {
	var victim *MemoryEntry
	for _, entry := range m.entries {
		if entry.Importance.Score() > 2 {
			continue
		}
		if victim == nil || entry.CreatedAt.Before(victim.CreatedAt) {
			victim = entry
		}
	}

	if victim != nil {
		delete(m.entries, victim.Key)
	}
}

func (m *Memory) all() []*MemoryEntry {
	entries := make([]*MemoryEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		entries = append(entries, entry)
	}
	return entries
}
