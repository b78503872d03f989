package main

import (
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
)

// MessageBuffer is a fixed-size ring of recent transcript sentences,
// used to drop near-duplicate finals that providers re-emit around
// utterance boundaries.
type MessageBuffer struct {
	messages []string
	head     int
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewMessageBuffer creates a buffer holding up to capacity sentences.
func NewMessageBuffer(capacity int) *MessageBuffer {
	if capacity <= 0 {
		capacity = 1
	}

	return &MessageBuffer{
		messages: make([]string, capacity),
		capacity: capacity,
	}
}

// Add records a sentence, evicting the oldest when full.
func (mb *MessageBuffer) Add(message string) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	mb.messages[mb.head] = message
	mb.head = (mb.head + 1) % mb.capacity
	if mb.size < mb.capacity {
		mb.size++
	}
}

// IsSimilar reports whether message is at least threshold-similar to
// any buffered sentence. Similarity is 1 minus the normalized
// Levenshtein distance.
func (mb *MessageBuffer) IsSimilar(message string, threshold float64) bool {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	normalized := normalizeMessage(message)
	for i := 0; i < mb.size; i++ {
		if similarity(normalized, normalizeMessage(mb.messages[i])) >= threshold {
			return true
		}
	}
	return false
}

func normalizeMessage(msg string) string {
	return strings.ToLower(strings.TrimSpace(msg))
}

func similarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	distance := levenshtein.ComputeDistance(a, b)
	maxLen := max(len(a), len(b))
	return 1.0 - float64(distance)/float64(maxLen)
}
