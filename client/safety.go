package client

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// SafetyManager stops all HTTP traffic once the target starts refusing us.
type SafetyManager struct {
	mu            sync.RWMutex
	Triggered     bool
	TriggerReason string
	TriggeredAt   time.Time

	// Thresholds
	MaxConsecutiveErrors int
	ErrorCount           int
}

// NewSafetyManager creates a new SafetyManager.
func NewSafetyManager() *SafetyManager {
	return &SafetyManager{
		MaxConsecutiveErrors: 5,
	}
}

// CheckResponse inspects a response for ban signals (403, 429).
// Returns true if safe to proceed, false if safety trigger pulled.
func (sm *SafetyManager) CheckResponse(resp *http.Response) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.Triggered {
		return false
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		sm.triggerLocked(fmt.Sprintf("HTTP %d Detected", resp.StatusCode))
		return false
	}

	if resp.StatusCode >= 500 {
		sm.ErrorCount++
		if sm.ErrorCount >= sm.MaxConsecutiveErrors {
			sm.triggerLocked("Too many consecutive 5xx errors")
			return false
		}
	} else {
		sm.ErrorCount = 0
	}

	return true
}

// CheckError counts a transport failure towards the consecutive error budget.
func (sm *SafetyManager) CheckError(err error) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.ErrorCount++
	if sm.ErrorCount >= sm.MaxConsecutiveErrors {
		sm.triggerLocked(fmt.Sprintf("Too many consecutive transport errors: %v", err))
	}
	return !sm.Triggered
}

func (sm *SafetyManager) triggerLocked(reason string) {
	if !sm.Triggered {
		sm.Triggered = true
		sm.TriggerReason = reason
		sm.TriggeredAt = time.Now()
		log.Error().Str("reason", reason).Msg("safety trigger activated")
	}
}

// IsTriggered reports whether traffic has been stopped.
func (sm *SafetyManager) IsTriggered() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.Triggered
}

func (sm *SafetyManager) Reason() string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.TriggerReason
}
