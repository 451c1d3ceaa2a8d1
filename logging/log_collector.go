package logging

import (
	"sync"
	"time"
)

// LogEntry represents a single log record with structured data.
type LogEntry struct {
	Time       time.Time              `json:"time"`
	Level      string                 `json:"level"` // "debug", "info", "warn", "error"
	Message    string                 `json:"message"`
	Attributes map[string]interface{} `json:"attributes"` // Structured fields
}

// LogCollector provides thread-safe storage for per-instance logs.
type LogCollector struct {
	mu   sync.RWMutex
	logs map[string][]LogEntry // instanceID -> log entries
}

// NewLogCollector creates a new LogCollector.
func NewLogCollector() *LogCollector {
	return &LogCollector{
		logs: make(map[string][]LogEntry),
	}
}

// AddLog adds a log entry for the specified instance (thread-safe).
func (c *LogCollector) AddLog(instanceID string, entry LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logs[instanceID] = append(c.logs[instanceID], entry)
}

// GetLogs retrieves all log entries for a specific instance (thread-safe).
func (c *LogCollector) GetLogs(instanceID string) []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	logs, exists := c.logs[instanceID]
	if !exists {
		return nil
	}

	result := make([]LogEntry, len(logs))
	copy(result, logs)
	return result
}

// GetAllLogs returns all logs grouped by instance ID (thread-safe).
// Returns a deep copy of the internal map to prevent external modification.
func (c *LogCollector) GetAllLogs() map[string][]LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string][]LogEntry, len(c.logs))
	for instanceID, logs := range c.logs {
		logsCopy := make([]LogEntry, len(logs))
		copy(logsCopy, logs)
		result[instanceID] = logsCopy
	}

	return result
}

// Remove drops the stored logs for a single instance (thread-safe).
// Callers prune completed instances they no longer need.
func (c *LogCollector) Remove(instanceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.logs, instanceID)
}

// Clear resets the log collector, removing all stored logs (thread-safe).
func (c *LogCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logs = make(map[string][]LogEntry)
}
