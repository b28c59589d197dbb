package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// JSON is a map serialized into a text column.
type JSON map[string]interface{}

func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return errors.New("failed to scan JSON: " + err.Error())
	}
	if len(bytes) == 0 {
		*j = nil
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// StringList is a string slice serialized as a JSON array.
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return errors.New("failed to scan StringList: " + err.Error())
	}
	if len(bytes) == 0 {
		*s = nil
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// sqlite hands back TEXT columns as string, postgres as []byte.
func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("unsupported column type")
	}
}

// Provider health status
const (
	HealthHealthy = "healthy"
	HealthWarning = "warning"
	HealthError   = "error"
)

// Workflow lifecycle status
const (
	LifecycleActive         = "active"
	LifecycleDeprecated     = "deprecated"
	LifecycleArchived       = "archived"
	LifecycleDeletedFromN8N = "deleted_from_n8n"
)

// Execution status
const (
	ExecutionStatusRunning  = "running"
	ExecutionStatusSuccess  = "success"
	ExecutionStatusError    = "error"
	ExecutionStatusCanceled = "canceled"
	ExecutionStatusWaiting  = "waiting"
	ExecutionStatusUnknown  = "unknown"
)

// Execution mode
const (
	ExecutionModeManual  = "manual"
	ExecutionModeTrigger = "trigger"
	ExecutionModeWebhook = "webhook"
	ExecutionModeCron    = "cron"
	ExecutionModeUnknown = "unknown"
)

// Sync types
const (
	SyncTypeExecutions = "executions"
	SyncTypeWorkflows  = "workflows"
	SyncTypeBackups    = "backups"
	SyncTypeFull       = "full"
)

// Sync log status
const (
	SyncStatusRunning = "running"
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

func IsValidSyncType(t string) bool {
	switch t {
	case SyncTypeExecutions, SyncTypeWorkflows, SyncTypeBackups, SyncTypeFull:
		return true
	}
	return false
}
