package reconcile

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/linkflow-ai/flowmirror/internal/domain/models"
	"github.com/linkflow-ai/flowmirror/internal/n8n"
)

// workflowData is the stored body of a remote workflow. It goes through a
// JSON round trip so fresh and stored values have the same dynamic types.
func workflowData(wf *n8n.Workflow) models.JSON {
	body := map[string]interface{}{
		"id":          wf.ID.String(),
		"name":        wf.Name,
		"active":      wf.Active,
		"nodes":       wf.Nodes,
		"connections": wf.Connections,
		"settings":    wf.Settings,
		"tags":        wf.TagNames(),
		"updatedAt":   wf.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if body["nodes"] == nil {
		body["nodes"] = []interface{}{}
	}
	if body["connections"] == nil {
		body["connections"] = map[string]interface{}{}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return models.JSON(body)
	}
	var out models.JSON
	if err := json.Unmarshal(raw, &out); err != nil {
		return models.JSON(body)
	}
	return out
}

// canonical serializes v with map keys sorted, which encoding/json does for
// maps, so two structurally equal values always yield the same bytes.
func canonical(v interface{}) []byte {
	if v == nil {
		return []byte("null")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return raw
	}
	out, _ := json.Marshal(generic)
	return out
}

// contentChanged compares nodes and connections only. Name, active flag,
// tags and settings never count as a content change.
func contentChanged(stored models.JSON, incoming models.JSON) bool {
	var oldNodes, oldConns interface{}
	if stored != nil {
		oldNodes, oldConns = stored["nodes"], stored["connections"]
	}
	newNodes, newConns := incoming["nodes"], incoming["connections"]

	return !bytes.Equal(canonical(emptyAsNil(oldNodes)), canonical(emptyAsNil(newNodes))) ||
		!bytes.Equal(canonical(emptyAsNil(oldConns)), canonical(emptyAsNil(newConns)))
}

// emptyAsNil treats a missing branch and an empty one as equal.
func emptyAsNil(v interface{}) interface{} {
	switch t := v.(type) {
	case []interface{}:
		if len(t) == 0 {
			return nil
		}
	case map[string]interface{}:
		if len(t) == 0 {
			return nil
		}
	}
	return v
}

func nodeCount(wf *n8n.Workflow) int {
	return len(wf.Nodes)
}

// sameInstant compares remote timestamps at millisecond precision, the
// resolution n8n serves.
func sameInstant(a, b time.Time) bool {
	return a.UTC().Truncate(time.Millisecond).Equal(b.UTC().Truncate(time.Millisecond))
}

func normalizeStatus(ex *n8n.Execution) string {
	switch strings.ToLower(strings.TrimSpace(ex.Status)) {
	case "success":
		return models.ExecutionStatusSuccess
	case "error", "crashed", "failed":
		return models.ExecutionStatusError
	case "running", "new":
		return models.ExecutionStatusRunning
	case "canceled", "cancelled":
		return models.ExecutionStatusCanceled
	case "waiting":
		return models.ExecutionStatusWaiting
	case "":
		// older n8n versions only report finished and stoppedAt
		switch {
		case ex.WaitTill != nil:
			return models.ExecutionStatusWaiting
		case ex.Finished:
			return models.ExecutionStatusSuccess
		case ex.StoppedAt == nil:
			return models.ExecutionStatusRunning
		default:
			return models.ExecutionStatusError
		}
	}
	return models.ExecutionStatusUnknown
}

func normalizeMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case models.ExecutionModeManual:
		return models.ExecutionModeManual
	case models.ExecutionModeTrigger:
		return models.ExecutionModeTrigger
	case models.ExecutionModeWebhook:
		return models.ExecutionModeWebhook
	case models.ExecutionModeCron:
		return models.ExecutionModeCron
	}
	return models.ExecutionModeUnknown
}

// durationMs is null while running or when either end is unknown.
func durationMs(status string, started, stopped *time.Time) *int64 {
	if status == models.ExecutionStatusRunning || started == nil || stopped == nil {
		return nil
	}
	d := stopped.Sub(*started).Milliseconds()
	if d < 0 {
		return nil
	}
	return &d
}

func optionalID(id *n8n.ID) *string {
	if id == nil || *id == "" {
		return nil
	}
	s := id.String()
	return &s
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
