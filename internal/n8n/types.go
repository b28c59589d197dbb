package n8n

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ID is a remote identifier. n8n has served ids both as JSON strings and
// as numbers depending on version; both decode to the same string.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s", string(data))
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

type Tag struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

type Workflow struct {
	ID          ID                       `json:"id"`
	Name        string                   `json:"name"`
	Active      bool                     `json:"active"`
	Tags        []Tag                    `json:"tags"`
	Nodes       []map[string]interface{} `json:"nodes"`
	Connections map[string]interface{}   `json:"connections"`
	Settings    map[string]interface{}   `json:"settings"`
	CreatedAt   time.Time                `json:"createdAt"`
	UpdatedAt   time.Time                `json:"updatedAt"`

	// Err is set when the item could not be decoded. ID is still filled in
	// when the payload carried one.
	Err error `json:"-"`
}

func (w *Workflow) TagNames() []string {
	names := make([]string, 0, len(w.Tags))
	for _, t := range w.Tags {
		if t.Name != "" {
			names = append(names, t.Name)
		}
	}
	return names
}

type Execution struct {
	ID             ID                     `json:"id"`
	WorkflowID     ID                     `json:"workflowId"`
	Finished       bool                   `json:"finished"`
	Mode           string                 `json:"mode"`
	Status         string                 `json:"status"`
	StartedAt      *time.Time             `json:"startedAt"`
	StoppedAt      *time.Time             `json:"stoppedAt"`
	WaitTill       *time.Time             `json:"waitTill"`
	RetryOf        *ID                    `json:"retryOf"`
	RetrySuccessID *ID                    `json:"retrySuccessId"`
	Data           map[string]interface{} `json:"data"`

	Err error `json:"-"`
}

type ExecutionPage struct {
	Data       []Execution
	NextCursor string
}

type ListExecutionsParams struct {
	Cursor      string
	Limit       int
	WorkflowID  string
	IncludeData bool
}

type listEnvelope struct {
	Data       []json.RawMessage `json:"data"`
	NextCursor *string           `json:"nextCursor"`
}

type idOnly struct {
	ID ID `json:"id"`
}

func decodeWorkflow(raw json.RawMessage) Workflow {
	var wf Workflow
	if err := json.Unmarshal(raw, &wf); err != nil {
		var ident idOnly
		_ = json.Unmarshal(raw, &ident)
		return Workflow{ID: ident.ID, Err: fmt.Errorf("malformed workflow payload: %w", err)}
	}
	return wf
}

func decodeExecution(raw json.RawMessage) Execution {
	var ex Execution
	if err := json.Unmarshal(raw, &ex); err != nil {
		var ident idOnly
		_ = json.Unmarshal(raw, &ident)
		return Execution{ID: ident.ID, Err: fmt.Errorf("malformed execution payload: %w", err)}
	}
	return ex
}
