package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/google/uuid"
	"github.com/linkflow-ai/flowmirror/internal/domain/models"
	"github.com/linkflow-ai/flowmirror/internal/domain/repositories"
	"gorm.io/gorm"
)

var ErrVersionNotFound = errors.New("workflow version not found")

type VersionDiffService struct {
	workflowRepo *repositories.WorkflowRepository
	versionRepo  *repositories.WorkflowVersionRepository
}

func NewVersionDiffService(
	workflowRepo *repositories.WorkflowRepository,
	versionRepo *repositories.WorkflowVersionRepository,
) *VersionDiffService {
	return &VersionDiffService{
		workflowRepo: workflowRepo,
		versionRepo:  versionRepo,
	}
}

// DiffResult represents the difference between two versions
type DiffResult struct {
	FromVersion int            `json:"from_version"`
	ToVersion   int            `json:"to_version"`
	Nodes       NodeDiff       `json:"nodes"`
	Connections ConnectionDiff `json:"connections"`
	Settings    SettingsDiff   `json:"settings"`
	Summary     DiffSummary    `json:"summary"`
}

type NodeDiff struct {
	Added    []NodeChange `json:"added"`
	Removed  []NodeChange `json:"removed"`
	Modified []NodeChange `json:"modified"`
}

type NodeChange struct {
	NodeID   string        `json:"node_id"`
	NodeType string        `json:"node_type"`
	NodeName string        `json:"node_name"`
	Changes  []FieldChange `json:"changes,omitempty"`
}

type ConnectionDiff struct {
	Added   []ConnectionChange `json:"added"`
	Removed []ConnectionChange `json:"removed"`
}

type ConnectionChange struct {
	FromNode   string `json:"from_node"`
	FromOutput string `json:"from_output"`
	ToNode     string `json:"to_node"`
	ToInput    string `json:"to_input"`
}

func (c ConnectionChange) key() string {
	return c.FromNode + ":" + c.FromOutput + "->" + c.ToNode + ":" + c.ToInput
}

type SettingsDiff struct {
	Changes []FieldChange `json:"changes"`
}

type FieldChange struct {
	Field    string      `json:"field"`
	OldValue interface{} `json:"old_value"`
	NewValue interface{} `json:"new_value"`
}

type DiffSummary struct {
	NodesAdded         int `json:"nodes_added"`
	NodesRemoved       int `json:"nodes_removed"`
	NodesModified      int `json:"nodes_modified"`
	ConnectionsAdded   int `json:"connections_added"`
	ConnectionsRemoved int `json:"connections_removed"`
	SettingsChanged    int `json:"settings_changed"`
	TotalChanges       int `json:"total_changes"`
}

func (s DiffSummary) String() string {
	return fmt.Sprintf("nodes +%d -%d ~%d, connections +%d -%d, settings ~%d",
		s.NodesAdded, s.NodesRemoved, s.NodesModified,
		s.ConnectionsAdded, s.ConnectionsRemoved, s.SettingsChanged)
}

// Compare compares two stored versions of a workflow
func (s *VersionDiffService) Compare(ctx context.Context, workflowID uuid.UUID, fromVersion, toVersion int) (*DiffResult, error) {
	from, err := s.findVersion(ctx, workflowID, fromVersion)
	if err != nil {
		return nil, err
	}
	to, err := s.findVersion(ctx, workflowID, toVersion)
	if err != nil {
		return nil, err
	}

	result := DiffWorkflowData(from.WorkflowData, to.WorkflowData)
	result.FromVersion = fromVersion
	result.ToVersion = toVersion
	return result, nil
}

// CompareWithCurrent compares a stored version with the mirrored workflow
func (s *VersionDiffService) CompareWithCurrent(ctx context.Context, workflowID uuid.UUID, version int) (*DiffResult, error) {
	workflow, err := s.workflowRepo.FindByID(ctx, workflowID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWorkflowNotFound
		}
		return nil, err
	}

	from, err := s.findVersion(ctx, workflowID, version)
	if err != nil {
		return nil, err
	}

	result := DiffWorkflowData(from.WorkflowData, workflow.WorkflowData)
	result.FromVersion = version
	result.ToVersion = workflow.Version
	return result, nil
}

func (s *VersionDiffService) ListVersions(ctx context.Context, workflowID uuid.UUID) ([]models.WorkflowVersion, error) {
	return s.versionRepo.FindByWorkflowID(ctx, workflowID)
}

func (s *VersionDiffService) findVersion(ctx context.Context, workflowID uuid.UUID, version int) (*models.WorkflowVersion, error) {
	v, err := s.versionRepo.FindByWorkflowAndVersion(ctx, workflowID, version)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVersionNotFound
		}
		return nil, err
	}
	return v, nil
}

// DiffWorkflowData compares two stored n8n workflow bodies.
func DiffWorkflowData(from, to models.JSON) *DiffResult {
	result := &DiffResult{
		Nodes:       diffNodes(nodeList(from), nodeList(to)),
		Connections: diffConnections(connectionMap(from), connectionMap(to)),
		Settings:    diffSettings(settingsMap(from), settingsMap(to)),
	}

	result.Summary = DiffSummary{
		NodesAdded:         len(result.Nodes.Added),
		NodesRemoved:       len(result.Nodes.Removed),
		NodesModified:      len(result.Nodes.Modified),
		ConnectionsAdded:   len(result.Connections.Added),
		ConnectionsRemoved: len(result.Connections.Removed),
		SettingsChanged:    len(result.Settings.Changes),
	}
	result.Summary.TotalChanges = result.Summary.NodesAdded + result.Summary.NodesRemoved +
		result.Summary.NodesModified + result.Summary.ConnectionsAdded +
		result.Summary.ConnectionsRemoved + result.Summary.SettingsChanged

	return result
}

func diffNodes(from, to []map[string]interface{}) NodeDiff {
	diff := NodeDiff{
		Added:    []NodeChange{},
		Removed:  []NodeChange{},
		Modified: []NodeChange{},
	}

	fromMap := nodesToMap(from)
	toMap := nodesToMap(to)

	for id, toNode := range toMap {
		fromNode, exists := fromMap[id]
		if !exists {
			diff.Added = append(diff.Added, nodeChange(id, toNode, nil))
			continue
		}
		if changes := compareNodes(fromNode, toNode); len(changes) > 0 {
			diff.Modified = append(diff.Modified, nodeChange(id, toNode, changes))
		}
	}

	for id, fromNode := range fromMap {
		if _, exists := toMap[id]; !exists {
			diff.Removed = append(diff.Removed, nodeChange(id, fromNode, nil))
		}
	}

	for _, list := range [][]NodeChange{diff.Added, diff.Removed, diff.Modified} {
		sort.Slice(list, func(i, j int) bool { return list[i].NodeID < list[j].NodeID })
	}
	return diff
}

func nodeChange(id string, node map[string]interface{}, changes []FieldChange) NodeChange {
	return NodeChange{
		NodeID:   id,
		NodeType: getStringField(node, "type"),
		NodeName: getStringField(node, "name"),
		Changes:  changes,
	}
}

func diffConnections(from, to map[string]interface{}) ConnectionDiff {
	diff := ConnectionDiff{
		Added:   []ConnectionChange{},
		Removed: []ConnectionChange{},
	}

	fromSet := connectionsToSet(from)
	toSet := connectionsToSet(to)

	for key, conn := range toSet {
		if _, exists := fromSet[key]; !exists {
			diff.Added = append(diff.Added, conn)
		}
	}
	for key, conn := range fromSet {
		if _, exists := toSet[key]; !exists {
			diff.Removed = append(diff.Removed, conn)
		}
	}

	sort.Slice(diff.Added, func(i, j int) bool { return diff.Added[i].key() < diff.Added[j].key() })
	sort.Slice(diff.Removed, func(i, j int) bool { return diff.Removed[i].key() < diff.Removed[j].key() })
	return diff
}

func diffSettings(fromMap, toMap map[string]interface{}) SettingsDiff {
	diff := SettingsDiff{Changes: []FieldChange{}}

	allKeys := make(map[string]bool)
	for k := range fromMap {
		allKeys[k] = true
	}
	for k := range toMap {
		allKeys[k] = true
	}

	keys := make([]string, 0, len(allKeys))
	for k := range allKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		fromVal, fromExists := fromMap[key]
		toVal, toExists := toMap[key]

		if !fromExists || !toExists || !reflect.DeepEqual(fromVal, toVal) {
			diff.Changes = append(diff.Changes, FieldChange{
				Field:    key,
				OldValue: fromVal,
				NewValue: toVal,
			})
		}
	}

	return diff
}

// nodesToMap keys nodes by id, falling back to name for workflows saved
// before n8n assigned node ids.
func nodesToMap(nodes []map[string]interface{}) map[string]map[string]interface{} {
	result := make(map[string]map[string]interface{}, len(nodes))
	for _, node := range nodes {
		id := getStringField(node, "id")
		if id == "" {
			id = getStringField(node, "name")
		}
		if id != "" {
			result[id] = node
		}
	}
	return result
}

// connectionsToSet flattens n8n's
// {source: {type: [[{node, type, index}]]}} layout.
func connectionsToSet(connections map[string]interface{}) map[string]ConnectionChange {
	result := make(map[string]ConnectionChange)
	for source, byType := range connections {
		types, ok := byType.(map[string]interface{})
		if !ok {
			continue
		}
		for connType, outputs := range types {
			outputList, ok := outputs.([]interface{})
			if !ok {
				continue
			}
			for idx, output := range outputList {
				targets, ok := output.([]interface{})
				if !ok {
					continue
				}
				for _, t := range targets {
					target, ok := t.(map[string]interface{})
					if !ok {
						continue
					}
					change := ConnectionChange{
						FromNode:   source,
						FromOutput: fmt.Sprintf("%s[%d]", connType, idx),
						ToNode:     getStringField(target, "node"),
						ToInput:    fmt.Sprintf("%s[%v]", getStringField(target, "type"), target["index"]),
					}
					result[change.key()] = change
				}
			}
		}
	}
	return result
}

func compareNodes(from, to map[string]interface{}) []FieldChange {
	var changes []FieldChange

	fields := []string{"name", "type", "typeVersion", "position", "parameters", "credentials", "disabled", "notes"}
	for _, field := range fields {
		fromVal, fromExists := from[field]
		toVal, toExists := to[field]

		if !fromExists && !toExists {
			continue
		}
		if !fromExists || !toExists || !reflect.DeepEqual(fromVal, toVal) {
			changes = append(changes, FieldChange{Field: field, OldValue: fromVal, NewValue: toVal})
		}
	}

	return changes
}

func nodeList(data models.JSON) []map[string]interface{} {
	if data == nil {
		return nil
	}
	switch nodes := data["nodes"].(type) {
	case []map[string]interface{}:
		return nodes
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(nodes))
		for _, n := range nodes {
			if m, ok := n.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func connectionMap(data models.JSON) map[string]interface{} {
	if data == nil {
		return nil
	}
	m, _ := data["connections"].(map[string]interface{})
	return m
}

func settingsMap(data models.JSON) map[string]interface{} {
	if data == nil {
		return nil
	}
	m, _ := data["settings"].(map[string]interface{})
	return m
}

func getStringField(m map[string]interface{}, field string) string {
	if v, ok := m[field].(string); ok {
		return v
	}
	return ""
}
