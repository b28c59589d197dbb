// Package aimetrics pulls LLM token usage out of n8n execution payloads and
// prices it.
//
// Extraction is total: any payload, however malformed, yields a Metrics
// value. Missing or unexpected branches simply contribute nothing.
package aimetrics

import (
	"math"
	"sort"
)

type Metrics struct {
	TotalTokens  int
	InputTokens  int
	OutputTokens int
	Cost         float64
	Provider     string
	Model        string

	// Found is false when no usage shape matched anywhere.
	Found bool
}

// Extract accepts either a whole execution "data" object, its resultData, or
// a bare runData map (node name to list of runs).
func Extract(payload map[string]interface{}) Metrics {
	return ExtractRunData(runDataOf(payload))
}

func runDataOf(payload map[string]interface{}) map[string]interface{} {
	if payload == nil {
		return nil
	}
	if rd := nestedMap(payload, "data", "resultData", "runData"); rd != nil {
		return rd
	}
	if rd := nestedMap(payload, "resultData", "runData"); rd != nil {
		return rd
	}
	if rd := nestedMap(payload, "runData"); rd != nil {
		return rd
	}
	return payload
}

// ExtractRunData scans every node run's output items.
func ExtractRunData(runData map[string]interface{}) Metrics {
	var m Metrics
	family := ""

	for _, node := range orderedNodes(runData) {
		runs, ok := runData[node].([]interface{})
		if !ok {
			continue
		}
		for _, run := range runs {
			for _, item := range outputItems(run) {
				u, matched := matchUsage(item)
				if !matched {
					continue
				}
				m.Found = true
				m.InputTokens += u.input
				m.OutputTokens += u.output
				m.TotalTokens += u.total
				if family == "" {
					family = u.family
				}
				if m.Model == "" {
					m.Model = modelName(item)
				}
			}
		}
	}

	if !m.Found {
		return Metrics{}
	}

	m.Provider = ProviderFor(m.Model)
	if m.Provider == "" {
		m.Provider = family
	}
	m.Cost = round(Cost(m.Model, m.InputTokens, m.OutputTokens, m.TotalTokens))
	return m
}

func matchUsage(item map[string]interface{}) (usage, bool) {
	for _, s := range strategies {
		if u, ok := s.extract(item); ok {
			return u, true
		}
	}
	return usage{}, false
}

// outputItems flattens run.data.<connectionType>[][].json.
func outputItems(run interface{}) []map[string]interface{} {
	r, ok := run.(map[string]interface{})
	if !ok {
		return nil
	}
	data, ok := r["data"].(map[string]interface{})
	if !ok {
		return nil
	}

	connTypes := make([]string, 0, len(data))
	for k := range data {
		connTypes = append(connTypes, k)
	}
	sort.Strings(connTypes)

	var items []map[string]interface{}
	for _, ct := range connTypes {
		outputs, ok := data[ct].([]interface{})
		if !ok {
			continue
		}
		for _, output := range outputs {
			list, ok := output.([]interface{})
			if !ok {
				continue
			}
			for _, entry := range list {
				e, ok := entry.(map[string]interface{})
				if !ok {
					continue
				}
				if j, ok := e["json"].(map[string]interface{}); ok {
					items = append(items, j)
				}
			}
		}
	}
	return items
}

// orderedNodes sorts node names by the start time of their first run, then
// by name. Nodes without a start time go last.
func orderedNodes(runData map[string]interface{}) []string {
	type node struct {
		name  string
		start float64
	}
	nodes := make([]node, 0, len(runData))
	for name, runs := range runData {
		start := math.Inf(1)
		if list, ok := runs.([]interface{}); ok && len(list) > 0 {
			if first, ok := list[0].(map[string]interface{}); ok {
				if v, ok := first["startTime"].(float64); ok {
					start = v
				}
			}
		}
		nodes = append(nodes, node{name: name, start: start})
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].start != nodes[j].start {
			return nodes[i].start < nodes[j].start
		}
		return nodes[i].name < nodes[j].name
	})

	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.name
	}
	return names
}

// round to micro-dollars.
func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
