package graph

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Topology is a renderable description of a graph's shape.
type Topology struct {
	Name  string   `json:"name"`
	Entry string   `json:"entry"`
	Nodes []string `json:"nodes"`
	Edges []Edge   `json:"edges"`
}

// Edge is one directed connection; To may be the END sentinel.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (g *StateGraph[S]) describe() Topology {
	topo := Topology{
		Name:  g.name,
		Entry: g.entry,
		Nodes: append([]string(nil), g.order...),
	}
	for _, name := range g.order {
		if to, ok := g.edges[name]; ok {
			topo.Edges = append(topo.Edges, Edge{From: name, To: to})
		}
	}
	return topo
}

// Describe returns the topology captured at compile time.
func (r *Runnable[S]) Describe() Topology {
	return r.topo
}

// ToMermaid renders the topology as a Mermaid flowchart.
func (t Topology) ToMermaid() string {
	var sb strings.Builder

	sb.WriteString("graph TD\n")
	for _, name := range t.Nodes {
		sb.WriteString(fmt.Sprintf("    %s[%s]\n", name, name))
	}

	hasEnd := false
	for _, edge := range t.Edges {
		if edge.To == END {
			hasEnd = true
		}
	}
	if hasEnd {
		sb.WriteString(fmt.Sprintf("    %s([end])\n", END))
	}

	for _, edge := range t.Edges {
		sb.WriteString(fmt.Sprintf("    %s --> %s\n", edge.From, edge.To))
	}

	return sb.String()
}

// ToJSON renders the topology as indented JSON.
func (t Topology) ToJSON() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}
