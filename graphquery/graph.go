// Package graphquery builds a relationship graph over the entity corpus
// and answers structural queries about it (neighbors, paths, orphans).
package graphquery

import (
	"sort"

	"github.com/loomworks/canoncore/canon"
)

// Node is an entity in the relationship graph.
type Node struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	EntityType string `json:"entity_type"`

	// Placeholder marks a node created for a relationship target absent
	// from the corpus.
	Placeholder bool `json:"placeholder,omitempty"`
}

// Edge is a directed relationship between two entities.
type Edge struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Graph is a directed relationship graph with a reverse index for
// undirected traversal.
type Graph struct {
	nodes    map[string]*Node
	outbound map[string]map[string]*Edge
	inbound  map[string]map[string]*Edge
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		outbound: make(map[string]map[string]*Edge),
		inbound:  make(map[string]map[string]*Edge),
	}
}

// Build constructs a graph from the corpus. Relationships pointing at
// entities outside the corpus still create placeholder nodes so broken
// references remain visible in queries.
func Build(entities []*canon.Entity) *Graph {
	g := NewGraph()
	for _, e := range entities {
		g.ensureNode(e.Metadata.ID, e.Name, e.Metadata.EntityType, false)
	}
	for _, e := range entities {
		for _, rel := range e.Relationships {
			if rel.TargetID == "" {
				continue
			}
			g.ensureNode(rel.TargetID, rel.TargetID, "", true)
			g.addEdge(e.Metadata.ID, rel.TargetID, &Edge{
				Type:        rel.Type,
				Description: rel.Description,
			})
		}
	}
	return g
}

func (g *Graph) ensureNode(id, name, entityType string, placeholder bool) *Node {
	if existing, ok := g.nodes[id]; ok {
		// A real entity overrides an earlier placeholder.
		if existing.Placeholder && !placeholder {
			existing.Name = name
			existing.EntityType = entityType
			existing.Placeholder = false
		}
		return existing
	}
	node := &Node{ID: id, Name: name, EntityType: entityType, Placeholder: placeholder}
	g.nodes[id] = node
	return node
}

func (g *Graph) addEdge(sourceID, targetID string, edge *Edge) {
	if g.outbound[sourceID] == nil {
		g.outbound[sourceID] = make(map[string]*Edge)
	}
	g.outbound[sourceID][targetID] = edge

	if g.inbound[targetID] == nil {
		g.inbound[targetID] = make(map[string]*Edge)
	}
	g.inbound[targetID][sourceID] = edge
}

// Node retrieves a node by entity ID, nil if absent.
func (g *Graph) Node(id string) *Node {
	return g.nodes[id]
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of directed edges.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, targets := range g.outbound {
		count += len(targets)
	}
	return count
}

// Neighbor pairs a connected node with the edge that reaches it.
type Neighbor struct {
	Node *Node `json:"node"`
	Edge *Edge `json:"edge"`

	// Inbound is true when the edge points at the queried entity.
	Inbound bool `json:"inbound"`
}

// Neighbors returns all nodes connected to the entity in either
// direction, sorted by ID.
func (g *Graph) Neighbors(id string) []Neighbor {
	seen := make(map[string]bool)
	var result []Neighbor

	for targetID, edge := range g.outbound[id] {
		if node := g.nodes[targetID]; node != nil && !seen[targetID] {
			seen[targetID] = true
			result = append(result, Neighbor{Node: node, Edge: edge})
		}
	}
	for sourceID, edge := range g.inbound[id] {
		if node := g.nodes[sourceID]; node != nil && !seen[sourceID] {
			seen[sourceID] = true
			result = append(result, Neighbor{Node: node, Edge: edge, Inbound: true})
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Node.ID < result[j].Node.ID
	})
	return result
}

// Path finds a shortest undirected path between two entities using BFS.
// Returns nil when no path exists or either endpoint is unknown.
func (g *Graph) Path(fromID, toID string) []*Node {
	if g.nodes[fromID] == nil || g.nodes[toID] == nil {
		return nil
	}
	if fromID == toID {
		return []*Node{g.nodes[fromID]}
	}

	prev := map[string]string{fromID: fromID}
	queue := []string{fromID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range g.adjacentIDs(current) {
			if _, visited := prev[next]; visited {
				continue
			}
			prev[next] = current
			if next == toID {
				return g.tracePath(prev, fromID, toID)
			}
			queue = append(queue, next)
		}
	}
	return nil
}

// adjacentIDs returns neighbor IDs in both directions, sorted for
// deterministic traversal order.
func (g *Graph) adjacentIDs(id string) []string {
	seen := make(map[string]bool)
	var ids []string
	for targetID := range g.outbound[id] {
		if !seen[targetID] {
			seen[targetID] = true
			ids = append(ids, targetID)
		}
	}
	for sourceID := range g.inbound[id] {
		if !seen[sourceID] {
			seen[sourceID] = true
			ids = append(ids, sourceID)
		}
	}
	sort.Strings(ids)
	return ids
}

func (g *Graph) tracePath(prev map[string]string, fromID, toID string) []*Node {
	var reversed []*Node
	for id := toID; ; id = prev[id] {
		reversed = append(reversed, g.nodes[id])
		if id == fromID {
			break
		}
	}
	path := make([]*Node, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		path = append(path, reversed[i])
	}
	return path
}

// Orphans returns entities with no relationships in either direction,
// sorted by ID. Placeholder nodes for unknown targets are excluded.
func (g *Graph) Orphans() []*Node {
	var orphans []*Node
	for id, node := range g.nodes {
		if node.Placeholder {
			continue
		}
		if len(g.outbound[id]) == 0 && len(g.inbound[id]) == 0 {
			orphans = append(orphans, node)
		}
	}
	sort.Slice(orphans, func(i, j int) bool {
		return orphans[i].ID < orphans[j].ID
	})
	return orphans
}

// Related returns all entities reachable from the given entity within
// maxDepth undirected hops, excluding the entity itself, sorted by ID.
func (g *Graph) Related(id string, maxDepth int) []*Node {
	if g.nodes[id] == nil || maxDepth <= 0 {
		return nil
	}

	depth := map[string]int{id: 0}
	queue := []string{id}
	var result []*Node

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if depth[current] >= maxDepth {
			continue
		}
		for _, next := range g.adjacentIDs(current) {
			if _, visited := depth[next]; visited {
				continue
			}
			depth[next] = depth[current] + 1
			result = append(result, g.nodes[next])
			queue = append(queue, next)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// Stats summarizes the graph for the GUI overview panel.
type Stats struct {
	Nodes      int                `json:"nodes"`
	Edges      int                `json:"edges"`
	Orphans    int                `json:"orphans"`
	Centrality map[string]float64 `json:"centrality"`
}

// ComputeStats returns node/edge counts and degree centrality
// ((in+out) / 2(n-1)) per entity.
func (g *Graph) ComputeStats() Stats {
	stats := Stats{
		Nodes:      g.NodeCount(),
		Edges:      g.EdgeCount(),
		Orphans:    len(g.Orphans()),
		Centrality: make(map[string]float64, len(g.nodes)),
	}

	n := len(g.nodes)
	if n <= 1 {
		for id := range g.nodes {
			stats.Centrality[id] = 0
		}
		return stats
	}

	normalizer := 2.0 * float64(n-1)
	for id := range g.nodes {
		stats.Centrality[id] = float64(len(g.outbound[id])+len(g.inbound[id])) / normalizer
	}
	return stats
}
