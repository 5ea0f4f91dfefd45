package graph

import (
	"context"
	"fmt"
	"sort"

	"lattice/internal/store"
)

// Snapshot is a read-consistent view of the graph: a node table plus an
// edge list addressed by index, so cyclic structures need no special
// handling. Metrics are recomputed per query, never persisted.
type Snapshot struct {
	nodes []string
	index map[string]int
	adj   [][]int // undirected adjacency, deduplicated
}

// Metrics holds the derived structural measures for one node.
type Metrics struct {
	Entity      string  `json:"entity"`
	Degree      int     `json:"degree"`
	Closeness   float64 `json:"closeness"`
	Betweenness float64 `json:"betweenness"`
	Clustering  float64 `json:"clustering"`
}

// Load builds a snapshot from the current graph state. Directed assertion
// edges contribute to adjacency the same as co-occurrence edges; metric
// semantics are over the undirected structure.
func Load(ctx context.Context, gw store.Store) (*Snapshot, error) {
	entities, err := gw.ListEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot entities: %w", err)
	}
	rels, err := gw.ListRelationships(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot relationships: %w", err)
	}
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.ID)
	}
	return NewSnapshot(ids, rels), nil
}

// NewSnapshot builds a snapshot from explicit node IDs and edges.
func NewSnapshot(nodeIDs []string, rels []*store.Relationship) *Snapshot {
	s := &Snapshot{index: make(map[string]int)}
	add := func(id string) int {
		if i, ok := s.index[id]; ok {
			return i
		}
		i := len(s.nodes)
		s.nodes = append(s.nodes, id)
		s.index[id] = i
		s.adj = append(s.adj, nil)
		return i
	}
	for _, id := range nodeIDs {
		add(id)
	}
	type pair struct{ a, b int }
	seen := make(map[pair]bool)
	for _, r := range rels {
		a, b := add(r.SourceID), add(r.TargetID)
		if a == b {
			continue
		}
		if a > b {
			a, b = b, a
		}
		if seen[pair{a, b}] {
			continue
		}
		seen[pair{a, b}] = true
		s.adj[a] = append(s.adj[a], b)
		s.adj[b] = append(s.adj[b], a)
	}
	return s
}

// Size returns the node count.
func (s *Snapshot) Size() int { return len(s.nodes) }

// Compute returns metrics for every node, sorted by entity ID.
// Betweenness uses Brandes' accumulation over unweighted shortest paths;
// total cost is O(V·E), fine for investigation-scale graphs.
func (s *Snapshot) Compute() []Metrics {
	n := len(s.nodes)
	betweenness := make([]float64, n)
	closeness := make([]float64, n)

	// One BFS per source: distances feed closeness, the dependency
	// back-propagation feeds betweenness.
	for src := 0; src < n; src++ {
		dist := make([]int, n)
		sigma := make([]float64, n)
		delta := make([]float64, n)
		preds := make([][]int, n)
		for i := range dist {
			dist[i] = -1
		}
		dist[src] = 0
		sigma[src] = 1
		queue := []int{src}
		var order []int
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			order = append(order, v)
			for _, w := range s.adj[v] {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}

		sum, reachable := 0, 0
		for v := 0; v < n; v++ {
			if v != src && dist[v] > 0 {
				sum += dist[v]
				reachable++
			}
		}
		if sum > 0 {
			closeness[src] = float64(reachable) / float64(sum)
		}

		for i := len(order) - 1; i >= 0; i-- {
			w := order[i]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != src {
				betweenness[w] += delta[w]
			}
		}
	}

	out := make([]Metrics, n)
	for i := 0; i < n; i++ {
		out[i] = Metrics{
			Entity:      s.nodes[i],
			Degree:      len(s.adj[i]),
			Closeness:   closeness[i],
			Betweenness: betweenness[i] / 2, // each undirected path counted twice
			Clustering:  s.clustering(i),
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entity < out[j].Entity })
	return out
}

// clustering is the neighbor interconnection ratio for node i.
func (s *Snapshot) clustering(i int) float64 {
	k := len(s.adj[i])
	if k < 2 {
		return 0
	}
	neighbor := make(map[int]bool, k)
	for _, v := range s.adj[i] {
		neighbor[v] = true
	}
	links := 0
	for _, v := range s.adj[i] {
		for _, w := range s.adj[v] {
			if w > v && neighbor[w] {
				links++
			}
		}
	}
	return float64(2*links) / float64(k*(k-1))
}
