package galaxy

import (
	"sort"

	"starfall-server/geom"
)

type candidate struct {
	id   int
	dist float64
}

// ResolveNeighbors triangulates the constellation centers and gives every
// constellation its k nearest Delaunay neighbors. Each list is pruned on its
// own, so u may list v while v does not list u.
func ResolveNeighbors(m *Map, k int) {
	cs := m.Constellations()
	for _, c := range cs {
		c.NeighborIDs = nil
	}
	if len(cs) < 2 || k < 1 {
		return
	}

	centers := make([]geom.Point, len(cs))
	for i, c := range cs {
		centers[i] = c.Center
	}

	candidates := make([][]candidate, len(cs))
	for _, e := range geom.Triangulate(centers) {
		d := geom.Distance(centers[e.A], centers[e.B])
		candidates[e.A] = append(candidates[e.A], candidate{id: cs[e.B].ID, dist: d})
		candidates[e.B] = append(candidates[e.B], candidate{id: cs[e.A].ID, dist: d})
	}

	for i, c := range cs {
		list := candidates[i]
		sort.Slice(list, func(a, b int) bool {
			if list[a].dist != list[b].dist {
				return list[a].dist < list[b].dist
			}
			return list[a].id < list[b].id
		})
		if len(list) > k {
			list = list[:k]
		}
		ids := make([]int, len(list))
		for j, cand := range list {
			ids[j] = cand.id
		}
		c.NeighborIDs = ids
	}
}

// Link is an undirected constellation adjacency, Low < High
type Link struct {
	Low  int `json:"lo" msgpack:"lo"`
	High int `json:"hi" msgpack:"hi"`
}

// UndirectedEdges returns the union of both directions of the neighbor
// relation, deduplicated and sorted.
func UndirectedEdges(m *Map) []Link {
	seen := make(map[Link]bool)
	var links []Link
	for _, c := range m.Constellations() {
		for _, n := range c.NeighborIDs {
			l := Link{Low: c.ID, High: n}
			if l.Low > l.High {
				l.Low, l.High = l.High, l.Low
			}
			if l.Low == l.High || seen[l] {
				continue
			}
			seen[l] = true
			links = append(links, l)
		}
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].Low != links[j].Low {
			return links[i].Low < links[j].Low
		}
		return links[i].High < links[j].High
	})
	return links
}
