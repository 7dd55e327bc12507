package hnsw

import (
	"container/heap"
	"fmt"
	"sort"
)

// Search returns up to k nearest neighbors of query, nearest first. ef is
// the candidate list size; values below k are raised to k and a
// non-positive ef uses the index default. The result is empty only when
// the index is empty. Results are approximate: in a sparse graph (small M)
// some nodes may be unreachable, so fewer than k can come back even when
// the index holds more.
func (h *Index) Search(query []float32, k, ef int) ([]Result, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if k <= 0 || h.entryPointID == -1 {
		return nil, nil
	}
	if len(query) != h.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), h.dim)
	}

	if ef <= 0 {
		ef = h.cfg.EfSearch
	}
	ef = max(ef, k)

	ep := h.nodes[h.entryPointID]
	epDist := h.distanceFunc(query, ep.Vector)
	for l := h.maxLevel; l >= 1; l-- {
		ep, epDist = h.greedyClosest(query, ep, epDist, l)
	}

	candidates := h.searchLayer(query, []*priorityQueueItem{{nodeID: ep.ID, distance: epDist}}, ef, 0)
	candidates = selectNeighborsSimple(candidates, k)

	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = Result{ID: c.nodeID, Distance: c.distance}
	}
	return results, nil
}

// greedyClosest walks layer from ep towards query until no neighbor is closer.
func (h *Index) greedyClosest(query []float32, ep *Node, epDist float32, layer int) (*Node, float32) {
	changed := true
	for changed {
		changed = false
		for _, neighborID := range ep.OutEdges[layer] {
			neighbor := h.nodes[neighborID]
			if neighbor == nil {
				continue
			}
			dist := h.distanceFunc(query, neighbor.Vector)
			if dist < epDist {
				ep, epDist = neighbor, dist
				changed = true
			}
		}
	}
	return ep, epDist
}

// searchLayer performs a best-first search in one layer and returns up to
// ef items ordered by increasing distance.
func (h *Index) searchLayer(query []float32, eps []*priorityQueueItem, ef, layer int) []*priorityQueueItem {
	visited := make(map[int]struct{}, ef*2)
	candidates := newMinQueue()
	results := newMaxQueue()

	for _, ep := range eps {
		if _, seen := visited[ep.nodeID]; seen {
			continue
		}
		visited[ep.nodeID] = struct{}{}
		heap.Push(candidates, &priorityQueueItem{nodeID: ep.nodeID, distance: ep.distance})
		heap.Push(results, &priorityQueueItem{nodeID: ep.nodeID, distance: ep.distance})
		if results.Len() > ef {
			heap.Pop(results)
		}
	}

	for candidates.Len() > 0 {
		candidate := heap.Pop(candidates).(*priorityQueueItem)
		if results.Len() >= ef && candidate.distance > results.Peek().distance {
			break
		}

		node := h.nodes[candidate.nodeID]
		if node == nil || layer > node.Level {
			continue
		}
		for _, neighborID := range node.OutEdges[layer] {
			if _, seen := visited[neighborID]; seen {
				continue
			}
			visited[neighborID] = struct{}{}

			neighbor := h.nodes[neighborID]
			if neighbor == nil {
				continue
			}
			dist := h.distanceFunc(query, neighbor.Vector)
			if results.Len() < ef || dist < results.Peek().distance {
				heap.Push(candidates, &priorityQueueItem{nodeID: neighborID, distance: dist})
				heap.Push(results, &priorityQueueItem{nodeID: neighborID, distance: dist})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]*priorityQueueItem, 0, results.Len())
	for results.Len() > 0 {
		out = append(out, heap.Pop(results).(*priorityQueueItem))
	}
	// Reverse to get results in order of increasing distance
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// selectNeighborsSimple returns the M nearest candidates.
func selectNeighborsSimple(candidates []*priorityQueueItem, M int) []*priorityQueueItem {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].nodeID < candidates[j].nodeID
	})
	if len(candidates) > M {
		return candidates[:M]
	}
	return candidates
}
