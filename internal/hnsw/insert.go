package hnsw

import (
	"fmt"
	"math"
)

// Insert adds vector under id. IDs must be unique and every vector must
// have the dimension of the first one inserted.
func (h *Index) Insert(id int, vector []float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(vector) == 0 {
		return ErrEmptyVector
	}
	if h.dim != 0 && len(vector) != h.dim {
		return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vector), h.dim)
	}
	if _, exists := h.nodes[id]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateID, id)
	}
	if len(h.nodes) >= h.cfg.MaxElements {
		return fmt.Errorf("%w: %d elements", ErrCapacity, h.cfg.MaxElements)
	}

	level := h.randomLevel()
	node := NewNode(id, vector, level)
	h.addNode(node)
	if h.dim == 0 {
		h.dim = len(vector)
	}

	if h.entryPointID == -1 {
		h.entryPointID = id
		h.maxLevel = level
		return nil
	}

	// Greedy descent through the layers above the new node's level
	ep := h.nodes[h.entryPointID]
	epDist := h.distanceFunc(vector, ep.Vector)
	for l := h.maxLevel; l > level; l-- {
		ep, epDist = h.greedyClosest(vector, ep, epDist, l)
	}

	eps := []*priorityQueueItem{{nodeID: ep.ID, distance: epDist}}
	for l := min(level, h.maxLevel); l >= 0; l-- {
		candidates := h.searchLayer(vector, eps, h.cfg.EfConstruction, l)
		neighbors := selectNeighborsSimple(candidates, h.getM(l))
		h.connectNode(node, neighbors, l)
		eps = candidates
	}

	if level > h.maxLevel {
		h.maxLevel = level
		h.entryPointID = id
	}
	return nil
}

// randomLevel draws a level from the exponentially decaying distribution
// floor(-ln(U) * mL), capped below MaxLayer.
func (h *Index) randomLevel() int {
	u := h.rand.Float64()
	for u == 0 {
		u = h.rand.Float64()
	}
	level := int(math.Floor(-math.Log(u) * h.cfg.ML))
	if level >= h.cfg.MaxLayer {
		level = h.cfg.MaxLayer - 1
	}
	return level
}
