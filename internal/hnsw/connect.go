package hnsw

import "slices"

// connectNode links node to neighbors at layer in both directions. A
// neighbor whose edge list grows past the layer limit is pruned back to
// its closest nodes.
func (h *Index) connectNode(node *Node, neighbors []*priorityQueueItem, layer int) {
	limit := h.getM(layer)

	for _, neighbor := range neighbors {
		if neighbor == nil || neighbor.nodeID == node.ID {
			continue
		}
		neighborNode := h.nodes[neighbor.nodeID]
		if neighborNode == nil || layer > neighborNode.Level {
			continue
		}
		if slices.Contains(node.OutEdges[layer], neighbor.nodeID) {
			continue
		}

		node.OutEdges[layer] = append(node.OutEdges[layer], neighbor.nodeID)

		if !slices.Contains(neighborNode.OutEdges[layer], node.ID) {
			neighborNode.OutEdges[layer] = append(neighborNode.OutEdges[layer], node.ID)
		}
		if len(neighborNode.OutEdges[layer]) > limit {
			h.pruneEdges(neighborNode, layer, limit)
		}
	}
}

// pruneEdges keeps the limit closest neighbors of n at layer.
func (h *Index) pruneEdges(n *Node, layer, limit int) {
	items := make([]*priorityQueueItem, 0, len(n.OutEdges[layer]))
	for _, id := range n.OutEdges[layer] {
		other := h.nodes[id]
		if other == nil {
			continue
		}
		items = append(items, &priorityQueueItem{nodeID: id, distance: h.distanceFunc(n.Vector, other.Vector)})
	}

	kept := selectNeighborsSimple(items, limit)
	edges := make([]int, len(kept))
	for i, it := range kept {
		edges[i] = it.nodeID
	}
	n.OutEdges[layer] = edges
}
