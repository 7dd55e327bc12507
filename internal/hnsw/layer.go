package hnsw

// addNode registers node in the id map and in every layer up to its level.
func (h *Index) addNode(node *Node) {
	h.nodes[node.ID] = node
	for l := 0; l <= node.Level; l++ {
		h.addNodeToLayer(node, l)
	}
}

func (h *Index) addNodeToLayer(node *Node, layer int) {
	for len(h.layers) <= layer {
		h.layers = append(h.layers, &Layer{nodes: make([]*Node, 0)})
	}
	h.layers[layer].nodes = append(h.layers[layer].nodes, node)
}

// LayerSizes returns the node count of each layer, bottom first.
func (h *Index) LayerSizes() []int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sizes := make([]int, len(h.layers))
	for i, l := range h.layers {
		sizes[i] = len(l.nodes)
	}
	return sizes
}
