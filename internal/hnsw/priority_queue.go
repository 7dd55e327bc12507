package hnsw

// priorityQueue is a heap of search items. The nearest item is on top
// unless farthestFirst is set.
type priorityQueue struct {
	items         []*priorityQueueItem
	farthestFirst bool
}

func newMinQueue() *priorityQueue { return &priorityQueue{} }

func newMaxQueue() *priorityQueue { return &priorityQueue{farthestFirst: true} }

// Len returns the number of elements in the queue
func (pq *priorityQueue) Len() int { return len(pq.items) }

// Less orders by distance, ties broken by node ID so results are stable.
func (pq *priorityQueue) Less(i, j int) bool {
	a, b := pq.items[i], pq.items[j]
	if a.distance != b.distance {
		if pq.farthestFirst {
			return a.distance > b.distance
		}
		return a.distance < b.distance
	}
	if pq.farthestFirst {
		return a.nodeID > b.nodeID
	}
	return a.nodeID < b.nodeID
}

// Swap swaps two elements in the queue
func (pq *priorityQueue) Swap(i, j int) {
	pq.items[i], pq.items[j] = pq.items[j], pq.items[i]
	pq.items[i].index = i
	pq.items[j].index = j
}

// Push adds an element to the queue
func (pq *priorityQueue) Push(x any) {
	item := x.(*priorityQueueItem)
	item.index = len(pq.items)
	pq.items = append(pq.items, item)
}

// Pop removes and returns the last element; use heap.Pop for the top.
func (pq *priorityQueue) Pop() any {
	old := pq.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	pq.items = old[:n-1]
	return item
}

// Peek returns the top element without removing it
func (pq *priorityQueue) Peek() *priorityQueueItem {
	if len(pq.items) == 0 {
		return nil
	}
	return pq.items[0]
}
