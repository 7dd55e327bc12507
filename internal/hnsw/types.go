// Package hnsw implements the Hierarchical Navigable Small World (HNSW) graph
// for approximate nearest neighbor search over embedding vectors, with
// cosine distance and a flat on-disk dump.
package hnsw

import (
	"errors"
	"math"
	"math/rand"
	"sync"
)

var (
	// ErrDuplicateID is returned when inserting an id that already exists.
	ErrDuplicateID = errors.New("hnsw: duplicate id")
	// ErrDimensionMismatch is returned when a vector's length differs from
	// the index dimension.
	ErrDimensionMismatch = errors.New("hnsw: dimension mismatch")
	// ErrEmptyVector is returned when inserting a zero-length vector.
	ErrEmptyVector = errors.New("hnsw: empty vector")
	// ErrCapacity is returned when the index already holds MaxElements nodes.
	ErrCapacity = errors.New("hnsw: capacity reached")
	// ErrCorrupt is returned by Load for unreadable or inconsistent dumps.
	ErrCorrupt = errors.New("hnsw: corrupt dump")
)

// Node represents a vector in the HNSW graph.
// The bottom layer (index 0) contains all nodes, while higher layers contain
// progressively fewer nodes.
type Node struct {
	// ID is the caller assigned identifier
	ID int

	// Vector is the embedding stored at this node
	Vector []float32

	// Level is the highest layer this node appears in
	Level int

	// OutEdges[layer] holds the neighbor IDs at that layer.
	OutEdges [][]int
}

// Layer is one level of the hierarchy.
type Layer struct {
	nodes []*Node
}

// Config holds the construction parameters of an index. They are written
// into every dump and restored by Load.
type Config struct {
	// M is the maximum number of connections per node above layer 0.
	M int

	// M0 is the maximum number of connections at layer 0. Defaults to 2*M.
	M0 int

	// EfConstruction is the candidate list size used while inserting.
	EfConstruction int

	// EfSearch is the default candidate list size for Search.
	EfSearch int

	// MaxLayer caps the number of layers.
	MaxLayer int

	// MaxElements caps the number of nodes.
	MaxElements int

	// ML is the level normalization factor, 1/ln(M) when zero.
	ML float64

	// Seed feeds the level generator so builds are reproducible.
	Seed int64
}

// DefaultConfig returns the parameters used for document indexes.
func DefaultConfig() Config {
	return Config{
		M:              16,
		M0:             32,
		EfConstruction: 200,
		EfSearch:       20,
		MaxLayer:       16,
		MaxElements:    100000,
		Seed:           42,
	}
}

// Index is an HNSW graph. It is safe for concurrent use; inserts are
// serialized.
type Index struct {
	cfg Config
	dim int

	layers []*Layer

	// nodes maps node IDs to their Node
	nodes map[int]*Node

	entryPointID int
	maxLevel     int

	distanceFunc func(a, b []float32) float32

	mu   sync.RWMutex
	rand *rand.Rand
}

// Result is one search hit.
type Result struct {
	ID       int
	Distance float32
}

// priorityQueueItem is an entry of the search heaps.
type priorityQueueItem struct {
	nodeID   int
	distance float32
	index    int
}

// New creates an empty index. Zero fields of cfg take their DefaultConfig
// values.
func New(cfg Config) *Index {
	cfg = cfg.withDefaults()
	return &Index{
		cfg:          cfg,
		layers:       []*Layer{{nodes: make([]*Node, 0)}},
		nodes:        make(map[int]*Node),
		entryPointID: -1,
		maxLevel:     -1,
		distanceFunc: CosineDistance,
		rand:         rand.New(rand.NewSource(cfg.Seed)),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.M < 2 {
		c.M = d.M
	}
	if c.M0 == 0 {
		c.M0 = c.M * 2
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = d.EfConstruction
	}
	if c.EfSearch <= 0 {
		c.EfSearch = d.EfSearch
	}
	if c.MaxLayer <= 0 {
		c.MaxLayer = d.MaxLayer
	}
	if c.MaxElements <= 0 {
		c.MaxElements = d.MaxElements
	}
	if c.ML == 0 {
		c.ML = 1.0 / math.Log(float64(c.M))
	}
	return c
}

// Config returns the parameters the index was built with.
func (h *Index) Config() Config { return h.cfg }

// Len returns the number of stored vectors.
func (h *Index) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodes)
}

// Dim returns the vector dimension, 0 while the index is empty.
func (h *Index) Dim() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dim
}

// getM returns the maximum number of connections for a given layer
func (h *Index) getM(layer int) int {
	if layer == 0 {
		return h.cfg.M0
	}
	return h.cfg.M
}

// NewNode creates a new node with the given ID, vector, and level
func NewNode(id int, vector []float32, level int) *Node {
	node := &Node{
		ID:       id,
		Vector:   make([]float32, len(vector)),
		Level:    level,
		OutEdges: make([][]int, level+1),
	}
	copy(node.Vector, vector)
	for i := 0; i <= level; i++ {
		node.OutEdges[i] = make([]int, 0)
	}
	return node
}
