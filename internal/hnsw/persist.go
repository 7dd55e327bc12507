package hnsw

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/kumarlokesh/sysd/exercises/local-rag/internal/fsutil"
)

// Dump format, big endian, each file ending in a CRC32 (IEEE) of the
// bytes before it:
//
//	<basename>.hnsw.graph
//	  [magic 8][M 4][M0 4][efC 4][efS 4][maxLayer 4][maxElements 4][mL 8][seed 8]
//	  [dim 4][count 4][entry 8][maxLevel 4]
//	  per node by ascending id: [id 8][level 4] then per layer [n 4][neighbor id 8]...
//	<basename>.hnsw.data
//	  [magic 8][dim 4][count 4] per node by ascending id: [id 8][dim x float32]
const (
	graphMagic = "HNSWGRPH"
	dataMagic  = "HNSWDATA"

	GraphSuffix = ".hnsw.graph"
	DataSuffix  = ".hnsw.data"
)

// Files returns the paths Dump writes for basename in dir.
func Files(dir, basename string) (graph, data string) {
	return filepath.Join(dir, basename+GraphSuffix), filepath.Join(dir, basename+DataSuffix)
}

// Dump writes the index into dir. Each file is replaced atomically.
func (h *Index) Dump(dir, basename string) error {
	h.mu.RLock()
	graph, data := h.encode()
	h.mu.RUnlock()

	graphPath, dataPath := Files(dir, basename)
	if err := fsutil.WriteFileAtomic(dataPath, data, 0o644); err != nil {
		return fmt.Errorf("dump vectors: %w", err)
	}
	if err := fsutil.WriteFileAtomic(graphPath, graph, 0o644); err != nil {
		return fmt.Errorf("dump graph: %w", err)
	}
	return nil
}

func (h *Index) sortedIDs() []int {
	ids := make([]int, 0, len(h.nodes))
	for id := range h.nodes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (h *Index) encode() (graph, data []byte) {
	ids := h.sortedIDs()

	g := &bytes.Buffer{}
	g.WriteString(graphMagic)
	put(g,
		uint32(h.cfg.M), uint32(h.cfg.M0), uint32(h.cfg.EfConstruction), uint32(h.cfg.EfSearch),
		uint32(h.cfg.MaxLayer), uint32(h.cfg.MaxElements), math.Float64bits(h.cfg.ML), h.cfg.Seed,
		uint32(h.dim), uint32(len(ids)), int64(h.entryPointID), int32(h.maxLevel),
	)
	for _, id := range ids {
		n := h.nodes[id]
		put(g, int64(n.ID), uint32(n.Level))
		for l := 0; l <= n.Level; l++ {
			put(g, uint32(len(n.OutEdges[l])))
			for _, e := range n.OutEdges[l] {
				put(g, int64(e))
			}
		}
	}
	put(g, crc32.ChecksumIEEE(g.Bytes()))

	d := &bytes.Buffer{}
	d.WriteString(dataMagic)
	put(d, uint32(h.dim), uint32(len(ids)))
	for _, id := range ids {
		put(d, int64(id), h.nodes[id].Vector)
	}
	put(d, crc32.ChecksumIEEE(d.Bytes()))

	return g.Bytes(), d.Bytes()
}

// put writes fixed-size values; writes to a bytes.Buffer cannot fail.
func put(buf *bytes.Buffer, values ...any) {
	for _, v := range values {
		_ = binary.Write(buf, binary.BigEndian, v)
	}
}

// Load reads an index dumped under basename in dir. The returned index owns
// all of its data. efSearch > 0 replaces the recorded search default.
func Load(dir, basename string, efSearch int) (*Index, error) {
	graphPath, dataPath := Files(dir, basename)

	graph, err := readChecked(graphPath, graphMagic)
	if err != nil {
		return nil, err
	}
	data, err := readChecked(dataPath, dataMagic)
	if err != nil {
		return nil, err
	}

	gd := &decoder{r: bytes.NewReader(graph)}
	cfg := Config{
		M:              int(gd.u32()),
		M0:             int(gd.u32()),
		EfConstruction: int(gd.u32()),
		EfSearch:       int(gd.u32()),
		MaxLayer:       int(gd.u32()),
		MaxElements:    int(gd.u32()),
		ML:             math.Float64frombits(gd.u64()),
		Seed:           gd.i64(),
	}
	dim := int(gd.u32())
	count := int(gd.u32())
	entry := int(gd.i64())
	maxLevel := int(gd.i32())
	if gd.err != nil {
		return nil, corrupt(graphPath, gd.err)
	}
	if cfg.M < 2 || cfg.MaxLayer < 1 || count > cfg.MaxElements || count*12 > gd.r.Len() {
		return nil, corrupt(graphPath, fmt.Errorf("implausible header: m=%d layers=%d count=%d", cfg.M, cfg.MaxLayer, count))
	}
	if efSearch > 0 {
		cfg.EfSearch = efSearch
	}

	h := New(cfg)
	h.dim = dim

	order := make([]*Node, 0, count)
	seen := make(map[int]struct{}, count)
	for i := 0; i < count; i++ {
		id := int(gd.i64())
		level := int(gd.u32())
		if gd.err != nil || level >= cfg.MaxLayer {
			return nil, corrupt(graphPath, fmt.Errorf("node %d: bad level %d: %v", i, level, gd.err))
		}
		if _, dup := seen[id]; dup {
			return nil, corrupt(graphPath, fmt.Errorf("duplicate node id %d", id))
		}
		seen[id] = struct{}{}
		n := &Node{ID: id, Level: level, OutEdges: make([][]int, level+1)}
		for l := 0; l <= level; l++ {
			ne := int(gd.u32())
			if gd.err != nil || ne*8 > gd.r.Len() {
				return nil, corrupt(graphPath, fmt.Errorf("node %d layer %d: bad edge count", id, l))
			}
			edges := make([]int, ne)
			for j := range edges {
				edges[j] = int(gd.i64())
			}
			n.OutEdges[l] = edges
		}
		if gd.err != nil {
			return nil, corrupt(graphPath, gd.err)
		}
		order = append(order, n)
	}

	dd := &decoder{r: bytes.NewReader(data)}
	if int(dd.u32()) != dim || int(dd.u32()) != count {
		return nil, corrupt(dataPath, fmt.Errorf("header does not match graph (dim %d, count %d)", dim, count))
	}
	for _, n := range order {
		id := int(dd.i64())
		if dd.err == nil && id != n.ID {
			return nil, corrupt(dataPath, fmt.Errorf("vector id %d, graph expects %d", id, n.ID))
		}
		n.Vector = make([]float32, dim)
		dd.read(n.Vector)
		if dd.err != nil {
			return nil, corrupt(dataPath, dd.err)
		}
		h.addNode(n)
	}
	if len(h.nodes) != count {
		return nil, corrupt(graphPath, fmt.Errorf("decoded %d nodes, header says %d", len(h.nodes), count))
	}

	for _, n := range order {
		for l, edges := range n.OutEdges {
			for _, e := range edges {
				if other, ok := h.nodes[e]; !ok || other.Level < l {
					return nil, corrupt(graphPath, fmt.Errorf("node %d layer %d: dangling edge to %d", n.ID, l, e))
				}
			}
		}
	}

	if count > 0 {
		ep, ok := h.nodes[entry]
		if !ok {
			return nil, corrupt(graphPath, fmt.Errorf("unknown entry point %d", entry))
		}
		if ep.Level != maxLevel {
			return nil, corrupt(graphPath, fmt.Errorf("max level %d, entry point %d has level %d", maxLevel, entry, ep.Level))
		}
		h.entryPointID = entry
		h.maxLevel = maxLevel
	}
	return h, nil
}

func corrupt(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCorrupt, filepath.Base(path), err)
}

// readChecked reads path, verifies magic and trailing checksum and returns
// the payload between them.
func readChecked(path, magic string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index file: %w", err)
	}
	if len(raw) < len(magic)+4 || string(raw[:len(magic)]) != magic {
		return nil, corrupt(path, fmt.Errorf("missing %s header", magic))
	}
	body, sum := raw[:len(raw)-4], binary.BigEndian.Uint32(raw[len(raw)-4:])
	if crc32.ChecksumIEEE(body) != sum {
		return nil, corrupt(path, fmt.Errorf("checksum mismatch"))
	}
	return body[len(magic):], nil
}

// decoder reads big endian values and keeps the first error.
type decoder struct {
	r   *bytes.Reader
	err error
}

func (d *decoder) read(v any) {
	if d.err != nil {
		return
	}
	d.err = binary.Read(d.r, binary.BigEndian, v)
}

func (d *decoder) u32() uint32 {
	var v uint32
	d.read(&v)
	return v
}

func (d *decoder) i32() int32 {
	var v int32
	d.read(&v)
	return v
}

func (d *decoder) u64() uint64 {
	var v uint64
	d.read(&v)
	return v
}

func (d *decoder) i64() int64 {
	var v int64
	d.read(&v)
	return v
}
