package vectorindex

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"math/rand/v2"

	"github.com/DRSN-tech/visual-search/pkg/e"
)

const hnswVersion uint32 = 1

// Save сериализует граф. Номера узлов сохраняются, поэтому ссылки на соседей остаются валидными.
//
//	[4B "HNSW"] [4B version]
//	[4B dim] [4B M] [4B efConstruction] [4B efSearch]
//	[4B count] [4B maxLevel] [4B entryID (int32)]
//	count раз:
//	  [4B level] [dim × 4B float32]
//	  для слоёв 0..level: [4B n] [n × 4B id соседа]
func (h *HNSW) Save(w io.Writer) error {
	const op = "HNSW.Save"

	h.mu.RLock()
	defer h.mu.RUnlock()

	bw := bufio.NewWriter(w)
	le := binary.LittleEndian
	write := func(v any) error { return binary.Write(bw, le, v) }

	if _, err := bw.Write(hnswMagic[:]); err != nil {
		return e.Wrap(op, err)
	}

	header := []uint32{
		hnswVersion,
		uint32(h.cfg.Dim),
		uint32(h.cfg.M),
		uint32(h.cfg.EfConstruction),
		uint32(h.cfg.EfSearch),
		uint32(len(h.nodes)),
		uint32(h.maxLevel),
	}
	if err := write(header); err != nil {
		return e.Wrap(op, err)
	}
	if err := write(h.entryID); err != nil {
		return e.Wrap(op, err)
	}

	for _, nd := range h.nodes {
		if err := write(uint32(nd.level)); err != nil {
			return e.Wrap(op, err)
		}
		if err := write(nd.vector); err != nil {
			return e.Wrap(op, err)
		}
		for lev := 0; lev <= nd.level; lev++ {
			friends := nd.friends[lev]
			if err := write(uint32(len(friends))); err != nil {
				return e.Wrap(op, err)
			}
			if len(friends) > 0 {
				if err := write(friends); err != nil {
					return e.Wrap(op, err)
				}
			}
		}
	}

	return bw.Flush()
}

// LoadHNSW читает граф в формате HNSW и проверяет его целостность:
// размерность, точку входа, уровни и диапазон id соседей.
func LoadHNSW(r lenReader) (*HNSW, error) {
	le := binary.LittleEndian
	read := func(v any) error { return binary.Read(r, le, v) }

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, loadErr("hnsw: read magic: %v", err)
	}
	if magic != hnswMagic {
		return nil, loadErr("hnsw: invalid magic %q", magic[:])
	}

	var hdr [7]uint32
	if err := read(&hdr); err != nil {
		return nil, loadErr("hnsw: read header: %v", err)
	}
	version, dim, m, efC, efS, count, maxLevel := hdr[0], hdr[1], hdr[2], hdr[3], hdr[4], hdr[5], hdr[6]

	var entryID int32
	if err := read(&entryID); err != nil {
		return nil, loadErr("hnsw: read entry point: %v", err)
	}

	switch {
	case version != hnswVersion:
		return nil, loadErr("hnsw: unsupported version %d", version)
	case dim == 0:
		return nil, loadErr("hnsw: zero dimension")
	case maxLevel > maxHNSWLevel:
		return nil, loadErr("hnsw: max level %d out of range", maxLevel)
	case count == 0 && entryID != -1:
		return nil, loadErr("hnsw: empty graph with entry point %d", entryID)
	case count > 0 && (entryID < 0 || uint32(entryID) >= count):
		return nil, loadErr("hnsw: entry point %d out of range", entryID)
	}

	// Минимальный размер узла: уровень, вектор и счётчик соседей слоя 0.
	if minNode := 8 + uint64(dim)*4; uint64(count)*minNode > uint64(r.Len()) {
		return nil, loadErr("hnsw: %d nodes do not fit in %d bytes", count, r.Len())
	}

	nodes := make([]*hnswNode, count)
	for i := range nodes {
		var level uint32
		if err := read(&level); err != nil {
			return nil, loadErr("hnsw: node %d: read level: %v", i, err)
		}
		if level > maxLevel {
			return nil, loadErr("hnsw: node %d: level %d above max level %d", i, level, maxLevel)
		}

		vec := make([]float32, dim)
		if err := read(vec); err != nil {
			return nil, loadErr("hnsw: node %d: read vector: %v", i, err)
		}

		friends := make([][]uint32, level+1)
		for lev := range friends {
			var nf uint32
			if err := read(&nf); err != nil {
				return nil, loadErr("hnsw: node %d: read layer %d: %v", i, lev, err)
			}
			if uint64(nf)*4 > uint64(r.Len()) {
				return nil, loadErr("hnsw: node %d: layer %d truncated", i, lev)
			}
			if nf == 0 {
				continue
			}
			friends[lev] = make([]uint32, nf)
			if err := read(friends[lev]); err != nil {
				return nil, loadErr("hnsw: node %d: read layer %d: %v", i, lev, err)
			}
			for _, f := range friends[lev] {
				if f >= count {
					return nil, loadErr("hnsw: node %d: neighbor %d out of range", i, f)
				}
			}
		}

		nodes[i] = &hnswNode{vector: vec, level: int(level), friends: friends}
	}

	if r.Len() != 0 {
		return nil, loadErr("hnsw: %d trailing bytes", r.Len())
	}

	// Соседи на слое lev должны сами присутствовать на этом слое.
	for i, nd := range nodes {
		for lev, friends := range nd.friends {
			for _, f := range friends {
				if nodes[f].level < lev {
					return nil, loadErr("hnsw: node %d: neighbor %d absent on layer %d", i, f, lev)
				}
			}
		}
	}

	cfg := HNSWConfig{Dim: int(dim), M: int(m), EfConstruction: int(efC), EfSearch: int(efS)}
	cfg.setDefaults()

	h := &HNSW{
		cfg:      cfg,
		nodes:    nodes,
		entryID:  entryID,
		maxLevel: int(maxLevel),
		levelMul: 1.0 / math.Log(float64(cfg.M)),
		rng:      rand.New(rand.NewPCG(uint64(count), uint64(dim))),
	}
	if count > 0 && nodes[entryID].level != int(maxLevel) {
		return nil, loadErr("hnsw: entry point level %d != max level %d", nodes[entryID].level, maxLevel)
	}

	return h, nil
}

