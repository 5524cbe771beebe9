package store

// vec0 virtual table and vector_distance_cos scalar function registered
// directly against modernc.org/sqlite, so ANN-style vector search works
// without cgo or github.com/asg017/sqlite-vec-go-bindings's cgo-only build
// tag.

import (
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	sqlite "modernc.org/sqlite"
	"modernc.org/sqlite/vtab"
)

func init() {
	registerVecCompat()
}

func registerVecCompat() {
	_ = vtab.RegisterModule(nil, "vec0", &vecModule{})
	_ = sqlite.RegisterDeterministicScalarFunction("vector_distance_cos", 2, vecDistanceCos)
}

// vecModule implements a minimal vec0 virtual table backed by an in-memory
// row set per table name. The real rows live in memories.embedding; this
// table is rebuilt from that column on store open (see store.go's
// rebuildVecIndex), so it never needs its own durability.
type vecModule struct{}

var (
	vecTablesMu sync.RWMutex
	vecTables   = make(map[string]*vecTable)
)

// vecTable holds rows plus a memory-id secondary index: a memory can be
// re-embedded or pruned without ever knowing its rowid, so every mutation
// keeps byMemoryID in sync rather than forcing callers back to a linear scan
// for matching.
type vecTable struct {
	name       string
	mu         sync.RWMutex
	rows       []vecRow
	byMemoryID map[string]map[int64]struct{}
	nextRowID  int64
}

type vecRow struct {
	rowid     int64
	embedding []byte
	memoryID  string
}

func newVecTable(name string) *vecTable {
	return &vecTable{
		name:       name,
		byMemoryID: make(map[string]map[int64]struct{}),
		nextRowID:  1,
	}
}

// index records rowid as belonging to memoryID. Called with t.mu held.
func (t *vecTable) index(rowid int64, memoryID string) {
	if t.byMemoryID[memoryID] == nil {
		t.byMemoryID[memoryID] = make(map[int64]struct{})
	}
	t.byMemoryID[memoryID][rowid] = struct{}{}
}

// unindex drops rowid from whatever memory-id bucket holds it.
func (t *vecTable) unindex(rowid int64, memoryID string) {
	if set, ok := t.byMemoryID[memoryID]; ok {
		delete(set, rowid)
		if len(set) == 0 {
			delete(t.byMemoryID, memoryID)
		}
	}
}

func (m *vecModule) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.connect(ctx, args)
}

func (m *vecModule) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.connect(ctx, args)
}

func (m *vecModule) connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	if len(args) < 3 {
		return nil, fmt.Errorf("vec0: insufficient args")
	}
	name := args[2]
	if err := ctx.Declare("CREATE TABLE x(embedding BLOB, memory_id TEXT)"); err != nil {
		return nil, err
	}

	vecTablesMu.Lock()
	defer vecTablesMu.Unlock()
	tbl, ok := vecTables[name]
	if !ok {
		tbl = newVecTable(name)
		vecTables[name] = tbl
	}
	return tbl, nil
}

func (t *vecTable) BestIndex(info *vtab.IndexInfo) error {
	info.EstimatedRows = int64(len(t.rows))
	return nil
}

func (t *vecTable) Open() (vtab.Cursor, error) { return &vecCursor{tbl: t, idx: -1}, nil }
func (t *vecTable) Disconnect() error          { return nil }
func (t *vecTable) Destroy() error             { return nil }

func (t *vecTable) Insert(cols []vtab.Value, rowid *int64) error {
	if len(cols) < 2 {
		return fmt.Errorf("vec0: insert expects 2 columns")
	}
	emb, err := coerceBlob(cols[0])
	if err != nil {
		return err
	}
	memoryID := toString(cols[1])

	t.mu.Lock()
	defer t.mu.Unlock()
	rid := *rowid
	if rid <= 0 {
		rid = t.nextRowID
		t.nextRowID++
	}
	for i := range t.rows {
		if t.rows[i].rowid == rid {
			t.unindex(rid, t.rows[i].memoryID)
			t.rows[i] = vecRow{rowid: rid, embedding: emb, memoryID: memoryID}
			t.index(rid, memoryID)
			*rowid = rid
			return nil
		}
	}
	t.rows = append(t.rows, vecRow{rowid: rid, embedding: emb, memoryID: memoryID})
	t.index(rid, memoryID)
	if rid >= t.nextRowID {
		t.nextRowID = rid + 1
	}
	*rowid = rid
	return nil
}

func (t *vecTable) Update(oldRowid int64, cols []vtab.Value, newRowid *int64) error {
	if len(cols) < 2 {
		return fmt.Errorf("vec0: update expects 2 columns")
	}
	emb, err := coerceBlob(cols[0])
	if err != nil {
		return err
	}
	memoryID := toString(cols[1])

	t.mu.Lock()
	defer t.mu.Unlock()
	target := oldRowid
	if newRowid != nil && *newRowid > 0 {
		target = *newRowid
	}
	for i := range t.rows {
		if t.rows[i].rowid == oldRowid {
			t.unindex(oldRowid, t.rows[i].memoryID)
			t.rows[i] = vecRow{rowid: target, embedding: emb, memoryID: memoryID}
			t.index(target, memoryID)
			return nil
		}
	}
	t.rows = append(t.rows, vecRow{rowid: target, embedding: emb, memoryID: memoryID})
	t.index(target, memoryID)
	if target >= t.nextRowID {
		t.nextRowID = target + 1
	}
	return nil
}

func (t *vecTable) Delete(oldRowid int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.rows {
		if t.rows[i].rowid == oldRowid {
			t.unindex(oldRowid, t.rows[i].memoryID)
			t.rows = append(t.rows[:i], t.rows[i+1:]...)
			break
		}
	}
	return nil
}

// deleteByMemoryID removes every row for a memory id, used when a memory is
// pruned or re-embedded. Looks up the owning rowids through the secondary
// index rather than comparing memoryID against every row.
func (t *vecTable) deleteByMemoryID(memoryID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rowids, ok := t.byMemoryID[memoryID]
	if !ok || len(rowids) == 0 {
		return
	}
	out := t.rows[:0]
	for _, r := range t.rows {
		if _, match := rowids[r.rowid]; match {
			continue
		}
		out = append(out, r)
	}
	t.rows = out
	delete(t.byMemoryID, memoryID)
}

// hasMemoryID reports whether any vec row currently belongs to memoryID,
// answered purely from the secondary index with no row scan.
func (t *vecTable) hasMemoryID(memoryID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byMemoryID[memoryID]) > 0
}

type vecCursor struct {
	tbl *vecTable
	idx int
}

func (c *vecCursor) Filter(idxNum int, idxStr string, vals []vtab.Value) error {
	c.idx = -1
	return c.Next()
}

func (c *vecCursor) Next() error { c.idx++; return nil }

func (c *vecCursor) Eof() bool {
	c.tbl.mu.RLock()
	defer c.tbl.mu.RUnlock()
	return c.idx >= len(c.tbl.rows)
}

func (c *vecCursor) Column(col int) (vtab.Value, error) {
	c.tbl.mu.RLock()
	defer c.tbl.mu.RUnlock()
	if c.idx < 0 || c.idx >= len(c.tbl.rows) {
		return nil, fmt.Errorf("vec0: cursor out of range")
	}
	row := c.tbl.rows[c.idx]
	switch col {
	case 0:
		return row.embedding, nil
	case 1:
		return row.memoryID, nil
	default:
		return nil, fmt.Errorf("vec0: invalid column %d", col)
	}
}

func (c *vecCursor) Rowid() (int64, error) {
	c.tbl.mu.RLock()
	defer c.tbl.mu.RUnlock()
	if c.idx < 0 || c.idx >= len(c.tbl.rows) {
		return 0, fmt.Errorf("vec0: cursor out of range")
	}
	return c.tbl.rows[c.idx].rowid, nil
}

func (c *vecCursor) Close() error { return nil }

func vecDistanceCos(ctx *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("vector_distance_cos expects 2 arguments")
	}
	a, err := decodeFloat32(args[0])
	if err != nil {
		return nil, err
	}
	b, err := decodeFloat32(args[1])
	if err != nil {
		return nil, err
	}
	if len(a) == 0 || len(b) == 0 {
		return float64(1), nil
	}
	if len(a) != len(b) {
		return nil, fmt.Errorf("vector_distance_cos: dimension mismatch %d vs %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		af, bf := float64(a[i]), float64(b[i])
		dot += af * bf
		na += af * af
		nb += bf * bf
	}
	if na == 0 || nb == 0 {
		return float64(1), nil
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), nil
}

func decodeFloat32(v driver.Value) ([]float32, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		if len(x)%4 != 0 {
			return nil, fmt.Errorf("vector_distance_cos: blob length %d not multiple of 4", len(x))
		}
		out := make([]float32, len(x)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(x[i*4:]))
		}
		return out, nil
	case string:
		return decodeFloat32([]byte(x))
	default:
		return nil, fmt.Errorf("vector_distance_cos: unsupported type %T", v)
	}
}

func coerceBlob(v vtab.Value) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		cp := make([]byte, len(x))
		copy(cp, x)
		return cp, nil
	case string:
		return []byte(x), nil
	default:
		return nil, fmt.Errorf("vec0: unsupported embedding type %T", v)
	}
}

func toString(v vtab.Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// resetVecTables clears every registered vec0 table. Only the test suite
// calls this — production stores live one per process, so the global
// registry never needs clearing outside of running multiple LocalStore
// instances back to back within the same test binary.
func resetVecTables() {
	vecTablesMu.Lock()
	vecTables = make(map[string]*vecTable)
	vecTablesMu.Unlock()
}

// deleteVecRowsForMemory removes every vec_index row belonging to memoryID,
// if the table has been created in this process.
func deleteVecRowsForMemory(memoryID string) {
	vecTablesMu.RLock()
	tbl, ok := vecTables["vec_index"]
	vecTablesMu.RUnlock()
	if ok {
		tbl.deleteByMemoryID(memoryID)
	}
}

// EncodeEmbedding packs a float32 vector into the little-endian blob format
// vector_distance_cos and the vec0 table expect.
func EncodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeEmbedding is the inverse of EncodeEmbedding.
func DecodeEmbedding(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}
