// Package stack implements the interned stack trie (StackTable) and the
// per-thread amortized SampleTranslator built on top of it.
package stack

import (
	"sync"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/jhawthorn/vernier/pkg/profiler/host"
)

// StackID is a dense index into a Table's stack trie. It is never
// reused or renumbered once assigned.
type StackID int32

// Root is the synthetic parent of every top-level frame.
const Root StackID = -1

// FrameIdx indexes into a Table's frame index map.
type FrameIdx int32

// FuncIdx indexes into a Table's func index map.
type FuncIdx int32

// ErrEmptyStack is returned by StackIndex when handed a RawSample with
// no usable frames.
var ErrEmptyStack = errors.New("stack: cannot intern an empty sample")

type stackNode struct {
	frame    Frame
	parent   StackID
	index    StackID
	children map[uint64][]childEdge
}

type childEdge struct {
	frame Frame
	node  StackID
}

func newStackNode(frame Frame, index, parent StackID) *stackNode {
	return &stackNode{frame: frame, index: index, parent: parent}
}

func (n *stackNode) find(f Frame) (StackID, bool) {
	for _, e := range n.children[f.hashKey()] {
		if e.frame == f {
			return e.node, true
		}
	}
	return 0, false
}

func (n *stackNode) insert(f Frame, id StackID) {
	key := f.hashKey()
	n.children[key] = append(n.children[key], childEdge{frame: f, node: id})
}

// indexMap assigns dense, stable indices to keys on first insertion, the
// Go analogue of the original's templated IndexMap<K>.
type indexMap[K comparable] struct {
	toIdx map[K]int32
	list  []K
}

func newIndexMap[K comparable]() *indexMap[K] {
	return &indexMap[K]{toIdx: make(map[K]int32)}
}

func (m *indexMap[K]) Index(key K) int32 {
	if idx, ok := m.toIdx[key]; ok {
		return idx
	}
	idx := int32(len(m.list))
	m.list = append(m.list, key)
	m.toIdx[key] = idx
	return idx
}

func (m *indexMap[K]) At(i int32) K {
	return m.list[i]
}

func (m *indexMap[K]) Len() int {
	return len(m.list)
}

// Table is the prefix-shared stack trie plus its frame and function
// index maps. The mutex guards only node insertion/lookup and
// extending the index maps; symbolication happens outside it.
type Table struct {
	mu sync.Mutex

	root  stackNode
	nodes []*stackNode

	frames       *indexMap[Frame]
	funcs        *indexMap[host.FrameHandle]
	funcInfo     []host.FuncInfo
	finalizedIdx int
}

// New creates an empty Table.
func New() *Table {
	t := &Table{
		frames: newIndexMap[Frame](),
		funcs:  newIndexMap[host.FrameHandle](),
	}
	t.root = stackNode{frame: Frame{}, index: Root, parent: Root, children: make(map[uint64][]childEdge)}
	return t
}

func (t *Table) nextNode(parent *stackNode, f Frame) *stackNode {
	if id, ok := parent.find(f); ok {
		return t.nodeAt(id)
	}
	id := StackID(len(t.nodes))
	node := newStackNode(f, id, parent.index)
	node.children = make(map[uint64][]childEdge)
	t.nodes = append(t.nodes, node)
	parent.insert(f, id)
	return node
}

func (t *Table) nodeAt(id StackID) *stackNode {
	if id == Root {
		return &t.root
	}
	return t.nodes[id]
}

// StackIndex walks sample from outermost to innermost frame, descending
// (and extending) the trie, returning the terminal node's id. Runs under
// the table mutex.
func (t *Table) StackIndex(sample *RawSample) (StackID, error) {
	if sample.Empty() {
		return Root, ErrEmptyStack
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	node := &t.root
	for i := 0; i < sample.Size(); i++ {
		node = t.nextNode(node, sample.FrameAt(i))
	}
	return node.index, nil
}

// Parent returns the parent of id, or Root if id is the root or out of
// range.
func (t *Table) Parent(id StackID) StackID {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == Root || int(id) >= len(t.nodes) || id < 0 {
		return Root
	}
	return t.nodes[id].parent
}

// FrameOf returns the FrameIdx for the frame at id.
func (t *Table) FrameOf(id StackID) FrameIdx {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == Root || int(id) >= len(t.nodes) || id < 0 {
		return -1
	}
	return FrameIdx(t.frames.Index(t.nodes[id].frame))
}

// StackCount, FrameCount, FuncCount report the current sizes of the
// trie and index maps under the mutex.
func (t *Table) StackCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}

func (t *Table) FrameCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames.Len()
}

func (t *Table) FuncCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.funcs.Len()
}

// FrameLine returns the source line of the frame at idx.
func (t *Table) FrameLine(idx FrameIdx) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames.At(int32(idx)).Line
}

// FrameFunc returns the FuncIdx of the frame at idx.
func (t *Table) FrameFunc(idx FrameIdx) FuncIdx {
	t.mu.Lock()
	defer t.mu.Unlock()
	f := t.frames.At(int32(idx))
	return FuncIdx(t.funcs.Index(f.Handle))
}

// FuncInfo returns the symbolicated info for the func at idx. Valid
// only after Finalize.
func (t *Table) FuncInfo(idx FuncIdx) host.FuncInfo {
	if int(idx) >= len(t.funcInfo) {
		return host.FuncInfo{Label: "(nil)"}
	}
	return t.funcInfo[idx]
}

// Finalize extends frame_index/func_index over every node discovered
// since the last call, then — without holding the mutex — symbolicates
// any function not yet resolved. Symbolication happens outside the lock
// because it may allocate, trigger GC, or call back into profiler hooks.
func (t *Table) Finalize(rt host.Runtime) {
	var toResolve []host.FrameHandle

	t.mu.Lock()
	for i := t.finalizedIdx; i < len(t.nodes); i++ {
		n := t.nodes[i]
		t.frames.Index(n.frame)
		t.funcs.Index(n.frame.Handle)
	}
	t.finalizedIdx = len(t.nodes)
	for i := len(t.funcInfo); i < t.funcs.Len(); i++ {
		toResolve = append(toResolve, t.funcs.At(int32(i)))
	}
	t.mu.Unlock()

	for _, h := range toResolve {
		info, err := rt.Symbolicate(h)
		if err != nil {
			// unresolved frames get a placeholder rather than failing
			// the whole finalize.
			info = host.FuncInfo{Label: "(nil)", FirstLineno: 0}
		}
		t.funcInfo = append(t.funcInfo, info)
	}
}

// Convert recursively reconstructs other's parent chain for originalID
// inside t, returning t's id for the equivalent stack. Both tables are
// locked in a fixed address order to avoid deadlock.
func (t *Table) Convert(other *Table, originalID StackID) StackID {
	if t == other {
		return originalID
	}

	first, second := t, other
	if uintptr(unsafe.Pointer(other)) < uintptr(unsafe.Pointer(t)) {
		first, second = other, t
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	if second != first {
		second.mu.Lock()
		defer second.mu.Unlock()
	}

	return t.convertLocked(other, originalID)
}

func (t *Table) convertLocked(other *Table, originalID StackID) StackID {
	if originalID == Root {
		return Root
	}
	originalNode := other.nodes[originalID]
	parent := t.convertLocked(other, originalNode.parent)
	node := t.nextNode(t.nodeAt(parent), originalNode.frame)
	return node.index
}

// MarkReachableFrames invokes visit for every frame handle currently
// known, so a movable-GC host can keep them alive until symbolication.
func (t *Table) MarkReachableFrames(visit func(host.FrameHandle)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range t.nodes {
		visit(n.frame.Handle)
	}
}
