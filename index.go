package cogj

import (
	"cmp"
	"math"
	"slices"

	"github.com/paulmach/orb"
)

// IndexNode is one node of a chunk index. Nodes live in a Tree's arena and
// refer to each other by position; Parent is a traversal handle only.
type IndexNode struct {
	Bounds   BBox
	Level    int   // 0 for leaves
	Parent   int   // -1 for the root
	Children []int // arena positions, empty for leaves
	Chunk    int   // header position of the wrapped chunk, -1 for internal nodes

	centre    orb.Point
	hasCentre bool
}

// IsLeaf reports whether the node wraps a chunk.
func (n *IndexNode) IsLeaf() bool {
	return n.Chunk >= 0
}

// Centre returns the centroid of the node's bounds, the key STR packing
// sorts leaves on. It is computed once and recomputed after the bounds change.
func (n *IndexNode) Centre() orb.Point {
	if !n.hasCentre {
		n.centre = n.Bounds.Centre()
		n.hasCentre = true
	}
	return n.centre
}

func (n *IndexNode) setBounds(b BBox) {
	n.Bounds = b
	n.hasCentre = false
}

// Tree is a height-balanced R-tree over chunk descriptors.
type Tree struct {
	Nodes []IndexNode
	Root  int // -1 when empty
}

// Len returns the number of chunks indexed.
func (t *Tree) Len() int {
	n := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			n++
		}
	}
	return n
}

// Height returns the level of the root, or 0 for an empty tree.
func (t *Tree) Height() int {
	if t.Root < 0 {
		return 0
	}
	return t.Nodes[t.Root].Level
}

// Search calls fn with the chunk position of every leaf whose bounds
// intersect q. Subtrees whose bounds miss q are not visited.
func (t *Tree) Search(q BBox, fn func(chunk int)) {
	if t.Root < 0 {
		return
	}
	var visit func(int)
	visit = func(i int) {
		n := &t.Nodes[i]
		if !n.Bounds.Intersects(q) {
			return
		}
		if n.IsLeaf() {
			fn(n.Chunk)
			return
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(t.Root)
}

// LeafOrder returns the wrapped chunk positions, left to right.
func (t *Tree) LeafOrder() []int {
	if t.Root < 0 {
		return nil
	}
	out := make([]int, 0, len(t.Nodes))
	var visit func(int)
	visit = func(i int) {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			out = append(out, n.Chunk)
			return
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(t.Root)
	return out
}

func (t *Tree) add(n IndexNode) int {
	t.Nodes = append(t.Nodes, n)
	return len(t.Nodes) - 1
}

// Shape is the analytic shape of a packed tree.
type Shape struct {
	Height       int // levels above the leaves
	NodeCount    int // internal nodes needed at minimum fill
	SubtreeCount int // root subtrees of a fully packed tree
}

// IndexBuilder bulk-loads trees with sort-tile-recursive packing.
type IndexBuilder struct {
	minItems int
	maxItems int
}

// NewIndexBuilder returns a builder with the given fan-out bounds. The
// minimum must be at most half the maximum so every split can meet it.
func NewIndexBuilder(minItems, maxItems int) (*IndexBuilder, error) {
	if maxItems < 2 || minItems < 1 || 2*minItems > maxItems {
		return nil, configError(ErrInvalidFanout, "min=%d max=%d (need 1 <= min <= max/2)", minItems, maxItems)
	}
	return &IndexBuilder{minItems: minItems, maxItems: maxItems}, nil
}

// MinItems returns the minimum fan-out.
func (b *IndexBuilder) MinItems() int { return b.minItems }

// MaxItems returns the maximum fan-out.
func (b *IndexBuilder) MaxItems() int { return b.maxItems }

// Shape computes the tree shape for n items without building it.
func (b *IndexBuilder) Shape(n int) Shape {
	if n <= 0 {
		return Shape{}
	}
	h := b.height(n)
	var nodes int
	for l := 1; l <= h; l++ {
		nodes += ceilDiv(n, ipow(b.minItems, l))
	}
	perSubtree := ipow(b.maxItems, max(h-1, 0))
	subtrees := int(math.Floor(math.Sqrt(float64(ceilDiv(n, perSubtree)))))
	return Shape{Height: h, NodeCount: nodes, SubtreeCount: subtrees}
}

// height is ceil(log_max(n)) in integer arithmetic.
func (b *IndexBuilder) height(n int) int {
	h, capacity := 0, 1
	for capacity < n {
		capacity = satMul(capacity, b.maxItems)
		h++
	}
	return h
}

// Build packs the chunks into a tree whose leaves wrap one chunk each. The
// result depends only on the chunk boxes and their order.
func (b *IndexBuilder) Build(chunks []ChunkDescriptor) *Tree {
	boxes := make([]BBox, len(chunks))
	for i, c := range chunks {
		boxes[i] = c.BBox
	}
	return b.buildBoxes(boxes)
}

func (b *IndexBuilder) buildBoxes(boxes []BBox) *Tree {
	t := &Tree{Root: -1}
	if len(boxes) == 0 {
		return t
	}
	p := newPacker(boxes)
	t.Nodes = make([]IndexNode, 0, 2*len(boxes))
	t.Root = b.pack(t, p, 0, len(boxes), b.height(len(boxes)), 0, -1)
	return t
}

// pack builds the subtree of the given level over p.order[lo:hi] and returns
// its arena position. depth selects the slicing axis.
func (b *IndexBuilder) pack(t *Tree, p *packer, lo, hi, level, depth, parent int) int {
	if level == 0 {
		leaf := p.leaves[p.order[lo]]
		leaf.Parent = parent
		return t.add(leaf)
	}

	id := t.add(IndexNode{Level: level, Parent: parent, Chunk: -1})
	capacity := ipow(b.maxItems, level-1)
	groups := p.tile(lo, hi, ceilDiv(hi-lo, capacity), depth%2)

	children := make([]int, 0, len(groups))
	var bounds BBox
	for i, g := range groups {
		c := b.pack(t, p, g[0], g[1], level-1, depth+1, id)
		if i == 0 {
			bounds = t.Nodes[c].Bounds
		} else {
			bounds = bounds.Union(t.Nodes[c].Bounds)
		}
		children = append(children, c)
	}
	t.Nodes[id].Children = children
	t.Nodes[id].setBounds(bounds)
	return id
}

// packer holds one leaf per box and the permutation that STR packing sorts
// in place. Sorting reads each leaf's cached centre.
type packer struct {
	leaves []IndexNode
	order  []int
}

func newPacker(boxes []BBox) *packer {
	p := &packer{
		leaves: make([]IndexNode, len(boxes)),
		order:  make([]int, len(boxes)),
	}
	for i, b := range boxes {
		p.leaves[i] = IndexNode{Parent: -1, Chunk: i}
		p.leaves[i].setBounds(b)
		p.leaves[i].Centre()
		p.order[i] = i
	}
	return p
}

func (p *packer) sort(lo, hi, axis int) {
	slices.SortFunc(p.order[lo:hi], func(a, b int) int {
		if c := cmp.Compare(p.leaves[a].Centre()[axis], p.leaves[b].Centre()[axis]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
}

// tile splits order[lo:hi] into k contiguous groups whose sizes differ by at
// most one. The range is sorted on axis and cut into ceil(sqrt(k)) slices;
// each slice is sorted on the other axis before it is cut into groups.
func (p *packer) tile(lo, hi, k, axis int) [][2]int {
	m := hi - lo
	if k < 1 {
		k = 1
	}
	if k > m {
		k = m
	}
	p.sort(lo, hi, axis)

	slicesN := isqrtCeil(k)
	groupsPer, extraGroups := k/slicesN, k%slicesN
	size, extraItems := m/k, m%k
	groupSize := func(g int) int {
		if g < extraItems {
			return size + 1
		}
		return size
	}

	out := make([][2]int, 0, k)
	g, pos := 0, lo
	for s := 0; s < slicesN; s++ {
		n := groupsPer
		if s < extraGroups {
			n++
		}
		sliceLen := 0
		for i := 0; i < n; i++ {
			sliceLen += groupSize(g + i)
		}
		p.sort(pos, pos+sliceLen, 1-axis)
		for i := 0; i < n; i++ {
			sz := groupSize(g)
			out = append(out, [2]int{pos, pos + sz})
			pos += sz
			g++
		}
	}
	return out
}

func ceilDiv(a, b int) int {
	q := a / b
	if a%b != 0 {
		q++
	}
	return q
}

func isqrtCeil(k int) int {
	s := 1
	for s*s < k {
		s++
	}
	return s
}

func ipow(base, exp int) int {
	out := 1
	for i := 0; i < exp; i++ {
		out = satMul(out, base)
	}
	return out
}

func satMul(a, b int) int {
	if a > math.MaxInt/b {
		return math.MaxInt
	}
	return a * b
}
