package canvas

// quadNode is a scratch quadtree rebuilt fresh every tick to compress the
// dirty set into a small number of covering rectangles. It is never
// retained across calls to DrainDeltas.
//
//	0 1
//	0 a b
//	1 c d
type quadNode struct {
	x, y, w, h uint32
	a, b, c, d *quadNode
	points     [][2]uint32
}

func newQuadNode(x, y, w, h uint32) *quadNode {
	return &quadNode{x: x, y: y, w: w, h: h}
}

// quadrantRect returns the rectangle of the child quadrant that (dx, dy) —
// given as an offset from this node's origin — falls into. childSlot picks
// the matching child slot.
func (n *quadNode) quadrantRect(dx, dy uint32) (x, y, w, h uint32) {
	xLeast := dx < n.w/2
	yLeast := dy < n.h/2
	if xLeast {
		x, w = n.x, n.w/2
	} else {
		x, w = n.x+n.w/2, n.w-n.w/2
	}
	if yLeast {
		y, h = n.y, n.h/2
	} else {
		y, h = n.y+n.h/2, n.h-n.h/2
	}
	return
}

func (n *quadNode) childSlot(dx, dy uint32) **quadNode {
	xLeast := dx < n.w/2
	yLeast := dy < n.h/2
	switch {
	case xLeast && yLeast:
		return &n.a
	case !xLeast && yLeast:
		return &n.b
	case xLeast && !yLeast:
		return &n.c
	default:
		return &n.d
	}
}

// insert walks down lazily creating children until it reaches a 1x1 leaf,
// where the point is stored.
func (n *quadNode) insert(x, y uint32) {
	if n.w == 1 && n.h == 1 {
		n.points = [][2]uint32{{x, y}}
		return
	}
	dx, dy := x-n.x, y-n.y
	slot := n.childSlot(dx, dy)
	if *slot == nil {
		rx, ry, rw, rh := n.quadrantRect(dx, dy)
		*slot = newQuadNode(rx, ry, rw, rh)
	}
	(*slot).insert(x, y)
}

// reduce is the post-order merge pass: a subtree collapses into its own
// point list (dropping its children) when its dirty density exceeds 1/8 of
// its area, or when all four quadrants are populated (full fan-out means
// splitting bought no locality). Returns the subtree's total point count.
func (n *quadNode) reduce() int {
	count := len(n.points)
	children := [4]**quadNode{&n.a, &n.b, &n.c, &n.d}
	for _, slot := range children {
		if *slot != nil {
			count += (*slot).reduce()
		}
	}

	merge := uint64(count) > uint64(n.w)*uint64(n.h)/8 ||
		(n.a != nil && n.b != nil && n.c != nil && n.d != nil)

	if merge {
		var collect func(m *quadNode)
		collect = func(m *quadNode) {
			n.points = append(n.points, m.points...)
			for _, child := range [4]*quadNode{m.a, m.b, m.c, m.d} {
				if child != nil {
					collect(child)
				}
			}
		}
		for _, slot := range children {
			if *slot != nil {
				collect(*slot)
				*slot = nil
			}
		}
	}

	return count
}

type rect struct{ x, y, w, h uint32 }

// regions walks the tree depth-first: a node with points emits its full
// rectangle and stops descending; an empty node recurses into whichever
// children exist.
func (n *quadNode) regions() []rect {
	if len(n.points) > 0 {
		return []rect{{n.x, n.y, n.w, n.h}}
	}
	var out []rect
	for _, child := range [4]*quadNode{n.a, n.b, n.c, n.d} {
		if child != nil {
			out = append(out, child.regions()...)
		}
	}
	return out
}
