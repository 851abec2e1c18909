package memory

import "math/rand/v2"

// treap is an ordered index: in-order traversal yields items from best to
// worst under less, and every node knows its subtree size so positions are
// O(log n). less must be a strict total order.
type treap[T any] struct {
	root *node[T]
	less func(a, b T) bool
}

type node[T any] struct {
	item  T
	prio  uint64
	left  *node[T]
	right *node[T]
	size  int
}

func newTreap[T any](less func(a, b T) bool) *treap[T] {
	return &treap[T]{less: less}
}

func nsize[T any](n *node[T]) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix[T any](n *node[T]) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight[T any](y *node[T]) *node[T] {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft[T any](x *node[T]) *node[T] {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func (t *treap[T]) Len() int { return nsize(t.root) }

func (t *treap[T]) Insert(item T) {
	t.root = t.insert(t.root, item)
}

func (t *treap[T]) insert(n *node[T], item T) *node[T] {
	if n == nil {
		return &node[T]{item: item, prio: rand.Uint64(), size: 1} //nolint:gosec // balancing only
	}
	if t.less(item, n.item) {
		n.left = t.insert(n.left, item)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = t.insert(n.right, item)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

// Delete removes the item comparing equal to item, if present.
func (t *treap[T]) Delete(item T) {
	t.root = t.delete(t.root, item)
}

func (t *treap[T]) delete(n *node[T], item T) *node[T] {
	if n == nil {
		return nil
	}
	switch {
	case t.less(item, n.item):
		n.left = t.delete(n.left, item)
	case t.less(n.item, item):
		n.right = t.delete(n.right, item)
	default:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = t.delete(n.right, item)
		} else {
			n = rotateLeft(n)
			n.left = t.delete(n.left, item)
		}
	}
	fix(n)
	return n
}

// CountBefore returns how many items rank strictly ahead of item.
func (t *treap[T]) CountBefore(item T) int {
	count := 0
	for n := t.root; n != nil; {
		if t.less(n.item, item) {
			count += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// Slice returns up to limit items starting at position offset.
func (t *treap[T]) Slice(offset, limit int) []T {
	if limit <= 0 || offset >= t.Len() {
		return nil
	}
	out := make([]T, 0, min(limit, t.Len()-offset))
	collect(t.root, &offset, limit, &out)
	return out
}

func collect[T any](n *node[T], skip *int, limit int, out *[]T) {
	if n == nil || len(*out) >= limit {
		return
	}
	if *skip >= nsize(n.left)+1 {
		*skip -= nsize(n.left) + 1
		collect(n.right, skip, limit, out)
		return
	}
	collect(n.left, skip, limit, out)
	if len(*out) >= limit {
		return
	}
	if *skip > 0 {
		*skip--
	} else {
		*out = append(*out, n.item)
	}
	collect(n.right, skip, limit, out)
}

// Ascend calls fn on every item in order until fn returns false.
func (t *treap[T]) Ascend(fn func(T) bool) {
	ascend(t.root, fn)
}

func ascend[T any](n *node[T], fn func(T) bool) bool {
	if n == nil {
		return true
	}
	return ascend(n.left, fn) && fn(n.item) && ascend(n.right, fn)
}
