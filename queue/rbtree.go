package queue

import (
	"time"

	"github.com/Jiyabhaviksadaria/smartqueue/id"
)

// Key orders waiting tokens. Lower keys are served first.
type Key struct {
	Rank      int
	CreatedAt time.Time
	Seq       uint64
}

// Compare returns -1, 0 or +1.
func (k Key) Compare(o Key) int {
	switch {
	case k.Rank != o.Rank:
		return cmpInt(k.Rank, o.Rank)
	case !k.CreatedAt.Equal(o.CreatedAt):
		return k.CreatedAt.Compare(o.CreatedAt)
	case k.Seq != o.Seq:
		if k.Seq < o.Seq {
			return -1
		}
		return 1
	}
	return 0
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	return 1
}

// tree is a left-leaning red-black tree with subtree sizes, giving
// O(log n) insert, delete and rank.
type tree struct {
	root *node
}

type node struct {
	key         Key
	tokenID     id.TokenID
	left, right *node
	red         bool
	size        int
}

func isRed(n *node) bool { return n != nil && n.red }

func size(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func (t *tree) Len() int { return size(t.root) }

func (t *tree) Put(k Key, tokenID id.TokenID) {
	t.root = put(t.root, k, tokenID)
	t.root.red = false
}

func put(h *node, k Key, tokenID id.TokenID) *node {
	if h == nil {
		return &node{key: k, tokenID: tokenID, red: true, size: 1}
	}
	switch c := k.Compare(h.key); {
	case c < 0:
		h.left = put(h.left, k, tokenID)
	case c > 0:
		h.right = put(h.right, k, tokenID)
	default:
		h.tokenID = tokenID
	}
	return balance(h)
}

// Contains reports whether k is in the tree.
func (t *tree) Contains(k Key) bool {
	h := t.root
	for h != nil {
		switch c := k.Compare(h.key); {
		case c < 0:
			h = h.left
		case c > 0:
			h = h.right
		default:
			return true
		}
	}
	return false
}

// Delete removes k and reports whether it was present.
func (t *tree) Delete(k Key) bool {
	if !t.Contains(k) {
		return false
	}
	if !isRed(t.root.left) && !isRed(t.root.right) {
		t.root.red = true
	}
	t.root = del(t.root, k)
	if t.root != nil {
		t.root.red = false
	}
	return true
}

// del assumes k is present in h.
func del(h *node, k Key) *node {
	if k.Compare(h.key) < 0 {
		if !isRed(h.left) && !isRed(h.left.left) {
			h = moveRedLeft(h)
		}
		h.left = del(h.left, k)
	} else {
		if isRed(h.left) {
			h = rotateRight(h)
		}
		if k.Compare(h.key) == 0 && h.right == nil {
			return nil
		}
		if !isRed(h.right) && !isRed(h.right.left) {
			h = moveRedRight(h)
		}
		if k.Compare(h.key) == 0 {
			m := minNode(h.right)
			h.key, h.tokenID = m.key, m.tokenID
			h.right = deleteMin(h.right)
		} else {
			h.right = del(h.right, k)
		}
	}
	return balance(h)
}

func deleteMin(h *node) *node {
	if h.left == nil {
		return nil
	}
	if !isRed(h.left) && !isRed(h.left.left) {
		h = moveRedLeft(h)
	}
	h.left = deleteMin(h.left)
	return balance(h)
}

// Min returns the smallest entry.
func (t *tree) Min() (Key, id.TokenID, bool) {
	if t.root == nil {
		return Key{}, id.Nil, false
	}
	m := minNode(t.root)
	return m.key, m.tokenID, true
}

func minNode(h *node) *node {
	for h.left != nil {
		h = h.left
	}
	return h
}

// Rank returns the number of keys strictly less than k.
func (t *tree) Rank(k Key) int {
	r := 0
	h := t.root
	for h != nil {
		switch c := k.Compare(h.key); {
		case c < 0:
			h = h.left
		case c > 0:
			r += 1 + size(h.left)
			h = h.right
		default:
			return r + size(h.left)
		}
	}
	return r
}

// Ascend visits entries in order until fn returns false.
func (t *tree) Ascend(fn func(Key, id.TokenID) bool) {
	ascend(t.root, fn)
}

func ascend(h *node, fn func(Key, id.TokenID) bool) bool {
	if h == nil {
		return true
	}
	return ascend(h.left, fn) && fn(h.key, h.tokenID) && ascend(h.right, fn)
}

func rotateLeft(h *node) *node {
	x := h.right
	h.right = x.left
	x.left = h
	x.red = h.red
	h.red = true
	x.size = h.size
	h.size = 1 + size(h.left) + size(h.right)
	return x
}

func rotateRight(h *node) *node {
	x := h.left
	h.left = x.right
	x.right = h
	x.red = h.red
	h.red = true
	x.size = h.size
	h.size = 1 + size(h.left) + size(h.right)
	return x
}

func flipColors(h *node) {
	h.red = !h.red
	h.left.red = !h.left.red
	h.right.red = !h.right.red
}

func moveRedLeft(h *node) *node {
	flipColors(h)
	if isRed(h.right.left) {
		h.right = rotateRight(h.right)
		h = rotateLeft(h)
		flipColors(h)
	}
	return h
}

func moveRedRight(h *node) *node {
	flipColors(h)
	if isRed(h.left.left) {
		h = rotateRight(h)
		flipColors(h)
	}
	return h
}

func balance(h *node) *node {
	if isRed(h.right) && !isRed(h.left) {
		h = rotateLeft(h)
	}
	if isRed(h.left) && isRed(h.left.left) {
		h = rotateRight(h)
	}
	if isRed(h.left) && isRed(h.right) {
		flipColors(h)
	}
	h.size = 1 + size(h.left) + size(h.right)
	return h
}
