// Package interval keeps a set of committed half-open time intervals and
// answers overlap queries against it.
//
// Intervals are indexed in a red-black tree ordered by (Begin, End). An
// overlap query for [b, e) walks backwards from the last interval beginning
// before e and stops once intervals begin so early that even the longest
// committed interval could not reach b. Committed intervals produced by
// TryFit never overlap, so the walk usually touches one or two nodes.
package interval

import (
	"cmp"
	"fmt"
	"math"

	"github.com/emirpasic/gods/v2/trees/redblacktree"
)

// Interval is a half-open range [Begin, End) of absolute second offsets
// since the start of teaching week 1.
type Interval struct {
	Begin int64 `json:"begin"`
	End   int64 `json:"end"`
}

// Len returns the length of the interval in seconds.
func (i Interval) Len() int64 {
	return i.End - i.Begin
}

// Overlaps reports whether i and o share at least one second.
func (i Interval) Overlaps(o Interval) bool {
	return i.Begin < o.End && o.Begin < i.End
}

func (i Interval) String() string {
	return fmt.Sprintf("[%d,%d)", i.Begin, i.End)
}

// Group is a list of interchangeable choices for one occasion. Exactly one
// of them has to be placed.
type Group []Interval

// FitConflict is returned by TryFit when no choice of a group is compatible.
// It is an expected outcome that drives backtracking, not a fault.
type FitConflict struct {
	// Group is the index of the first group that could not be placed.
	Group int
	// Choices is the number of choices that group offered.
	Choices int
}

func (e *FitConflict) Error() string {
	return fmt.Sprintf("interval: cannot fit group %d (%d choices) into committed intervals", e.Group, e.Choices)
}

// Collection is a multiset of committed intervals. It is not safe for
// concurrent use; a search owns its collection exclusively.
type Collection struct {
	tree *redblacktree.Tree[Interval, int]
	size int

	// lengths counts committed intervals per length so maxLen stays exact
	// after releases.
	lengths map[int64]int
	maxLen  int64
}

// New returns an empty collection.
func New() *Collection {
	return &Collection{
		tree:    redblacktree.NewWith[Interval, int](compare),
		lengths: make(map[int64]int),
	}
}

func compare(a, b Interval) int {
	if c := cmp.Compare(a.Begin, b.Begin); c != 0 {
		return c
	}
	return cmp.Compare(a.End, b.End)
}

// Size returns the number of committed intervals, counting duplicates.
func (c *Collection) Size() int {
	return c.size
}

// Query reports whether iv overlaps any committed interval.
func (c *Collection) Query(iv Interval) bool {
	if c.size == 0 || iv.Len() <= 0 {
		return false
	}
	// Greatest key that begins strictly before iv.End.
	node, ok := c.tree.Floor(Interval{Begin: iv.End - 1, End: math.MaxInt64})
	if !ok {
		return false
	}
	it := c.tree.IteratorAt(node)
	for {
		k := it.Key()
		if k.Begin+c.maxLen <= iv.Begin {
			return false
		}
		if k.End > iv.Begin {
			return true
		}
		if !it.Prev() {
			return false
		}
	}
}

// TryFit picks, for every group in order, the first choice that overlaps
// neither the committed intervals nor the choices already picked in this
// call. It never modifies the collection: on success the picked intervals
// are returned for a later Commit, otherwise a *FitConflict is returned.
func (c *Collection) TryFit(groups []Group) ([]Interval, error) {
	picked := make([]Interval, 0, len(groups))
	scratch := New()
	for gi, group := range groups {
		found := false
		for _, iv := range group {
			if c.Query(iv) || scratch.Query(iv) {
				continue
			}
			scratch.insert(iv)
			picked = append(picked, iv)
			found = true
			break
		}
		if !found {
			return nil, &FitConflict{Group: gi, Choices: len(group)}
		}
	}
	return picked, nil
}

// Commit inserts intervals into the collection. They are expected to come
// from a successful TryFit and are not re-validated.
func (c *Collection) Commit(intervals []Interval) {
	for _, iv := range intervals {
		c.insert(iv)
	}
}

// Release removes one occurrence of iv. It is a no-op when iv is absent.
func (c *Collection) Release(iv Interval) {
	n, ok := c.tree.Get(iv)
	if !ok {
		return
	}
	if n > 1 {
		c.tree.Put(iv, n-1)
	} else {
		c.tree.Remove(iv)
	}
	c.size--

	l := iv.Len()
	c.lengths[l]--
	if c.lengths[l] > 0 {
		return
	}
	delete(c.lengths, l)
	if l == c.maxLen {
		c.maxLen = 0
		for k := range c.lengths {
			c.maxLen = max(c.maxLen, k)
		}
	}
}

// ReleaseAll releases every interval of a previous Commit.
func (c *Collection) ReleaseAll(intervals []Interval) {
	for _, iv := range intervals {
		c.Release(iv)
	}
}

// Intervals returns the committed intervals in ascending order.
func (c *Collection) Intervals() []Interval {
	out := make([]Interval, 0, c.size)
	it := c.tree.Iterator()
	for it.Next() {
		for range it.Value() {
			out = append(out, it.Key())
		}
	}
	return out
}

func (c *Collection) insert(iv Interval) {
	n, _ := c.tree.Get(iv)
	c.tree.Put(iv, n+1)
	c.size++
	c.lengths[iv.Len()]++
	c.maxLen = max(c.maxLen, iv.Len())
}
