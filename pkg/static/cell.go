// Package static provides write-once storage cells with program lifetime.
//
// A [Cell] stands in for a statically allocated buffer: declared as a package
// variable, it is handed out exactly once and never freed. The second claim
// fails with [pkg.ErrDoubleInit], which is how the image detects a component
// being constructed twice.
//
//	var controlBuf static.Cell[[64]byte]
//
//	buf, err := controlBuf.Take()
//	if err != nil {
//	    return err // already claimed
//	}
package static

import (
	"sync/atomic"

	"github.com/ardnew/softusb/pkg"
)

// Cell is a one-shot container for a value of type T. The zero value is an
// unclaimed cell holding the zero value of T.
type Cell[T any] struct {
	taken atomic.Bool
	value T
}

// Init stores v in the cell and returns a reference to the stored value.
// Returns pkg.ErrDoubleInit if the cell was already claimed.
func (c *Cell[T]) Init(v T) (*T, error) {
	if !c.taken.CompareAndSwap(false, true) {
		return nil, pkg.ErrDoubleInit
	}
	c.value = v
	return &c.value, nil
}

// Take claims the cell without overwriting its contents.
// Returns pkg.ErrDoubleInit if the cell was already claimed.
func (c *Cell[T]) Take() (*T, error) {
	if !c.taken.CompareAndSwap(false, true) {
		return nil, pkg.ErrDoubleInit
	}
	return &c.value, nil
}

// MustInit is like Init but panics on a second claim.
func (c *Cell[T]) MustInit(v T) *T {
	p, err := c.Init(v)
	if err != nil {
		panic(err)
	}
	return p
}

// Taken reports whether the cell has been claimed.
func (c *Cell[T]) Taken() bool {
	return c.taken.Load()
}
