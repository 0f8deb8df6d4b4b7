// Package collection holds the ordered set of images accepted for a product.
package collection

import (
	"errors"
	"fmt"
	"sync"
)

// MaxImages is the capacity of a collection.
const MaxImages = 4

// ErrIndexOutOfRange is returned by RemoveAt for an index outside the collection.
var ErrIndexOutOfRange = errors.New("collection: index out of range")

// Collection is an ordered, bounded list of image data URLs. It is safe for
// concurrent use.
type Collection struct {
	mu    sync.RWMutex
	items []string

	// OnChange is called with the new length after every mutation.
	OnChange func(n int)
}

// New creates an empty collection.
func New() *Collection {
	return &Collection{items: make([]string, 0, MaxImages)}
}

// Add appends dataURL unless the collection is full. It reports whether the
// image was stored.
func (c *Collection) Add(dataURL string) bool {
	c.mu.Lock()
	if len(c.items) >= MaxImages {
		c.mu.Unlock()
		return false
	}
	c.items = append(c.items, dataURL)
	n := len(c.items)
	c.mu.Unlock()
	c.changed(n)
	return true
}

// RemoveAt deletes the image at index i; later images shift down.
func (c *Collection) RemoveAt(i int) error {
	c.mu.Lock()
	if i < 0 || i >= len(c.items) {
		n := len(c.items)
		c.mu.Unlock()
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, n)
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	n := len(c.items)
	c.mu.Unlock()
	c.changed(n)
	return nil
}

// Items returns a copy of the images in insertion order.
func (c *Collection) Items() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	items := make([]string, len(c.items))
	copy(items, c.items)
	return items
}

// Len returns the number of images.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Remaining returns how many more images fit.
func (c *Collection) Remaining() int { return MaxImages - c.Len() }

// Full reports whether no more images fit.
func (c *Collection) Full() bool { return c.Len() >= MaxImages }

// TrimPrefix removes the leading images if they still equal prefix, as
// returned by an earlier Items call. Images added since stay in place. It
// reports whether anything was removed; a collection edited in between is
// left untouched.
func (c *Collection) TrimPrefix(prefix []string) bool {
	c.mu.Lock()
	if len(prefix) == 0 || len(prefix) > len(c.items) {
		c.mu.Unlock()
		return false
	}
	for i, item := range prefix {
		if c.items[i] != item {
			c.mu.Unlock()
			return false
		}
	}
	c.items = append(c.items[:0], c.items[len(prefix):]...)
	n := len(c.items)
	c.mu.Unlock()
	c.changed(n)
	return true
}

func (c *Collection) changed(n int) {
	if c.OnChange != nil {
		c.OnChange(n)
	}
}
