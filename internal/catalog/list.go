package catalog

import (
	"net"
	"path"
	"strconv"
	"strings"
)

// A Resource is one downloadable item discovered on the network.
// Structural equality over all three fields defines identity.
type Resource struct {
	Host string
	Port uint16
	Path string
}

// IsDir reports whether the resource is a directory archive.
func (r Resource) IsDir() bool { return strings.HasSuffix(r.Path, "/") }

// Addr returns the host:port dial target.
func (r Resource) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(int(r.Port)))
}

// Base returns the final path element without the directory marker.
func (r Resource) Base() string {
	return path.Base(strings.TrimSuffix(r.Path, "/"))
}

// List holds discovered resources in arrival order with one selected.
type List struct {
	items []Resource
	seen  map[Resource]bool
	sel   int
}

// NewList returns an empty list with nothing selected.
func NewList() *List {
	return &List{seen: make(map[Resource]bool), sel: -1}
}

// Add appends a resource unless an equal one is already present, and
// reports whether it was added. The first resource ever added becomes
// the selection.
func (l *List) Add(r Resource) bool {
	if l.seen[r] {
		return false
	}
	l.seen[r] = true
	l.items = append(l.items, r)
	if l.sel < 0 {
		l.sel = 0
	}
	return true
}

// Len returns the number of distinct resources.
func (l *List) Len() int { return len(l.items) }

// At returns the resource at index i.
func (l *List) At(i int) Resource { return l.items[i] }

// All returns the resources in arrival order.
func (l *List) All() []Resource { return l.items }

// Selected returns the resource under the cursor, if any.
func (l *List) Selected() (Resource, bool) {
	if l.sel < 0 || l.sel >= len(l.items) {
		return Resource{}, false
	}
	return l.items[l.sel], true
}

// SelectedIndex returns the cursor position, -1 when the list is empty.
func (l *List) SelectedIndex() int { return l.sel }

// Up moves the cursor toward the top and reports whether it moved.
func (l *List) Up() bool {
	if l.sel > 0 {
		l.sel--
		return true
	}
	return false
}

// Down moves the cursor toward the bottom and reports whether it moved.
func (l *List) Down() bool {
	if l.sel >= 0 && l.sel < len(l.items)-1 {
		l.sel++
		return true
	}
	return false
}
