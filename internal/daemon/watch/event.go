package watch

import (
	"path/filepath"
	"strings"
)

// Op is a bitmask of filesystem operations. Debounced events carry the
// union of every operation seen for a path within the window.
type Op uint32

const (
	Create Op = 1 << iota
	Write
	Remove
	Rename
	Chmod
)

// Has reports whether o includes every bit of x.
func (o Op) Has(x Op) bool { return o&x == x && x != 0 }

func (o Op) String() string {
	var parts []string
	for _, n := range []struct {
		op   Op
		name string
	}{{Create, "CREATE"}, {Write, "WRITE"}, {Remove, "REMOVE"}, {Rename, "RENAME"}, {Chmod, "CHMOD"}} {
		if o.Has(n.op) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

// Event is a debounced filesystem change.
type Event struct {
	Path string
	Op   Op
	// Seen is set when Path is missing and was already missing the last
	// time an event for it was dispatched.
	Seen bool
}

// IsContentUpdate reports a write to the file contents.
func (e Event) IsContentUpdate() bool { return e.Op.Has(Write) }

// IsCreate reports a created path.
func (e Event) IsCreate() bool { return e.Op.Has(Create) }

// IsRemove reports a removed path.
func (e Event) IsRemove() bool { return e.Op.Has(Remove) }

// IsRename reports a renamed path.
func (e Event) IsRename() bool { return e.Op.Has(Rename) }

// FileName returns the last element of Path.
func (e Event) FileName() string { return filepath.Base(e.Path) }

func (e Event) String() string {
	return e.Op.String() + " " + e.Path
}
