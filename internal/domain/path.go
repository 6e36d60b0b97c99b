package domain

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// Path is a labeled path of ancestor ids ending with the node's own id, stored
// as dot-separated text ("1.2.3").
type Path string

func NewPath(ids ...uint) Path {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return Path(strings.Join(parts, "."))
}

// Labels parses the path into ids. Malformed labels are skipped.
func (p Path) Labels() []uint {
	if p == "" {
		return nil
	}
	raw := strings.Split(string(p), ".")
	out := make([]uint, 0, len(raw))
	for _, r := range raw {
		v, err := strconv.ParseUint(r, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, uint(v))
	}
	return out
}

func (p Path) Depth() int {
	if p == "" {
		return 0
	}
	return strings.Count(string(p), ".") + 1
}

func (p Path) Root() uint {
	labels := p.Labels()
	if len(labels) == 0 {
		return 0
	}
	return labels[0]
}

func (p Path) Last() uint {
	labels := p.Labels()
	if len(labels) == 0 {
		return 0
	}
	return labels[len(labels)-1]
}

// Child appends id to the path.
func (p Path) Child(id uint) Path {
	if p == "" {
		return NewPath(id)
	}
	return Path(string(p) + "." + strconv.FormatUint(uint64(id), 10))
}

// IsDescendantOf reports whether p equals anc or lies beneath it.
func (p Path) IsDescendantOf(anc Path) bool {
	if anc == "" {
		return false
	}
	return p == anc || strings.HasPrefix(string(p), string(anc)+".")
}

// Contains reports whether id is one of the labels.
func (p Path) Contains(id uint) bool {
	for _, l := range p.Labels() {
		if l == id {
			return true
		}
	}
	return false
}

// Compare orders paths label by label numerically; shorter prefixes sort first.
func (p Path) Compare(o Path) int {
	a, b := p.Labels(), o.Labels()
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

func (p Path) Value() (driver.Value, error) { return string(p), nil }

func (p *Path) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = ""
	case string:
		*p = Path(v)
	case []byte:
		*p = Path(string(v))
	default:
		return fmt.Errorf("path: unsupported scan type %T", src)
	}
	return nil
}
