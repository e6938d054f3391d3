package refs

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/dietcache/vcscore/hash"
)

// PackedEntry is one row of the packed-refs file: a name, its direct
// target id, and — if the file recorded peeling — the id reached by
// dereferencing a tag chain.
type PackedEntry struct {
	Name   Name
	Target hash.ID
	Peeled hash.ID // zero if not recorded
}

// PackedRefs is a fully parsed packed-refs file.
type PackedRefs struct {
	Sorted      bool
	FullyPeeled bool
	Entries     []PackedEntry
}

// ParsePackedRefs parses the packed-refs file format: an optional
// "# pack-refs with:" header line naming flags, followed by "<id> <name>"
// lines each optionally followed by a "^<peeled-id>" line.
func ParsePackedRefs(data []byte, idKind hash.Kind) (*PackedRefs, error) {
	pr := &PackedRefs{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 4096), 1<<20)

	first := true
	var pending *PackedEntry

	for sc.Scan() {
		line := sc.Text()
		if first {
			first = false
			if strings.HasPrefix(line, "# pack-refs with:") {
				flags := strings.Fields(strings.TrimPrefix(line, "# pack-refs with:"))
				for _, f := range flags {
					switch f {
					case "sorted":
						pr.Sorted = true
					case "fully-peeled":
						pr.FullyPeeled = true
					}
				}
				continue
			}
		}
		if line == "" {
			continue
		}
		if line[0] == '^' {
			if pending == nil {
				return nil, fmt.Errorf("%w: peeled line with no preceding entry", ErrMalformed)
			}
			peeled, ok := hash.FromHex(line[1:])
			if !ok {
				return nil, fmt.Errorf("%w: invalid peeled id %q", ErrMalformed, line[1:])
			}
			pending.Peeled = peeled
			pr.Entries = append(pr.Entries, *pending)
			pending = nil
			continue
		}
		if pending != nil {
			pr.Entries = append(pr.Entries, *pending)
			pending = nil
		}

		idStr, name, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("%w: malformed packed-ref line %q", ErrMalformed, line)
		}
		id, ok := hash.FromHex(idStr)
		if !ok {
			return nil, fmt.Errorf("%w: invalid id %q", ErrMalformed, idStr)
		}
		pending = &PackedEntry{Name: Name(name), Target: id}
	}
	if pending != nil {
		pr.Entries = append(pr.Entries, *pending)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return pr, nil
}

// Find looks up name among the packed entries.
func (pr *PackedRefs) Find(name Name) (PackedEntry, bool) {
	for _, e := range pr.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return PackedEntry{}, false
}

// Encode serializes pr back to the packed-refs file format, always
// advertising "sorted" (Encode sorts its input) and "fully-peeled" when
// every entry has recorded a peeled id, matching what a writer that
// always fully peels on rewrite would emit.
func (pr *PackedRefs) Encode() []byte {
	entries := append([]PackedEntry(nil), pr.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	fullyPeeled := len(entries) > 0
	for _, e := range entries {
		if e.Peeled.IsZero() {
			fullyPeeled = false
			break
		}
	}

	var buf bytes.Buffer
	flags := "sorted"
	if fullyPeeled {
		flags += " peeled fully-peeled"
	}
	fmt.Fprintf(&buf, "# pack-refs with: %s\n", flags)
	for _, e := range entries {
		fmt.Fprintf(&buf, "%s %s\n", e.Target, e.Name)
		if !e.Peeled.IsZero() {
			fmt.Fprintf(&buf, "^%s\n", e.Peeled)
		}
	}
	return buf.Bytes()
}
