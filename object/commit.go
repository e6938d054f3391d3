package object

import (
	"bytes"
	"fmt"

	"github.com/dietcache/vcscore/hash"
)

// Commit is the parsed shape of a commit object: a tree, zero or more
// parents, author/committer signatures, optional extra headers, and a
// free-form message.
type Commit struct {
	TreeID       hash.ID
	ParentIDs    []hash.ID
	Author       Signature
	Committer    Signature
	Encoding     string
	ExtraHeaders [][2]string
	Message      string
}

// Title returns the message up to the first blank line.
func (c *Commit) Title() string {
	if i := indexBlankLine(c.Message); i >= 0 {
		return c.Message[:i]
	}
	return c.Message
}

// Summary returns the folded, trimmed projection of the title, per
// object.Summary.
func (c *Commit) Summary() string { return Summary(c.Message) }

// NumParents reports the number of parent commits.
func (c *Commit) NumParents() int { return len(c.ParentIDs) }

func decodeCommit(payload []byte) (*Commit, error) {
	header, message, err := readHeaderBody(payload)
	if err != nil {
		return nil, err
	}

	c := &Commit{Message: string(message)}
	sawTree := false

	for _, line := range header {
		key, value, ok := splitHeaderLine(line)
		if !ok {
			return nil, fmt.Errorf("%w: commit header line %q", ErrMalformedObject, line)
		}
		switch key {
		case "tree":
			id, ok := hash.FromHex(value)
			if !ok {
				return nil, fmt.Errorf("%w: commit tree id %q", ErrMalformedObject, value)
			}
			c.TreeID = id
			sawTree = true
		case "parent":
			id, ok := hash.FromHex(value)
			if !ok {
				return nil, fmt.Errorf("%w: commit parent id %q", ErrMalformedObject, value)
			}
			c.ParentIDs = append(c.ParentIDs, id)
		case "author":
			c.Author = decodeSignature([]byte(value))
		case "committer":
			c.Committer = decodeSignature([]byte(value))
		case "encoding":
			c.Encoding = value
		default:
			c.ExtraHeaders = append(c.ExtraHeaders, [2]string{key, value})
		}
	}

	if !sawTree {
		return nil, fmt.Errorf("%w: commit missing tree header", ErrMalformedObject)
	}
	return c, nil
}

func splitHeaderLine(line []byte) (key, value string, ok bool) {
	i := bytes.IndexByte(line, ' ')
	if i < 0 {
		return "", "", false
	}
	return string(line[:i]), string(line[i+1:]), true
}

func (c *Commit) encode() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.TreeID)
	for _, p := range c.ParentIDs {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s\n", c.Author.encode())
	fmt.Fprintf(&buf, "committer %s\n", c.Committer.encode())
	if c.Encoding != "" {
		fmt.Fprintf(&buf, "encoding %s\n", c.Encoding)
	}
	for _, h := range c.ExtraHeaders {
		fmt.Fprintf(&buf, "%s %s\n", h[0], h[1])
	}
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// Bytes returns the canonical payload.
func (c *Commit) Bytes() []byte { return c.encode() }

// ReflogDetail computes the "(detail)" fragment of a reflog message for a
// transaction that sets a ref to this commit: "initial" when there was no
// previous value, "merge" for a merge commit (>=2 parents), and empty for
// an ordinary single-parent commit. hadPrevious is whether the ref already
// pointed somewhere before this update.
func (c *Commit) ReflogDetail(hadPrevious bool) string {
	if !hadPrevious {
		return "initial"
	}
	if c.NumParents() >= 2 {
		return "merge"
	}
	return ""
}
