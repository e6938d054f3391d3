package refs

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dietcache/vcscore/fsutil"
	"github.com/dietcache/vcscore/hash"
)

// Signature identifies who made a reflog entry and when, mirroring the
// author/committer signature format used in commit objects.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

func (s Signature) encode() string {
	return fmt.Sprintf("%s <%s> %d %s", s.Name, s.Email, s.When.Unix(), s.When.Format("-0700"))
}

func parseSignature(s string) (Signature, error) {
	open := strings.LastIndexByte(s, '<')
	close := strings.LastIndexByte(s, '>')
	if open < 0 || close < open {
		return Signature{}, fmt.Errorf("%w: bad signature %q", ErrMalformed, s)
	}
	name := strings.TrimSpace(s[:open])
	email := s[open+1 : close]
	rest := strings.Fields(s[close+1:])
	if len(rest) < 1 {
		return Signature{}, fmt.Errorf("%w: bad signature %q", ErrMalformed, s)
	}
	sec, err := strconv.ParseInt(rest[0], 10, 64)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: bad signature timestamp %q", ErrMalformed, s)
	}
	when := time.Unix(sec, 0)
	if len(rest) > 1 {
		if loc, err := parseTZOffset(rest[1]); err == nil {
			when = when.In(loc)
		}
	}
	return Signature{Name: name, Email: email, When: when}, nil
}

func parseTZOffset(tz string) (*time.Location, error) {
	if len(tz) != 5 {
		return nil, fmt.Errorf("bad tz %q", tz)
	}
	sign := 1
	if tz[0] == '-' {
		sign = -1
	}
	hours, err1 := strconv.Atoi(tz[1:3])
	mins, err2 := strconv.Atoi(tz[3:5])
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("bad tz %q", tz)
	}
	offset := sign * (hours*3600 + mins*60)
	return time.FixedZone(tz, offset), nil
}

// ReflogEntry is one line of a reference's reflog: the value transition,
// who caused it, and the message the writer attached.
type ReflogEntry struct {
	Old       hash.ID
	New       hash.ID
	Committer Signature
	Message   string
}

// AppendReflog appends entry to name's reflog, creating the log file and
// its parent directories if this is the reference's first logged
// transition.
func (s *Store) AppendReflog(name Name, entry ReflogEntry) error {
	p := s.logPath(name)
	if err := fsutil.MkdirAll(s.fs, parentDir(s.fs, p), fsutil.DefaultRetryOptions()); err != nil {
		return err
	}
	f, err := s.fs.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o666)
	if err != nil {
		return err
	}
	defer f.Close()

	line := fmt.Sprintf("%s %s %s\t%s\n", entry.Old, entry.New, entry.Committer.encode(), entry.Message)
	_, err = f.Write([]byte(line))
	return err
}

// ReadReflog returns every entry logged for name, oldest first. A
// reference with no reflog yet returns an empty, non-error result.
func (s *Store) ReadReflog(name Name) ([]ReflogEntry, error) {
	f, err := s.fs.Open(s.logPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []ReflogEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 4096), 1<<20)
	for sc.Scan() {
		e, err := parseReflogLine(sc.Bytes(), s.idKind)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func parseReflogLine(line []byte, idKind hash.Kind) (ReflogEntry, error) {
	hexSize := idKind.HexSize()
	if len(line) < hexSize*2+2 {
		return ReflogEntry{}, fmt.Errorf("%w: short reflog line", ErrMalformed)
	}
	oldHex := string(line[:hexSize])
	newHex := string(line[hexSize+1 : hexSize*2+1])
	oldID, ok := hash.FromHex(oldHex)
	if !ok {
		return ReflogEntry{}, fmt.Errorf("%w: bad old id %q", ErrMalformed, oldHex)
	}
	newID, ok := hash.FromHex(newHex)
	if !ok {
		return ReflogEntry{}, fmt.Errorf("%w: bad new id %q", ErrMalformed, newHex)
	}
	rest := string(line[hexSize*2+2:])
	sigStr, message, _ := strings.Cut(rest, "\t")
	sig, err := parseSignature(sigStr)
	if err != nil {
		return ReflogEntry{}, err
	}
	return ReflogEntry{Old: oldID, New: newID, Committer: sig, Message: message}, nil
}

func (s *Store) logPath(name Name) string {
	return s.fs.Join(s.root, "logs", string(name))
}

// HasReflog reports whether name has ever had a reflog entry written.
func (s *Store) HasReflog(name Name) bool {
	_, err := s.fs.Stat(s.logPath(name))
	return err == nil
}

// RemoveReflog deletes name's reflog file, if present. A deleted reference
// takes its history with it.
func (s *Store) RemoveReflog(name Name) error {
	err := s.fs.Remove(s.logPath(name))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
