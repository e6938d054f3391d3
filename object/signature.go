package object

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signature is an author or committer line: "Name <email> seconds tz".
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// decodeSignature parses a signature line's value (the part after "author "
// or "committer "/"tagger "). A signature with an unparseable timestamp
// still yields Name/Email with a zero When, matching the tolerant behavior
// real history requires.
func decodeSignature(line []byte) Signature {
	s := string(line)

	emailStart := strings.IndexByte(s, '<')
	emailEnd := strings.LastIndexByte(s, '>')
	if emailStart < 0 || emailEnd < 0 || emailEnd < emailStart {
		return Signature{Name: strings.TrimSpace(s)}
	}

	name := strings.TrimSpace(s[:emailStart])
	email := s[emailStart+1 : emailEnd]

	var when time.Time
	rest := strings.TrimSpace(s[emailEnd+1:])
	fields := strings.Fields(rest)
	if len(fields) >= 1 {
		if sec, err := strconv.ParseInt(fields[0], 10, 64); err == nil {
			when = time.Unix(sec, 0)
			if len(fields) >= 2 {
				if loc, err := parseTZOffset(fields[1]); err == nil {
					when = when.In(loc)
				}
			}
		}
	}

	return Signature{Name: name, Email: email, When: when}
}

// parseTZOffset parses a "+0200"-style git timezone offset into a fixed
// location.
func parseTZOffset(s string) (*time.Location, error) {
	if len(s) != 5 || (s[0] != '+' && s[0] != '-') {
		return nil, fmt.Errorf("object: invalid timezone %q", s)
	}
	hours, err := strconv.Atoi(s[1:3])
	if err != nil {
		return nil, err
	}
	minutes, err := strconv.Atoi(s[3:5])
	if err != nil {
		return nil, err
	}
	offset := hours*3600 + minutes*60
	if s[0] == '-' {
		offset = -offset
	}
	return time.FixedZone(s, offset), nil
}

// EncodeSignature serializes s to its wire form, "Name <email> seconds tz",
// the same rendering used inside commit/tag headers and reflog lines.
func EncodeSignature(s Signature) []byte { return s.encode() }

// DecodeSignature parses a signature wire form back into its parts,
// tolerating an unparseable or absent timestamp.
func DecodeSignature(line []byte) Signature { return decodeSignature(line) }

// encode serializes a Signature back to its wire form.
func (s Signature) encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(s.Name)
	buf.WriteString(" <")
	buf.WriteString(s.Email)
	buf.WriteString("> ")
	_, offset := s.When.Zone()
	sign := byte('+')
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	buf.WriteString(strconv.FormatInt(s.When.Unix(), 10))
	buf.WriteByte(' ')
	buf.WriteByte(sign)
	fmt.Fprintf(&buf, "%02d%02d", offset/3600, (offset%3600)/60)
	return buf.Bytes()
}

// String renders the signature the way "git log" displays it.
func (s Signature) String() string {
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}

// SignatureType identifies the cryptographic format of a detached
// signature trailing a commit or tag message.
type SignatureType int8

const (
	SignatureTypeUnknown SignatureType = iota
	SignatureTypeOpenPGP
	SignatureTypeX509
	SignatureTypeSSH
)

func (t SignatureType) String() string {
	switch t {
	case SignatureTypeOpenPGP:
		return "openpgp"
	case SignatureTypeX509:
		return "x509"
	case SignatureTypeSSH:
		return "ssh"
	default:
		return "unknown"
	}
}

type signatureFormat [][]byte

var (
	openPGPSignatureFormat = signatureFormat{
		[]byte("-----BEGIN PGP SIGNATURE-----"),
		[]byte("-----BEGIN PGP MESSAGE-----"),
	}
	x509SignatureFormat = signatureFormat{
		[]byte("-----BEGIN CERTIFICATE-----"),
		[]byte("-----BEGIN SIGNED MESSAGE-----"),
	}
	sshSignatureFormat = signatureFormat{
		[]byte("-----BEGIN SSH SIGNATURE-----"),
	}

	knownSignatureFormats = map[SignatureType]signatureFormat{
		SignatureTypeOpenPGP: openPGPSignatureFormat,
		SignatureTypeX509:    x509SignatureFormat,
		SignatureTypeSSH:     sshSignatureFormat,
	}
)

// DetectSignatureType reports which known format signature begins with.
func DetectSignatureType(signature []byte) SignatureType {
	return typeForSignature(signature)
}

func typeForSignature(b []byte) SignatureType {
	for t, formats := range knownSignatureFormats {
		for _, begin := range formats {
			if bytes.HasPrefix(b, begin) {
				return t
			}
		}
	}
	return SignatureTypeUnknown
}

// parseSignedBytes returns the byte offset of the last detached-signature
// block found in b, or -1 if none is found. When multiple blocks are
// present (as git allows for layered signing), the last one wins: callers
// split the message at this offset, treating everything from it onward as
// the signature.
func parseSignedBytes(b []byte) (int, SignatureType) {
	n, match := 0, -1
	var t SignatureType
	for n < len(b) {
		i := b[n:]
		if st := typeForSignature(i); st != SignatureTypeUnknown {
			match = n
			t = st
		}
		if eol := bytes.IndexByte(i, '\n'); eol >= 0 {
			n += eol + 1
			continue
		}
		break
	}
	return match, t
}
