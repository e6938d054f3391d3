package pktline

import (
	"bytes"
	"errors"
	"io"
	"strings"
)

var errPrefix = []byte("ERR ")

// ErrInvalidErrorLine is returned by DecodeErrorLine when the packet does
// not carry the "ERR " prefix.
var ErrInvalidErrorLine = errors.New("pktline: expected an error-line")

// ErrorLine is a packet line that carries an error message and terminates
// the transfer, per the "ERR explanation-text" convention.
type ErrorLine struct {
	Text string
}

func (e *ErrorLine) Error() string { return e.Text }

// WriteErrorLine writes e as a single data packet.
func WriteErrorLine(w io.Writer, e *ErrorLine) error {
	_, err := WriteLine(w, string(errPrefix)+e.Text)
	return err
}

// DecodeErrorLine reads one packet from r and parses it as an ErrorLine.
func DecodeErrorLine(r io.Reader) (*ErrorLine, error) {
	typ, data, err := ReadPacket(r)
	if err != nil {
		return nil, err
	}
	if typ != TypeData || !bytes.HasPrefix(data, errPrefix) {
		return nil, ErrInvalidErrorLine
	}
	return &ErrorLine{Text: strings.TrimSpace(string(data[len(errPrefix):]))}, nil
}
