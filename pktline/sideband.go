package pktline

import (
	"errors"
	"io"
)

// Side-band channel tags: the first byte of a data packet's payload once a
// side-band capability has been negotiated, multiplexing three logical
// streams over one pkt-line sequence.
const (
	ChannelData     byte = 1
	ChannelProgress byte = 2
	ChannelError    byte = 3
)

// ErrInvalidChannel is returned when a side-band payload's leading byte
// does not name one of the three defined channels.
var ErrInvalidChannel = errors.New("pktline: invalid side-band channel")

// ErrEmptySideBandPayload is returned when decoding a data packet with no
// channel byte at all.
var ErrEmptySideBandPayload = errors.New("pktline: side-band payload missing channel byte")

// DecodeSideBand splits a data packet's payload into its channel tag and
// the bytes meant for that channel.
func DecodeSideBand(payload []byte) (byte, []byte, error) {
	if len(payload) == 0 {
		return 0, nil, ErrEmptySideBandPayload
	}
	channel := payload[0]
	switch channel {
	case ChannelData, ChannelProgress, ChannelError:
	default:
		return 0, nil, ErrInvalidChannel
	}
	return channel, payload[1:], nil
}

// WriteSideBand writes data as one data packet on the given channel,
// prefixing it with the channel's one-byte tag. The combined length
// (1 + len(data)) must still fit within MaxPayloadSize.
func WriteSideBand(w io.Writer, channel byte, data []byte) (int, error) {
	switch channel {
	case ChannelData, ChannelProgress, ChannelError:
	default:
		return 0, ErrInvalidChannel
	}
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, channel)
	buf = append(buf, data...)
	return WriteData(w, buf)
}

// SideBandReader demultiplexes a side-band pkt-line stream into its three
// channels via callbacks, stopping at the first flush packet (the
// convention marking end of the multiplexed section) or error.
type SideBandReader struct {
	OnData     func([]byte) error
	OnProgress func([]byte) error
	OnError    func([]byte) error
}

// Run reads packets from r until a flush packet, EOF, or an error,
// dispatching each data packet's payload to the matching callback. A nil
// callback silently discards that channel's data.
func (sr *SideBandReader) Run(r io.Reader) error {
	sc := NewScanner(r)
	for sc.Scan() {
		if sc.Type() == TypeFlush {
			return nil
		}
		if sc.Type() != TypeData {
			continue
		}
		channel, data, err := DecodeSideBand(sc.Bytes())
		if err != nil {
			return err
		}
		switch channel {
		case ChannelData:
			if sr.OnData != nil {
				if err := sr.OnData(data); err != nil {
					return err
				}
			}
		case ChannelProgress:
			if sr.OnProgress != nil {
				if err := sr.OnProgress(data); err != nil {
					return err
				}
			}
		case ChannelError:
			if sr.OnError != nil {
				if err := sr.OnError(data); err != nil {
					return err
				}
			}
		}
	}
	return sc.Err()
}
