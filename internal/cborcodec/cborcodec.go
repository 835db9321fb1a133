// Package cborcodec extends github.com/dtn7/cboring with the canonical-form
// bookkeeping RFC 8949 deterministic encoding requires: shortest-form
// integers, definite-length containers and a record of which tags were
// seen. cboring's Marshal/Unmarshal pair (used throughout package bpv7 for
// the semantic decode) does not report whether the bytes it consumed were
// already canonical, so this package walks the raw buffer independently
// and hands back a verdict the bundle parser can act on (see bpv7.Parse).
package cborcodec

import (
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"
)

// Major CBOR types, per RFC 8949 §3.1.
const (
	MajorUnsignedInt = 0
	MajorNegativeInt = 1
	MajorByteString  = 2
	MajorTextString  = 3
	MajorArray       = 4
	MajorMap         = 5
	MajorTag         = 6
	MajorOther       = 7
)

const (
	additionalIndefinite = 31
	breakByte            = 0xff
)

// DecodeError mirrors the taxonomy spec §4.A requires from the codec.
type DecodeError struct {
	Kind string
	Msg  string
}

func (e *DecodeError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Msg) }

func errNotEnoughData(msg string) error       { return &DecodeError{"NotEnoughData", msg} }
func errUnexpectedType(msg string) error      { return &DecodeError{"UnexpectedType", msg} }
func errNotShortest(msg string) error         { return &DecodeError{"NotShortest", msg} }
func errUnexpectedIndefinite(msg string) error { return &DecodeError{"UnexpectedIndefinite", msg} }
func errBadUtf8(msg string) error             { return &DecodeError{"BadUtf8", msg} }

// Report is the result of walking one top-level CBOR item.
type Report struct {
	// Canonical is true iff every nested item used definite-length
	// containers and shortest-form integers.
	Canonical bool
	// Tags lists every tag number encountered, in encounter order.
	Tags []uint64
	// Consumed is the number of bytes making up the item.
	Consumed int
}

// Inspect walks a single CBOR data item starting at data[0] and reports
// whether it is in canonical (deterministic) form. It never allocates
// unbounded buffers for malformed indefinite-length strings: cumulative
// chunk length is capped at len(data).
func Inspect(data []byte) (Report, error) {
	w := &walker{buf: data}
	canon, err := w.item()
	if err != nil {
		return Report{}, err
	}
	return Report{Canonical: canon, Tags: w.tags, Consumed: w.pos}, nil
}

type walker struct {
	buf  []byte
	pos  int
	tags []uint64
}

func (w *walker) remaining() int { return len(w.buf) - w.pos }

func (w *walker) readByte() (byte, error) {
	if w.remaining() < 1 {
		return 0, errNotEnoughData("expected 1 more byte")
	}
	b := w.buf[w.pos]
	w.pos++
	return b, nil
}

// head reads the major type and either the literal small value (ai<24) or
// decodes the following 1/2/4/8 byte argument, reporting whether that
// encoding was the shortest possible one for the resulting value.
func (w *walker) head() (major byte, ai byte, value uint64, shortest bool, err error) {
	b, err := w.readByte()
	if err != nil {
		return 0, 0, 0, false, err
	}
	major = b >> 5
	ai = b & 0x1f

	switch {
	case ai < 24:
		return major, ai, uint64(ai), true, nil
	case ai == 24:
		if w.remaining() < 1 {
			return 0, 0, 0, false, errNotEnoughData("1-byte argument")
		}
		v := uint64(w.buf[w.pos])
		w.pos++
		return major, ai, v, v >= 24, nil
	case ai == 25:
		if w.remaining() < 2 {
			return 0, 0, 0, false, errNotEnoughData("2-byte argument")
		}
		v := uint64(binary.BigEndian.Uint16(w.buf[w.pos : w.pos+2]))
		w.pos += 2
		return major, ai, v, v > 0xff, nil
	case ai == 26:
		if w.remaining() < 4 {
			return 0, 0, 0, false, errNotEnoughData("4-byte argument")
		}
		v := uint64(binary.BigEndian.Uint32(w.buf[w.pos : w.pos+4]))
		w.pos += 4
		return major, ai, v, v > 0xffff, nil
	case ai == 27:
		if w.remaining() < 8 {
			return 0, 0, 0, false, errNotEnoughData("8-byte argument")
		}
		v := binary.BigEndian.Uint64(w.buf[w.pos : w.pos+8])
		w.pos += 8
		return major, ai, v, v > 0xffffffff, nil
	case ai == additionalIndefinite:
		return major, ai, 0, false, nil
	default:
		return 0, 0, 0, false, errUnexpectedType(fmt.Sprintf("reserved additional info %d", ai))
	}
}

// item consumes one data item (recursively for containers) and reports
// whether it, and everything nested within it, is canonical.
func (w *walker) item() (bool, error) {
	startPos := w.pos
	major, ai, value, shortest, err := w.head()
	if err != nil {
		return false, err
	}

	switch major {
	case MajorUnsignedInt, MajorNegativeInt:
		return shortest, nil

	case MajorByteString, MajorTextString:
		if ai == additionalIndefinite {
			if err := w.skipIndefiniteChunks(major); err != nil {
				return false, err
			}
			return false, nil
		}
		if int(value) > w.remaining() {
			return false, errNotEnoughData("string body")
		}
		body := w.buf[w.pos : w.pos+int(value)]
		w.pos += int(value)
		if major == MajorTextString {
			if !isValidUTF8(body) {
				return false, errBadUtf8("text string is not valid UTF-8")
			}
		}
		return shortest, nil

	case MajorArray:
		canon := shortest
		if ai == additionalIndefinite {
			for {
				if w.remaining() < 1 {
					return false, errNotEnoughData("array item or break")
				}
				if w.buf[w.pos] == breakByte {
					w.pos++
					break
				}
				if _, err := w.item(); err != nil {
					return false, err
				}
			}
			return false, nil
		}
		for i := uint64(0); i < value; i++ {
			c, err := w.item()
			if err != nil {
				return false, err
			}
			canon = canon && c
		}
		return canon, nil

	case MajorMap:
		canon := shortest
		var pairs uint64
		if ai == additionalIndefinite {
			for {
				if w.remaining() < 1 {
					return false, errNotEnoughData("map pair or break")
				}
				if w.buf[w.pos] == breakByte {
					w.pos++
					break
				}
				if _, err := w.item(); err != nil {
					return false, err
				}
				if _, err := w.item(); err != nil {
					return false, err
				}
			}
			return false, nil
		}
		for i := uint64(0); i < value; i++ {
			k, err := w.item()
			if err != nil {
				return false, err
			}
			v, err := w.item()
			if err != nil {
				return false, err
			}
			canon = canon && k && v
			pairs++
		}
		return canon, nil

	case MajorTag:
		w.tags = append(w.tags, value)
		c, err := w.item()
		if err != nil {
			return false, err
		}
		return shortest && c, nil

	case MajorOther:
		switch ai {
		case 20, 21: // false/true
			return true, nil
		case 22: // null
			return true, nil
		case 25, 26, 27: // float16/32/64
			return true, nil
		default:
			return shortest, nil
		}

	default:
		w.pos = startPos
		return false, errUnexpectedType(fmt.Sprintf("unknown major type %d", major))
	}
}

// skipIndefiniteChunks reads definite-length chunks of a (non-canonical)
// indefinite byte/text string until the terminating break, rejecting the
// input once the cumulative chunk length would exceed the buffer size —
// an indefinite string can never legitimately carry more payload than the
// buffer holding it.
func (w *walker) skipIndefiniteChunks(wantMajor byte) error {
	var total int
	for {
		if w.remaining() < 1 {
			return errNotEnoughData("string chunk or break")
		}
		if w.buf[w.pos] == breakByte {
			w.pos++
			return nil
		}
		major, ai, value, _, err := w.head()
		if err != nil {
			return err
		}
		if major != wantMajor || ai == additionalIndefinite {
			return errUnexpectedIndefinite("nested indefinite chunk of wrong type")
		}
		total += int(value)
		if total > len(w.buf) {
			return errNotEnoughData("indefinite string exceeds containing buffer")
		}
		if int(value) > w.remaining() {
			return errNotEnoughData("string chunk body")
		}
		w.pos += int(value)
	}
}

func isValidUTF8(b []byte) bool {
	return utf8.Valid(b)
}

// WriteDefiniteArrayHeader writes a definite-length array header, the
// canonical counterpart to cboring's indefinite-array convenience used by
// the teacher's Bundle.MarshalCbor.
func WriteDefiniteArrayHeader(n uint64, w io.Writer) error {
	return writeHead(MajorArray, n, w)
}

func writeHead(major byte, value uint64, w io.Writer) error {
	switch {
	case value < 24:
		_, err := w.Write([]byte{major<<5 | byte(value)})
		return err
	case value <= 0xff:
		_, err := w.Write([]byte{major<<5 | 24, byte(value)})
		return err
	case value <= 0xffff:
		buf := make([]byte, 3)
		buf[0] = major<<5 | 25
		binary.BigEndian.PutUint16(buf[1:], uint16(value))
		_, err := w.Write(buf)
		return err
	case value <= 0xffffffff:
		buf := make([]byte, 5)
		buf[0] = major<<5 | 26
		binary.BigEndian.PutUint32(buf[1:], uint32(value))
		_, err := w.Write(buf)
		return err
	default:
		buf := make([]byte, 9)
		buf[0] = major<<5 | 27
		binary.BigEndian.PutUint64(buf[1:], value)
		_, err := w.Write(buf)
		return err
	}
}
