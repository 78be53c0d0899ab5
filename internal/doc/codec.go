package doc

import (
	"encoding/binary"
	"errors"
)

// Binary layout uses unsigned LEB128 varints throughout, matching the
// framing the front end's sync library emits.
//
//	state vector: count, then (client, clock) pairs
//	update:       count, then (client, clock, len, payload) tuples

var errTruncated = errors.New("truncated input")

// EncodeStateVector appends the binary form of sv to buf.
func EncodeStateVector(buf []byte, sv StateVector) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(sv)))
	for client, clock := range sv {
		buf = binary.AppendUvarint(buf, client)
		buf = binary.AppendUvarint(buf, clock)
	}
	return buf
}

// DecodeStateVector parses a state vector and returns the remaining
// bytes.
func DecodeStateVector(b []byte) (StateVector, []byte, error) {
	count, b, err := readUvarint(b)
	if err != nil {
		return nil, nil, err
	}
	// Each pair takes at least two bytes, so a count the body cannot
	// hold is bogus. Checking here keeps the count from sizing an
	// allocation.
	if count > uint64(len(b))/2 {
		return nil, nil, errTruncated
	}
	sv := make(StateVector, count)
	for i := uint64(0); i < count; i++ {
		var client, clock uint64
		if client, b, err = readUvarint(b); err != nil {
			return nil, nil, err
		}
		if clock, b, err = readUvarint(b); err != nil {
			return nil, nil, err
		}
		sv[client] = clock
	}
	return sv, b, nil
}

// EncodeUpdate appends the binary form of u to buf.
func EncodeUpdate(buf []byte, u Update) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(u)))
	for _, op := range u {
		buf = binary.AppendUvarint(buf, op.Client)
		buf = binary.AppendUvarint(buf, op.Clock)
		buf = binary.AppendUvarint(buf, uint64(len(op.Payload)))
		buf = append(buf, op.Payload...)
	}
	return buf
}

// DecodeUpdate parses an update and returns the remaining bytes.
func DecodeUpdate(b []byte) (Update, []byte, error) {
	count, b, err := readUvarint(b)
	if err != nil {
		return nil, nil, err
	}
	// Three varints per op means at least three bytes each.
	if count > uint64(len(b))/3 {
		return nil, nil, errTruncated
	}
	u := make(Update, 0, count)
	for i := uint64(0); i < count; i++ {
		var op Op
		if op.Client, b, err = readUvarint(b); err != nil {
			return nil, nil, err
		}
		if op.Clock, b, err = readUvarint(b); err != nil {
			return nil, nil, err
		}
		var n uint64
		if n, b, err = readUvarint(b); err != nil {
			return nil, nil, err
		}
		if uint64(len(b)) < n {
			return nil, nil, errTruncated
		}
		op.Payload = append([]byte(nil), b[:n]...)
		b = b[n:]
		u = append(u, op)
	}
	return u, b, nil
}

func readUvarint(b []byte) (uint64, []byte, error) {
	v, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, nil, errTruncated
	}
	return v, b[n:], nil
}
