package maxent

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrCorrupt is returned when a serialized model cannot be decoded.
var ErrCorrupt = errors.New("maxent: corrupt model data")

// MarshalBinary encodes the model as little-endian counts and values:
// labels, feature strings (uvarint length prefixed) and the weight vector.
func (m *Model) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	le := binary.LittleEndian

	writeInt := func(v int) { _ = binary.Write(&buf, le, int32(v)) }

	writeInt(len(m.labels))
	for _, l := range m.labels {
		writeInt(l)
	}
	writeInt(m.features.Len())
	var lenBuf [binary.MaxVarintLen64]byte
	for _, name := range m.features.names {
		n := binary.PutUvarint(lenBuf[:], uint64(len(name)))
		buf.Write(lenBuf[:n])
		buf.WriteString(name)
	}
	for _, w := range m.weights {
		_ = binary.Write(&buf, le, math.Float64bits(w))
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes data produced by MarshalBinary.
func (m *Model) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	le := binary.LittleEndian

	readCount := func(what string) (int, error) {
		var v int32
		if err := binary.Read(r, le, &v); err != nil {
			return 0, fmt.Errorf("%w: reading %s: %v", ErrCorrupt, what, err)
		}
		if v < 0 || int(v) > r.Len() {
			return 0, fmt.Errorf("%w: %s count %d out of range", ErrCorrupt, what, v)
		}
		return int(v), nil
	}

	nl, err := readCount("labels")
	if err != nil {
		return err
	}
	labels := make([]int, nl)
	for i := range labels {
		var v int32
		if err := binary.Read(r, le, &v); err != nil {
			return fmt.Errorf("%w: reading label: %v", ErrCorrupt, err)
		}
		labels[i] = int(v)
	}

	nf, err := readCount("features")
	if err != nil {
		return err
	}
	features := NewAlphabet()
	for i := 0; i < nf; i++ {
		n, err := binary.ReadUvarint(r)
		if err != nil || n > uint64(r.Len()) {
			return fmt.Errorf("%w: reading feature %d", ErrCorrupt, i)
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return fmt.Errorf("%w: reading feature %d: %v", ErrCorrupt, i, err)
		}
		features.Add(string(b))
	}
	if features.Len() != nf {
		return fmt.Errorf("%w: duplicate feature names", ErrCorrupt)
	}

	weights := make([]float64, nf*nl)
	if r.Len() != len(weights)*8 {
		return fmt.Errorf("%w: expected %d weights, have %d bytes", ErrCorrupt, len(weights), r.Len())
	}
	for i := range weights {
		var bits uint64
		if err := binary.Read(r, le, &bits); err != nil {
			return fmt.Errorf("%w: reading weight: %v", ErrCorrupt, err)
		}
		weights[i] = math.Float64frombits(bits)
	}

	m.labels = labels
	m.features = features
	m.weights = weights
	return nil
}
