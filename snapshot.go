package qbdt

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects how a snapshot payload is compressed.
type Codec uint8

const (
	CodecNone Codec = iota
	CodecZstd
	CodecLZ4
)

const (
	snapshotMagic   = "QBDT"
	snapshotVersion = 1
	// magic, version, codec, uncompressed size, compressed size
	snapshotHeaderSize = 4 + 1 + 1 + 4 + 4

	// lz4 encodes at most 255 bytes of a match per extra input byte.
	lz4MaxRatio = 255
	// initial zstd output capacity per compressed byte; DecodeAll grows it.
	zstdCapacityRatio = 16
)

// ParseCodec maps a configuration name onto a Codec.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "none":
		return CodecNone, nil
	case "zstd":
		return CodecZstd, nil
	case "lz4":
		return CodecLZ4, nil
	}
	return CodecNone, fmt.Errorf("codec %q: %w", name, ErrSnapshotFormat)
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

/*
WriteSnapshot commits pending gates and writes the tree to w as a table of
its distinct nodes, so shared subtrees are stored once. The payload is
compressed with the codec named by Config.SnapshotCodec.
*/
func (q *QBdt) WriteSnapshot(w io.Writer) error {
	codec, err := ParseCodec(q.config.SnapshotCodec)
	if err != nil {
		return err
	}

	q.FlushAll()
	payload := q.encodeNodes()

	packed, err := compressPayload(payload, codec)
	if err != nil {
		return fmt.Errorf("compressing snapshot: %w", err)
	}
	if packed == nil {
		// incompressible, stored as is
		codec, packed = CodecNone, payload
	}
	stored := uint32(len(packed))
	if codec == CodecNone {
		stored = 0
	}

	header := make([]byte, 0, snapshotHeaderSize)
	header = append(header, snapshotMagic...)
	header = append(header, snapshotVersion, byte(codec))
	header = binary.LittleEndian.AppendUint32(header, uint32(len(payload)))
	header = binary.LittleEndian.AppendUint32(header, stored)

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err = w.Write(packed)
	return err
}

// encodeNodes lists every distinct node in post-order, children by index
// plus one with zero for none. The root comes last.
func (q *QBdt) encodeNodes() []byte {
	index := map[*Node]uint64{}
	var order []*Node

	var visit func(n *Node)
	visit = func(n *Node) {
		if n == nil {
			return
		}
		if _, ok := index[n]; ok {
			return
		}
		visit(n.Branches[0])
		visit(n.Branches[1])
		index[n] = uint64(len(order))
		order = append(order, n)
	}
	visit(q.root)

	ref := func(n *Node) uint64 {
		if n == nil {
			return 0
		}
		return index[n] + 1
	}

	buf := make([]byte, 0, 16+len(order)*20)
	buf = binary.AppendUvarint(buf, uint64(q.qubitCount))
	buf = binary.AppendUvarint(buf, uint64(len(order)))
	for _, n := range order {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(float64(real(n.Scale))))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(float64(imag(n.Scale))))
		buf = binary.AppendUvarint(buf, ref(n.Branches[0]))
		buf = binary.AppendUvarint(buf, ref(n.Branches[1]))
	}
	return buf
}

func compressPayload(data []byte, codec Codec) ([]byte, error) {
	switch codec {
	case CodecZstd:
		enc := getZstdEncoder()
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, nil), nil
	case CodecLZ4:
		out := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, out, nil)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
		return out[:n], nil
	}
	return data, nil
}

func decompressPayload(data []byte, codec Codec, size uint32) ([]byte, error) {
	switch codec {
	case CodecNone:
		return data, nil
	case CodecZstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(data, make([]byte, 0, min(uint64(size), uint64(len(data))*zstdCapacityRatio)))
		if err != nil {
			return nil, err
		}
		if len(out) > int(size) {
			return nil, fmt.Errorf("zstd payload longer than %d bytes: %w", size, ErrSnapshotFormat)
		}
		return out, nil
	case CodecLZ4:
		if uint64(size) > uint64(len(data))*lz4MaxRatio {
			return nil, fmt.Errorf("lz4 block of %d bytes cannot expand to %d: %w", len(data), size, ErrSnapshotFormat)
		}
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, err
		}
		return out[:n], nil
	}
	return nil, fmt.Errorf("codec %d: %w", codec, ErrSnapshotFormat)
}

// ReadSnapshot builds a register from a snapshot written by WriteSnapshot.
func ReadSnapshot(r io.Reader, opts ...Option) (*QBdt, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(raw) < snapshotHeaderSize || string(raw[:4]) != snapshotMagic {
		return nil, fmt.Errorf("missing header: %w", ErrSnapshotFormat)
	}
	if raw[4] != snapshotVersion {
		return nil, fmt.Errorf("version %d: %w", raw[4], ErrSnapshotFormat)
	}

	codec := Codec(raw[5])
	size := binary.LittleEndian.Uint32(raw[6:])
	stored := binary.LittleEndian.Uint32(raw[10:])
	body := raw[snapshotHeaderSize:]

	if codec == CodecNone {
		stored = size
	}
	if uint64(len(body)) < uint64(stored) {
		return nil, fmt.Errorf("truncated payload: %w", ErrSnapshotFormat)
	}

	payload, err := decompressPayload(body[:stored], codec, size)
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot: %w: %w", ErrSnapshotFormat, err)
	}
	if uint32(len(payload)) != size {
		return nil, fmt.Errorf("payload of %d bytes, want %d: %w", len(payload), size, ErrSnapshotFormat)
	}

	qubitCount, root, err := decodeNodes(payload)
	if err != nil {
		return nil, err
	}

	q := newQBdt(qubitCount, resolve(opts))
	q.root = root
	return q, nil
}

type snapshotReader struct {
	buf []byte
	err error
}

func (s *snapshotReader) uvarint() uint64 {
	if s.err != nil {
		return 0
	}
	v, n := binary.Uvarint(s.buf)
	if n <= 0 {
		s.err = fmt.Errorf("bad varint: %w", ErrSnapshotFormat)
		return 0
	}
	s.buf = s.buf[n:]
	return v
}

func (s *snapshotReader) float() Real {
	if s.err != nil {
		return 0
	}
	if len(s.buf) < 8 {
		s.err = fmt.Errorf("truncated scale: %w", ErrSnapshotFormat)
		return 0
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(s.buf))
	s.buf = s.buf[8:]
	return Real(v)
}

// decodeNodes rebuilds the node table and checks that every non-zero path
// runs exactly qubitCount levels deep.
func decodeNodes(payload []byte) (int, *Node, error) {
	s := &snapshotReader{buf: payload}
	qubitCount := s.uvarint()
	count := s.uvarint()
	if s.err != nil {
		return 0, nil, s.err
	}
	// A non-zero tree holds at least one node per level below the root.
	if count == 0 || qubitCount >= count || count > uint64(len(payload)) {
		return 0, nil, fmt.Errorf("%d qubits in %d nodes: %w", qubitCount, count, ErrSnapshotFormat)
	}

	nodes := make([]*Node, count)
	// height of each node; -1 marks a zero leaf, which fits any depth
	heights := make([]int, count)

	for i := range nodes {
		n := &Node{}
		n.Scale = Amplitude(complex(s.float(), s.float()))
		refs := [2]uint64{s.uvarint(), s.uvarint()}
		if s.err != nil {
			return 0, nil, s.err
		}

		if (refs[0] == 0) != (refs[1] == 0) {
			return 0, nil, fmt.Errorf("node %d has one branch: %w", i, ErrSnapshotFormat)
		}

		h := -1
		if refs[0] == 0 {
			if !n.IsZero() {
				h = 0
			}
		} else {
			for b, ref := range refs {
				if ref > uint64(i) {
					return 0, nil, fmt.Errorf("node %d points forward: %w", i, ErrSnapshotFormat)
				}
				child := nodes[ref-1]
				child.retain()
				n.Branches[b] = child

				ch := heights[ref-1]
				if ch < 0 {
					continue
				}
				if h >= 0 && h != ch+1 {
					return 0, nil, fmt.Errorf("node %d has uneven branches: %w", i, ErrSnapshotFormat)
				}
				h = ch + 1
			}
		}

		nodes[i] = n
		heights[i] = h
	}
	if len(s.buf) != 0 {
		return 0, nil, fmt.Errorf("%d trailing bytes: %w", len(s.buf), ErrSnapshotFormat)
	}

	root := nodes[count-1]
	if root.IsZero() {
		return 0, nil, fmt.Errorf("root carries no amplitude: %w", ErrSnapshotFormat)
	}
	if h := heights[count-1]; h != int(qubitCount) {
		return 0, nil, fmt.Errorf("tree depth %d for %d qubits: %w", h, qubitCount, ErrSnapshotFormat)
	}
	root.retain()
	return int(qubitCount), root, nil
}
