package indexstore

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/index"
)

// Snapshot file layout: a fixed header, the zstd-compressed JSON payload and
// a fixed footer carrying the payload checksum.
const (
	MagicBytes    uint32 = 0x42494458
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 32

	flagZstd uint32 = 1 << 0
	maxRatio        = 32
)

// Header is the 64-byte header at the start of every snapshot file.
type Header struct {
	Magic         uint32
	Version       uint32
	PostCount     uint32
	TagCount      uint32
	BuiltAt       int64
	PayloadOffset int64
	PayloadSize   int64
	Flags         uint32
}

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

// Encode writes idx to w in snapshot format.
func Encode(w io.Writer, idx *index.Index) (int64, error) {
	snap := idx.Snapshot()
	raw, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("marshaling snapshot: %w", err)
	}
	payload := encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2))

	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(snap.Posts)))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(snap.TagCounts)))
	binary.LittleEndian.PutUint64(header[16:24], uint64(snap.BuiltAt.UnixNano()))
	binary.LittleEndian.PutUint64(header[24:32], uint64(HeaderSize))
	binary.LittleEndian.PutUint64(header[32:40], uint64(len(payload)))
	binary.LittleEndian.PutUint32(header[40:44], flagZstd)

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(payload))
	binary.LittleEndian.PutUint64(footer[4:12], uint64(len(raw)))

	var written int64
	for _, chunk := range [][]byte{header, payload, footer} {
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("writing snapshot: %w", err)
		}
	}
	return written, nil
}

// Decode parses a snapshot produced by Encode and rebuilds the Index.
func Decode(data []byte) (*index.Index, error) {
	header, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}
	end := header.PayloadOffset + header.PayloadSize
	if header.PayloadOffset < int64(HeaderSize) || header.PayloadSize < 0 || end+int64(FooterSize) != int64(len(data)) {
		return nil, fmt.Errorf("payload bounds %d+%d do not match file size %d", header.PayloadOffset, header.PayloadSize, len(data))
	}
	payload := data[header.PayloadOffset:end]
	footer := data[end:]
	if want, got := binary.LittleEndian.Uint32(footer[0:4]), crc32.ChecksumIEEE(payload); want != got {
		return nil, fmt.Errorf("checksum mismatch: stored %08x, computed %08x", want, got)
	}

	raw := payload
	if header.Flags&flagZstd != 0 {
		sizeHint := min(binary.LittleEndian.Uint64(footer[4:12]), uint64(len(payload))*maxRatio)
		raw, err = decoder.DecodeAll(payload, make([]byte, 0, sizeHint))
		if err != nil {
			return nil, fmt.Errorf("decompressing payload: %w", err)
		}
	}

	var snap index.Snapshot
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("parsing payload: %w", err)
	}
	if int(header.PostCount) != len(snap.Posts) || int(header.TagCount) != len(snap.TagCounts) {
		return nil, fmt.Errorf("header counts %d/%d disagree with payload %d/%d",
			header.PostCount, header.TagCount, len(snap.Posts), len(snap.TagCounts))
	}
	idx, err := index.FromSnapshot(snap)
	if err != nil {
		return nil, fmt.Errorf("validating snapshot: %w", err)
	}
	return idx, nil
}

// ReadHeader parses and checks the fixed header of a snapshot.
func ReadHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize+FooterSize {
		return Header{}, fmt.Errorf("snapshot truncated at %d bytes", len(data))
	}
	h := Header{
		Magic:         binary.LittleEndian.Uint32(data[0:4]),
		Version:       binary.LittleEndian.Uint32(data[4:8]),
		PostCount:     binary.LittleEndian.Uint32(data[8:12]),
		TagCount:      binary.LittleEndian.Uint32(data[12:16]),
		BuiltAt:       int64(binary.LittleEndian.Uint64(data[16:24])),
		PayloadOffset: int64(binary.LittleEndian.Uint64(data[24:32])),
		PayloadSize:   int64(binary.LittleEndian.Uint64(data[32:40])),
		Flags:         binary.LittleEndian.Uint32(data[40:44]),
	}
	if h.Magic != MagicBytes {
		return Header{}, fmt.Errorf("bad magic bytes %x", h.Magic)
	}
	if h.Version != FormatVersion {
		return Header{}, fmt.Errorf("unsupported format version %d", h.Version)
	}
	return h, nil
}

// BuiltAtTime returns the build time recorded in the header.
func (h Header) BuiltAtTime() time.Time {
	return time.Unix(0, h.BuiltAt)
}
