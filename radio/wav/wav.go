// Package wav reads and writes I/Q recordings stored as two-channel PCM WAV.
package wav

import (
	"encoding/binary"
	"errors"
	"io"
)

var (
	ErrBadFormat = errors.New("bad format")
	ErrNotIQ8    = errors.New("not 8-bit two-channel I/Q")
)

type riffHeader struct {
	ChunkId   [4]byte
	ChunkSize uint32
	Format    [4]byte
}

type fmtHeader struct {
	AudioFormat   uint16 /* 1 */
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

type chunkHeader struct {
	ChunkId   [4]byte
	ChunkSize uint32
}

type Reader struct {
	io.Reader
	fh fmtHeader
	// remaining bytes of the data chunk
	left int64
}

// NewReader parses the headers of r up to the data chunk. Chunks other
// than "fmt " and "data" are skipped.
func NewReader(r io.Reader) (*Reader, error) {
	var rh riffHeader
	if err := binary.Read(r, binary.LittleEndian, &rh); err != nil {
		return nil, err
	}
	if string(rh.ChunkId[:]) != "RIFF" || string(rh.Format[:]) != "WAVE" {
		return nil, ErrBadFormat
	}
	rr := &Reader{}
	sawFmt := false
	for {
		var ch chunkHeader
		if err := binary.Read(r, binary.LittleEndian, &ch); err != nil {
			return nil, err
		}
		switch string(ch.ChunkId[:]) {
		case "fmt ":
			if ch.ChunkSize < 16 {
				return nil, ErrBadFormat
			}
			if err := binary.Read(r, binary.LittleEndian, &rr.fh); err != nil {
				return nil, err
			}
			if rr.fh.AudioFormat != 1 {
				return nil, ErrBadFormat
			}
			if _, err := io.CopyN(io.Discard, r, int64(ch.ChunkSize-16)); err != nil {
				return nil, err
			}
			sawFmt = true
		case "data":
			if !sawFmt {
				return nil, ErrBadFormat
			}
			rr.left = int64(ch.ChunkSize)
			rr.Reader = io.LimitReader(r, rr.left)
			return rr, nil
		default:
			if _, err := io.CopyN(io.Discard, r, int64(ch.ChunkSize)); err != nil {
				return nil, err
			}
		}
	}
}

// NewIQ8Reader is NewReader restricted to unsigned 8-bit I/Q pairs, the
// layout rtl_sdr produces.
func NewIQ8Reader(r io.Reader) (*Reader, error) {
	rr, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	if rr.Channels() != 2 || rr.fh.BitsPerSample != 8 {
		return nil, ErrNotIQ8
	}
	return rr, nil
}

func (r *Reader) Channels() int {
	return int(r.fh.NumChannels)
}

func (r *Reader) SampleRate() int {
	return int(r.fh.SampleRate)
}

func (r *Reader) BitDepth() int {
	return int(r.fh.BitsPerSample)
}

type Writer struct {
	w io.Writer

	SampleRate    uint32
	BitsPerSample uint16
	NumChannels   uint16

	dataLen uint32
}

func NewWriter(w io.Writer, rate, depth, channels int) (*Writer, error) {
	if rate == 0 || depth == 0 || channels == 0 {
		return nil, ErrBadFormat
	}
	ww := &Writer{
		w:             w,
		SampleRate:    uint32(rate),
		BitsPerSample: uint16(depth),
		NumChannels:   uint16(channels),
	}
	if err := ww.writeHeader(0); err != nil {
		return nil, err
	}
	return ww, nil
}

func NewIQ8Writer(w io.Writer, rate int) (*Writer, error) { return NewWriter(w, rate, 8, 2) }

func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.dataLen += uint32(n)
	return n, err
}

// Close rewrites the header with the final data length when the
// underlying writer can seek. Streams keep the open-ended length.
func (w *Writer) Close() error {
	ws, ok := w.w.(io.WriteSeeker)
	if !ok {
		return nil
	}
	if _, err := ws.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := w.writeHeader(w.dataLen); err != nil {
		return err
	}
	_, err := ws.Seek(0, io.SeekEnd)
	return err
}

func (w *Writer) writeHeader(dataLen uint32) error {
	if dataLen == 0 {
		dataLen = 1 << 31
	}
	rh := &riffHeader{
		ChunkId:   [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize: dataLen + 36,
		Format:    [4]byte{'W', 'A', 'V', 'E'},
	}
	if err := binary.Write(w.w, binary.LittleEndian, rh); err != nil {
		return err
	}
	ch := &chunkHeader{ChunkId: [4]byte{'f', 'm', 't', ' '}, ChunkSize: 16}
	if err := binary.Write(w.w, binary.LittleEndian, ch); err != nil {
		return err
	}
	fh := &fmtHeader{
		AudioFormat:   1,
		NumChannels:   w.NumChannels,
		SampleRate:    w.SampleRate,
		ByteRate:      w.SampleRate * uint32(w.NumChannels) * uint32(w.BitsPerSample) / 8,
		BlockAlign:    uint16((uint32(w.NumChannels) * uint32(w.BitsPerSample)) / 8),
		BitsPerSample: w.BitsPerSample,
	}
	if err := binary.Write(w.w, binary.LittleEndian, fh); err != nil {
		return err
	}
	dh := &chunkHeader{ChunkId: [4]byte{'d', 'a', 't', 'a'}, ChunkSize: dataLen}
	return binary.Write(w.w, binary.LittleEndian, dh)
}
