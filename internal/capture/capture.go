// Package capture reads and writes capture files, handing each frame to the
// decoder together with the file's link type.
package capture

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// DefaultSnapLen is the snapshot length written into new pcap files.
const DefaultSnapLen = 65535

var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

type packetSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Reader reads frames from a pcap or pcapng file.
type Reader struct {
	path   string
	file   *os.File
	source packetSource
}

// Open opens path and detects the file format from its magic number.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file %s: %w", path, err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read capture file %s: %w", path, err)
	}
	r.path, r.file = path, f
	return r, nil
}

// NewReader reads a capture stream from r.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("reading file header: %w", err)
	}
	if bytes.Equal(magic, pcapngMagic) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, err
		}
		return &Reader{source: ng}, nil
	}
	pr, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, err
	}
	return &Reader{source: pr}, nil
}

// ReadPacket returns the next frame. The slice is owned by the caller.
// At the end of the file it returns io.EOF.
func (r *Reader) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := r.source.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, gopacket.CaptureInfo{}, io.EOF
		}
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("failed to read packet: %w", err)
	}
	return data, ci, nil
}

func (r *Reader) LinkType() layers.LinkType { return r.source.LinkType() }

func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Writer writes frames to a classic pcap file.
type Writer struct {
	file *os.File
	w    *pcapgo.Writer
}

// Create creates path and writes the pcap file header.
func Create(path string, link layers.LinkType) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file %s: %w", path, err)
	}
	w, err := NewWriter(f, link)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.file = f
	return w, nil
}

// NewWriter writes a pcap stream to out.
func NewWriter(out io.Writer, link layers.LinkType) (*Writer, error) {
	w := pcapgo.NewWriter(out)
	if err := w.WriteFileHeader(DefaultSnapLen, link); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &Writer{w: w}, nil
}

// WritePacket appends one frame stamped with ts.
func (w *Writer) WritePacket(ts time.Time, data []byte) error {
	ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}
	return w.w.WritePacket(ci, data)
}

func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
