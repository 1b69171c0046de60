// Package rawvideo provides sequential frame-at-a-time access to raw planar
// sample data. Readers surface exhaustion as io.EOF, a normal end-of-stream
// condition rather than a fault, so pipeline loops can drain named pipes and
// files identically.
package rawvideo

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Format names an 8-bit planar pixel format.
type Format string

const (
	FormatYUV420P Format = "yuv420p"
	FormatYUV422P Format = "yuv422p"
	FormatYUV444P Format = "yuv444p"
	FormatGray    Format = "gray"
)

// Supported reports whether the format can be read and written here.
func Supported(f Format) bool {
	switch f {
	case FormatYUV420P, FormatYUV422P, FormatYUV444P, FormatGray:
		return true
	}
	return false
}

func chromaSize(f Format, width, height int) (int, int, error) {
	switch f {
	case FormatYUV420P:
		return (width + 1) / 2, (height + 1) / 2, nil
	case FormatYUV422P:
		return (width + 1) / 2, height, nil
	case FormatYUV444P:
		return width, height, nil
	case FormatGray:
		return 0, 0, nil
	}
	return 0, 0, fmt.Errorf("rawvideo: unsupported pixel format %q", f)
}

// Frame holds one decoded frame as float64 planes in the 0..255 range.
type Frame struct {
	Width        int
	Height       int
	ChromaWidth  int
	ChromaHeight int
	Y            []float64
	Cb           []float64
	Cr           []float64
}

// Reader reads frames sequentially from a raw planar stream.
type Reader struct {
	file   *os.File
	br     *bufio.Reader
	format Format
	width  int
	height int
	cw     int
	ch     int
	buf    []byte
}

// NewReader opens path for sequential frame reads. Opening a named pipe
// blocks until the producer opens its end, which is the intended
// synchronization for streaming mode.
func NewReader(path string, width, height int, format Format) (*Reader, error) {
	cw, ch, err := chromaSize(format, width, height)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rawvideo: open reader: %w", err)
	}
	frameBytes := width*height + 2*cw*ch
	return &Reader{
		file:   file,
		br:     bufio.NewReaderSize(file, 1<<16),
		format: format,
		width:  width,
		height: height,
		cw:     cw,
		ch:     ch,
		buf:    make([]byte, frameBytes),
	}, nil
}

// ReadFrame returns the next frame, io.EOF on clean exhaustion, or
// io.ErrUnexpectedEOF when the stream ends mid-frame.
func (r *Reader) ReadFrame() (*Frame, error) {
	n, err := io.ReadFull(r.br, r.buf)
	if err != nil {
		if err == io.EOF && n == 0 {
			return nil, io.EOF
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("rawvideo: read frame: %w", err)
	}

	frame := &Frame{
		Width:        r.width,
		Height:       r.height,
		ChromaWidth:  r.cw,
		ChromaHeight: r.ch,
	}
	lumaBytes := r.width * r.height
	frame.Y = bytesToFloats(r.buf[:lumaBytes])
	if r.cw > 0 {
		chromaBytes := r.cw * r.ch
		frame.Cb = bytesToFloats(r.buf[lumaBytes : lumaBytes+chromaBytes])
		frame.Cr = bytesToFloats(r.buf[lumaBytes+chromaBytes : lumaBytes+2*chromaBytes])
	}
	return frame, nil
}

// Close releases the underlying file. Safe to call more than once.
func (r *Reader) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	file := r.file
	r.file = nil
	return file.Close()
}

// Writer writes frames sequentially to a raw planar stream.
type Writer struct {
	file   *os.File
	bw     *bufio.Writer
	format Format
	width  int
	height int
	cw     int
	ch     int
	buf    []byte
}

// NewWriter opens path for sequential frame writes, creating or truncating a
// regular file. Opening a named pipe blocks until the consumer opens its end.
func NewWriter(path string, width, height int, format Format) (*Writer, error) {
	cw, ch, err := chromaSize(format, width, height)
	if err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rawvideo: open writer: %w", err)
	}
	frameBytes := width*height + 2*cw*ch
	return &Writer{
		file:   file,
		bw:     bufio.NewWriterSize(file, 1<<16),
		format: format,
		width:  width,
		height: height,
		cw:     cw,
		ch:     ch,
		buf:    make([]byte, frameBytes),
	}, nil
}

// WriteFrame serializes a frame, clamping float samples into the 0..255
// integer range.
func (w *Writer) WriteFrame(frame *Frame) error {
	if len(frame.Y) != w.width*w.height {
		return fmt.Errorf("rawvideo: luma plane is %d samples, want %d", len(frame.Y), w.width*w.height)
	}
	chromaBytes := w.cw * w.ch
	if len(frame.Cb) != chromaBytes || len(frame.Cr) != chromaBytes {
		return fmt.Errorf("rawvideo: chroma planes are %dx%d samples, want %d", len(frame.Cb), len(frame.Cr), chromaBytes)
	}

	floatsToBytes(w.buf[:len(frame.Y)], frame.Y)
	if chromaBytes > 0 {
		floatsToBytes(w.buf[len(frame.Y):len(frame.Y)+chromaBytes], frame.Cb)
		floatsToBytes(w.buf[len(frame.Y)+chromaBytes:], frame.Cr)
	}
	if _, err := w.bw.Write(w.buf); err != nil {
		return fmt.Errorf("rawvideo: write frame: %w", err)
	}
	return nil
}

// Close flushes buffered frames and releases the underlying file. Safe to
// call more than once.
func (w *Writer) Close() error {
	if w == nil || w.file == nil {
		return nil
	}
	file := w.file
	w.file = nil
	if err := w.bw.Flush(); err != nil {
		_ = file.Close()
		return fmt.Errorf("rawvideo: flush: %w", err)
	}
	return file.Close()
}

func bytesToFloats(src []byte) []float64 {
	out := make([]float64, len(src))
	for i, b := range src {
		out[i] = float64(b)
	}
	return out
}

func floatsToBytes(dst []byte, src []float64) {
	for i, v := range src {
		switch {
		case v <= 0:
			dst[i] = 0
		case v >= 255:
			dst[i] = 255
		default:
			dst[i] = byte(v + 0.5)
		}
	}
}
