package codec

import (
  "fmt"
  "time"
)

// Reader walks a payload front to back. The first out of bounds read sets Err and makes
// every following read return zero.
type Reader struct {
  b   []byte
  off int
  err error
}

func NewReader(b []byte) *Reader {
  return &Reader{b: b}
}

func (r *Reader) take(n int) []byte {
  if r.err != nil {
    return nil
  }

  if r.off+n > len(r.b) {
    r.err = fmt.Errorf("short payload: need %d bytes at offset %d, have %d", n, r.off, len(r.b))
    return nil
  }

  out := r.b[r.off : r.off+n]
  r.off += n

  return out
}

func (r *Reader) Uint8() uint8 {
  if b := r.take(1); b != nil {
    return b[0]
  }

  return 0
}

func (r *Reader) Uint16LE() uint16 {
  if b := r.take(2); b != nil {
    return Uint16LE(b, 0)
  }

  return 0
}

func (r *Reader) Uint32LE() uint32 {
  if b := r.take(4); b != nil {
    return Uint32LE(b, 0)
  }

  return 0
}

func (r *Reader) DateTime() time.Time {
  if b := r.take(7); b != nil {
    return DateTime(b, 0)
  }

  return time.Time{}
}

func (r *Reader) Skip(n int) {
  r.take(n)
}

func (r *Reader) Remaining() int {
  return len(r.b) - r.off
}

func (r *Reader) Err() error {
  return r.err
}

// Writer is the append-only counterpart of Reader.
type Writer struct {
  b []byte
}

// NewWriter returns a Writer starting with the given bytes.
func NewWriter(prefix ...byte) *Writer {
  return &Writer{b: append([]byte(nil), prefix...)}
}

func (w *Writer) Uint8(v uint8) *Writer {
  w.b = append(w.b, v)
  return w
}

func (w *Writer) Uint16LE(v uint16) *Writer {
  w.b = append(w.b, PutUint16LE(v)...)
  return w
}

func (w *Writer) Uint32LE(v uint32) *Writer {
  w.b = append(w.b, PutUint32LE(v)...)
  return w
}

func (w *Writer) DateTime(t time.Time) *Writer {
  w.b = append(w.b, PutDateTime(t)...)
  return w
}

func (w *Writer) Bytes() []byte {
  return w.b
}
