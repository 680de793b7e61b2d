package driver

// Reassembly collects the parts of a payload split over several notifications.
type Reassembly struct {
  buf []byte
}

// Start drops whatever was collected and begins a new payload with part.
func (r *Reassembly) Start(part []byte) (discarded bool) {
  discarded = r.buf != nil
  r.buf = append(make([]byte, 0, len(part)*2), part...)

  return discarded
}

// Append adds part to the payload being collected. It returns false if no payload was started.
func (r *Reassembly) Append(part []byte) bool {
  if r.buf == nil {
    return false
  }

  r.buf = append(r.buf, part...)

  return true
}

func (r *Reassembly) Bytes() []byte {
  return r.buf
}

func (r *Reassembly) Reset() {
  r.buf = nil
}
