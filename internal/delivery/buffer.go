package delivery

// ResponseBuffer accumulates a response body delivered in chunks. It holds at
// most capacity-1 bytes followed by a zero terminator; anything beyond that is
// dropped without error.
type ResponseBuffer struct {
	data []byte
	n    int
}

// NewResponseBuffer allocates a buffer of the given capacity.
func NewResponseBuffer(capacity int) *ResponseBuffer {
	return &ResponseBuffer{data: make([]byte, capacity)}
}

// Append copies as much of chunk as fits and returns the number of bytes
// stored.
func (b *ResponseBuffer) Append(chunk []byte) int {
	room := len(b.data) - b.n - 1
	if room <= 0 || len(chunk) == 0 {
		return 0
	}
	if len(chunk) > room {
		chunk = chunk[:room]
	}
	copy(b.data[b.n:], chunk)
	b.n += len(chunk)
	b.data[b.n] = 0
	return len(chunk)
}

// Reset rewinds the write cursor.
func (b *ResponseBuffer) Reset() {
	b.n = 0
	if len(b.data) > 0 {
		b.data[0] = 0
	}
}

// Len returns the number of body bytes held, excluding the terminator.
func (b *ResponseBuffer) Len() int {
	return b.n
}

// Cap returns the configured capacity, terminator included.
func (b *ResponseBuffer) Cap() int {
	return len(b.data)
}

// Bytes returns a copy of the body bytes.
func (b *ResponseBuffer) Bytes() []byte {
	out := make([]byte, b.n)
	copy(out, b.data[:b.n])
	return out
}

// Terminated reports whether the byte after the body is zero.
func (b *ResponseBuffer) Terminated() bool {
	return b.n < len(b.data) && b.data[b.n] == 0
}
