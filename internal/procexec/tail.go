package procexec

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf     []byte
	limit   int
	dropped bool
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n >= t.limit {
		t.buf = append(t.buf[:0], p[n-t.limit:]...)
		t.dropped = true
		return n, nil
	}

	if over := len(t.buf) + n - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
		t.dropped = true
	}
	t.buf = append(t.buf, p...)

	return n, nil
}

func (t *tailBuffer) String() string {
	if t.dropped {
		return "..." + string(t.buf)
	}
	return string(t.buf)
}
