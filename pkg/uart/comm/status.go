package comm

// StatusFIFOSize is the capacity of StatusFIFO.
const StatusFIFOSize = 8

// StatusFIFO records the latest stage transitions. Writing never blocks,
// the oldest entry is dropped when full.
type StatusFIFO struct {
	buf   [StatusFIFOSize]Stage
	head  int
	count int
}

// Write appends a stage.
func (f *StatusFIFO) Write(s Stage) {
	tail := (f.head + f.count) % StatusFIFOSize
	f.buf[tail] = s
	if f.count < StatusFIFOSize {
		f.count++
	} else {
		f.head = (f.head + 1) % StatusFIFOSize
	}
}

// Len returns the number of recorded entries.
func (f *StatusFIFO) Len() int {
	return f.count
}

// Read pops up to len(p) oldest entries into p.
func (f *StatusFIFO) Read(p []Stage) int {
	n := f.Peek(p)
	f.head = (f.head + n) % StatusFIFOSize
	f.count -= n
	return n
}

// Peek copies up to len(p) oldest entries without removing them.
func (f *StatusFIFO) Peek(p []Stage) int {
	n := len(p)
	if n > f.count {
		n = f.count
	}
	for i := 0; i < n; i++ {
		p[i] = f.buf[(f.head+i)%StatusFIFOSize]
	}
	return n
}

// Snapshot returns all recorded entries, oldest first.
func (f *StatusFIFO) Snapshot() []Stage {
	p := make([]Stage, f.count)
	f.Peek(p)
	return p
}

// Reset drops all entries.
func (f *StatusFIFO) Reset() {
	f.head, f.count = 0, 0
}
