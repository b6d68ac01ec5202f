package comm

// Direction of a transfer, named from the host's point of view.
type Direction int

const (
	// DirRead means the host reads: the device sends frames.
	DirRead Direction = iota
	// DirWrite means the host writes: the device receives frames.
	DirWrite
)

// String implements Stringer.
func (d Direction) String() string {
	if d == DirWrite {
		return "write"
	}
	return "read"
}

// TaskStatus is the lifecycle status of a Task.
type TaskStatus int

// Task status values.
const (
	TaskPending TaskStatus = iota
	TaskActive
	TaskComplete
	TaskError
)

var taskStatusNames = [...]string{
	TaskPending:  "pending",
	TaskActive:   "active",
	TaskComplete: "complete",
	TaskError:    "error",
}

// String implements Stringer.
func (s TaskStatus) String() string {
	if s >= 0 && int(s) < len(taskStatusNames) {
		return taskStatusNames[s]
	}
	return "unknown"
}

// Task is one logical transfer of a contiguous buffer.
type Task struct {
	Dir         Direction
	Buf         []byte
	Length      int
	Transferred int
	Status      TaskStatus
	Err         error

	// FrameSize is the number of payload bytes carried by the frame
	// currently in flight, FrameDone is how much of it has been processed
	// (written to the link when sending, received when receiving).
	FrameSize int
	FrameDone int

	prev, next *Task
}

// NewTask creates a pending task transferring the first length bytes of buf.
func NewTask(dir Direction, buf []byte, length int) (*Task, error) {
	if length < 0 || length > len(buf) {
		return nil, ErrInvalidLength
	}
	return &Task{Dir: dir, Buf: buf, Length: length}, nil
}

// Remaining returns the bytes not transferred yet.
func (t *Task) Remaining() int {
	return t.Length - t.Transferred
}

// TaskQueue is a FIFO of tasks. The head is the only task serviced.
type TaskQueue struct {
	head *Task
	tail *Task
	len  int
}

// Len returns the number of queued tasks.
func (q *TaskQueue) Len() int {
	return q.len
}

// Front returns the head task or nil.
func (q *TaskQueue) Front() *Task {
	return q.head
}

// Push appends a task to the tail.
func (q *TaskQueue) Push(t *Task) {
	t.prev, t.next = q.tail, nil
	if q.tail == nil {
		q.head = t
	} else {
		q.tail.next = t
	}
	q.tail = t
	q.len++
}

// Pop removes and returns the head task.
func (q *TaskQueue) Pop() *Task {
	t := q.head
	if t == nil {
		return nil
	}
	if q.head = t.next; q.head == nil {
		q.tail = nil
	} else {
		q.head.prev = nil
	}
	t.next = nil
	q.len--
	return t
}

// Each calls fn on queued tasks in order.
func (q *TaskQueue) Each(fn func(*Task)) {
	for t := q.head; t != nil; t = t.next {
		fn(t)
	}
}

// Clear removes all tasks and returns them in order.
func (q *TaskQueue) Clear() []*Task {
	tasks := make([]*Task, 0, q.len)
	for t := q.Pop(); t != nil; t = q.Pop() {
		tasks = append(tasks, t)
	}
	return tasks
}
