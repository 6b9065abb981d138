package networking

// OutboundQueue holds serialized frames emitted while not connected. It is
// bounded: pushing onto a full queue evicts the oldest frame. A limit of zero
// or less means unbounded. Callers provide synchronization.
type OutboundQueue struct {
	limit  int
	frames [][]byte
}

func NewOutboundQueue(limit int) *OutboundQueue {
	return &OutboundQueue{limit: limit}
}

// Push appends a frame and reports whether an older one was evicted to make room.
func (q *OutboundQueue) Push(frame []byte) (evicted bool) {
	if q.limit > 0 && len(q.frames) >= q.limit {
		q.frames[0] = nil
		q.frames = q.frames[1:]
		evicted = true
	}
	q.frames = append(q.frames, frame)
	return evicted
}

// PushFront puts back a frame that could not be written.
func (q *OutboundQueue) PushFront(frame []byte) {
	q.frames = append([][]byte{frame}, q.frames...)
	if q.limit > 0 && len(q.frames) > q.limit {
		q.frames = q.frames[:q.limit]
	}
}

func (q *OutboundQueue) Pop() ([]byte, bool) {
	if len(q.frames) == 0 {
		return nil, false
	}
	frame := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	return frame, true
}

func (q *OutboundQueue) Len() int {
	return len(q.frames)
}

func (q *OutboundQueue) Clear() {
	q.frames = nil
}
