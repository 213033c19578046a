package mqtt

// bufferedMsg is a serialized message held for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox keeps the newest messages published while the broker is down,
// oldest first. Once full, each push evicts the oldest message. Not safe for
// concurrent use; RealPublisher holds its mutex around every call.
type outbox struct {
	slots   []bufferedMsg
	oldest  int
	size    int
	dropped int // evictions since the last drain
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{slots: make([]bufferedMsg, capacity)}
}

func (o *outbox) capacity() int { return len(o.slots) }

// push stores msg and returns how many messages have been evicted since the
// last drain, 0 when nothing was.
func (o *outbox) push(msg bufferedMsg) int {
	if o.size < len(o.slots) {
		o.slots[(o.oldest+o.size)%len(o.slots)] = msg
		o.size++
		return o.dropped
	}
	o.slots[o.oldest] = msg
	o.oldest = (o.oldest + 1) % len(o.slots)
	o.dropped++
	return o.dropped
}

// drain empties the outbox. It returns the held messages in publish order and
// the number evicted since the previous drain.
func (o *outbox) drain() (msgs []bufferedMsg, dropped int) {
	if o.size > 0 {
		msgs = make([]bufferedMsg, 0, o.size)
		for i := 0; i < o.size; i++ {
			j := (o.oldest + i) % len(o.slots)
			msgs = append(msgs, o.slots[j])
			o.slots[j] = bufferedMsg{}
		}
	}
	dropped = o.dropped
	o.oldest, o.size, o.dropped = 0, 0, 0
	return msgs, dropped
}

func (o *outbox) len() int { return o.size }
