package syncx

// UnboundedChan is a channel pair with an elastic buffer between the two
// ends, so senders never block. Used for the background refresh queue.
type UnboundedChan[T any] struct {
	in  chan<- T
	out <-chan T
}

func NewUnboundedChan[T any](capacity int) UnboundedChan[T] {
	in := make(chan T, capacity)
	out := make(chan T, capacity)
	go pump(in, out, capacity)
	return UnboundedChan[T]{in: in, out: out}
}

func (c *UnboundedChan[T]) In() chan<- T  { return c.in }
func (c *UnboundedChan[T]) Out() <-chan T { return c.out }

func pump[T any](in chan T, out chan T, capacity int) {
	defer close(out)
	backlog := make([]T, 0, capacity)

loop:
	for {
		v, ok := <-in
		if !ok {
			break loop
		}

		select {
		case out <- v:
			continue
		default:
		}

		// out is full, spill into the backlog until it drains
		backlog = append(backlog, v)
		for len(backlog) > 0 {
			select {
			case v, ok := <-in:
				if !ok {
					break loop
				}
				backlog = append(backlog, v)
			case out <- backlog[0]:
				backlog = backlog[1:]
				if len(backlog) == 0 {
					// release the grown backing array
					backlog = make([]T, 0, capacity)
				}
			}
		}
	}

	for len(backlog) > 0 {
		out <- backlog[0]
		backlog = backlog[1:]
	}
}
