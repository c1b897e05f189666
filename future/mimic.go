package future

// Awaitable is satisfied by anything a caller can retrieve a dispatch
// result from: Future, ScheduledFuture (via its embedded Future), and
// Mimic. The dispatcher's Send/Queue operations return this interface so
// callers don't need to care which kind of result they got back.
type Awaitable interface {
	Get() (interface{}, error)
}

// Mimic is a zero-cost stand-in returned when the dispatcher resolved and
// ran a handler synchronously (same-context send). It exposes the same
// retrieval contract as Future but never blocks, since the value is already
// in hand, and it does not support cancellation.
type Mimic struct {
	result interface{}
	err    error
}

// NewMimic wraps an already-available result.
func NewMimic(result interface{}, err error) *Mimic {
	return &Mimic{result: result, err: err}
}

// Get returns the wrapped result immediately.
func (m *Mimic) Get() (interface{}, error) {
	return m.result, m.err
}

func (m *Mimic) String() string {
	if m.err != nil {
		return "result: <none>, exception: " + m.err.Error()
	}
	return "result: <available>"
}
