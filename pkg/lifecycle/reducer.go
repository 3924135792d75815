package lifecycle

// queue serializes all state-affecting work for one workload. Tasks run in
// submission order on a dedicated goroutine.
type queue struct {
	tasks chan task
}

type task struct {
	fn   func() error
	done chan error
}

func newQueue() *queue {
	q := &queue{tasks: make(chan task, 16)}
	go q.run()
	return q
}

func (q *queue) run() {
	for t := range q.tasks {
		err := t.fn()
		if t.done != nil {
			t.done <- err
		}
	}
}

// do runs fn on the queue and waits for its result
func (q *queue) do(fn func() error) error {
	done := make(chan error, 1)
	q.tasks <- task{fn: fn, done: done}
	return <-done
}

// post runs fn on the queue without waiting. Used by event reduction, which
// has no caller to report to.
func (q *queue) post(fn func() error) {
	q.tasks <- task{fn: fn}
}

// queueFor returns the workload's serial queue, creating it on first use.
// Queues live for the process lifetime; a fleet's worth of parked
// goroutines is cheaper than lifecycle races.
func (e *Engine) queueFor(workloadID string) *queue {
	e.qmu.Lock()
	defer e.qmu.Unlock()
	q, ok := e.queues[workloadID]
	if !ok {
		q = newQueue()
		e.queues[workloadID] = q
	}
	return q
}

// Do runs fn under the workload's serial queue. The transfer coordinator
// uses this to apply its ownership switch without racing event reduction.
func (e *Engine) Do(workloadID string, fn func() error) error {
	return e.queueFor(workloadID).do(fn)
}
