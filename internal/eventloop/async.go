package eventloop

// Async is a one-shot wakeup handle. Send posts the handle's callback to the
// owning loop; the callback is responsible for closing the handle.
type Async struct {
	loop   *Loop
	cb     func(*Async)
	closed bool

	// Data is an opaque slot for the handle's owner.
	Data any
}

// NewAsync binds a wakeup handle to loop.
func NewAsync(loop *Loop, cb func(*Async)) *Async {
	return &Async{loop: loop, cb: cb}
}

// Send schedules the handle's callback on a future loop iteration. Sends
// after Close are dropped.
func (a *Async) Send() {
	a.loop.Post(func() {
		if a.closed {
			return
		}
		a.cb(a)
	})
}

// Close marks the handle dead. Pending sends become no-ops.
func (a *Async) Close() {
	a.closed = true
}
