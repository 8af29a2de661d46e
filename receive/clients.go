package receive

// acquireSlot blocks until a writer slot is free or the pipeline is closed,
// bounding how many client writers run concurrently the same way Sender
// bounds concurrent framers. It mirrors the buffered-channel-as-semaphore
// idiom used throughout this codebase.
func (r *Receiver) acquireSlot() bool {
	select {
	case r.slots <- struct{}{}:
		return true
	case <-r.done:
		return false
	}
}

func (r *Receiver) releaseSlot() {
	<-r.slots
}
