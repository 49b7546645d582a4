package sink

// InFlight returns the reference count of worker's handle, 0 when closed
func (r *Registry) InFlight(worker int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[worker]; ok {
		return h.refs
	}
	return 0
}

// Opened returns how many times the log has been opened
func (r *Registry) Opened() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opened
}
