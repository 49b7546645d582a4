package driver

// Hosts returns the number of hosts seen so far
func (ht *HostThrottle) Hosts() int {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	return len(ht.limiters)
}
