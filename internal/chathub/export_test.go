package chathub

import "time"

// SetClock pins the router's clock in tests.
func (r *Router) SetClock(now func() time.Time) { r.now = now }
