package metrics

// Nop is a no-op recorder for tests and disabled-metrics runs.
type Nop struct{}

func (Nop) RecordEvent(string, bool)        {}
func (Nop) RecordCoalesced(string)          {}
func (Nop) RecordError(string)              {}
func (Nop) RecordLastPrice(string, float64) {}
func (Nop) RecordLatency(string, float64)   {}
func (Nop) RecordMode(string)               {}
