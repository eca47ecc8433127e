package pricing

// Observer receives informational events the engine does not surface as errors.
type Observer interface {
	UnresolvedUnit(itemID, planID, unit string)
	Resolved(itemID string, rule Rule)
}

// NopObserver discards every event.
type NopObserver struct{}

// UnresolvedUnit implements Observer.
func (NopObserver) UnresolvedUnit(string, string, string) {}

// Resolved implements Observer.
func (NopObserver) Resolved(string, Rule) {}
