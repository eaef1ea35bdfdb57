package repository

// Option applies a configuration option to the TreapIndex.
type Option func(*TreapIndex)

// WithPrioritySeed seeds the hash that assigns node priorities.
func WithPrioritySeed(seed uint64) Option {
	return func(t *TreapIndex) {
		t.seed = seed
	}
}
