package checkpoint

// Option applies a configuration option to the in-memory Set.
type Option func(*inMemorySet)

// WithCompleted seeds the set with ids loaded from an existing sink.
func WithCompleted(ids []string) Option {
	return func(s *inMemorySet) {
		for _, id := range ids {
			if id != "" {
				s.addLocked(id)
			}
		}
	}
}
