package listener

// Option configures a Stateful or Stateless listener session at
// construction time.
type Option func(*options)

type options struct {
	maxConcurrentHandlers int64
}

func defaultOptions() *options {
	return &options{}
}

// WithMaxConcurrentHandlers bounds the number of handler goroutines a
// session runs at once, via a golang.org/x/sync/semaphore.Weighted sized n.
// n <= 0 leaves handler concurrency unbounded, matching the default when
// this option isn't set.
func WithMaxConcurrentHandlers(n int64) Option {
	return func(o *options) { o.maxConcurrentHandlers = n }
}
