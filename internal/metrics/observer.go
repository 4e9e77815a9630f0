package metrics

// RelayObserver receives signal from the outbox relay sweeps.
type RelayObserver interface {
	IncPublished()
	IncPublishFailed()
	ObserveSweep(sweep string, seconds float64)
	SetDeadLetterBacklog(count float64)
}

// CacheObserver receives signal from the popular-products refresh job.
type CacheObserver interface {
	IncRefreshSuccess()
	IncRefreshFailure()
	ObserveRefresh(seconds float64)
	SetLastRefreshSuccess(unixSeconds float64)
}

type noopObserver struct{}

func (noopObserver) IncPublished()                     {}
func (noopObserver) IncPublishFailed()                 {}
func (noopObserver) ObserveSweep(string, float64)      {}
func (noopObserver) SetDeadLetterBacklog(float64)      {}
func (noopObserver) IncRefreshSuccess()                {}
func (noopObserver) IncRefreshFailure()                {}
func (noopObserver) ObserveRefresh(float64)            {}
func (noopObserver) SetLastRefreshSuccess(float64)     {}

// NewNoopObserver is used by tests that don't care about metrics.
func NewNoopObserver() interface {
	RelayObserver
	CacheObserver
} {
	return noopObserver{}
}
