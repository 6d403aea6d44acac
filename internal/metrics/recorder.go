// ABOUTME: Recorder interface covering cache, persistence, message, broadcast, correlation and relay events
// ABOUTME: NoopRecorder is the default when metrics are not configured

package metrics

// Result labels.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Recorder receives observability events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveCacheLookup(hit bool)
	ObservePersistence(op string, err error)
	ObserveMessage(kind, outcome string)
	ObserveBroadcast(kind string, delivered, dropped int)
	ObserveCorrelation(degree float64, notified bool)
	ObserveRelay(direction, result string)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveCacheLookup(bool)           {}
func (NoopRecorder) ObservePersistence(string, error)  {}
func (NoopRecorder) ObserveMessage(string, string)     {}
func (NoopRecorder) ObserveBroadcast(string, int, int) {}
func (NoopRecorder) ObserveCorrelation(float64, bool)  {}
func (NoopRecorder) ObserveRelay(string, string)       {}

var _ Recorder = NoopRecorder{}
