package dialogue

import "github.com/BTreeMap/LeadPipe/internal/models"

// Recorder observes engine events, typically to export metrics.
type Recorder interface {
	ObserveTransition(from, to string)
	ObserveClarification(source string)
	ObserveOutcome(outcome models.Outcome)
}

type nopRecorder struct{}

func (nopRecorder) ObserveTransition(string, string) {}
func (nopRecorder) ObserveClarification(string) {}
func (nopRecorder) ObserveOutcome(models.Outcome) {}
