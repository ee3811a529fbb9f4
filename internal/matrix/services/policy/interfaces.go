package policy

import (
	"errors"
	"time"

	"github.com/haukened/rr-matrix/internal/matrix/domain"
)

var (
	// ErrNoStore is returned by operations that need a persistent store when
	// the service runs in memory only.
	ErrNoStore = errors.New("no persistent store configured")
	// ErrInvalidUserData is returned when a backup document cannot be restored.
	ErrInvalidUserData = errors.New("invalid user data")
)

// Metrics receives service events. A nil Metrics is allowed.
type Metrics interface {
	ObserveDecision(t domain.RequestType, d domain.Decision, cached bool)
	ObserveMutation(layer, op string)
	ObservePersist(result string)
	SetLayerSize(layer string, n int)
	ObserveSnapshot(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveDecision(domain.RequestType, domain.Decision, bool) {}
func (noopMetrics) ObserveMutation(string, string)                            {}
func (noopMetrics) ObservePersist(string)                                     {}
func (noopMetrics) SetLayerSize(string, int)                                  {}
func (noopMetrics) ObserveSnapshot(time.Duration)                             {}

// Layer names used in logs and metrics.
const (
	LayerTemporary = "temporary"
	LayerPermanent = "permanent"
)
