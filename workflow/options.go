package workflow

import "time"

// Options configure which optional stages of the graph are built and how
// the loops inside it are bounded. The zero value enables every stage with
// the defaults below.
type Options struct {
	// SkipValidation removes the structure-validation node and its edit
	// loop from the graph.
	SkipValidation bool

	// SkipHumanReview removes the human-review suspension point.
	SkipHumanReview bool

	// SkipContentGeneration removes the content fan-out stage; the run
	// terminates after the framework is settled.
	SkipContentGeneration bool

	// MaxValidationRetries bounds the validation-edit cycle. Zero means
	// DefaultMaxValidationRetries. Exhaustion is a soft limit: the run
	// proceeds with warnings, it does not fail.
	MaxValidationRetries int

	// ParallelConceptLimit bounds fan-out concurrency (semaphore size).
	// Zero means DefaultParallelConceptLimit.
	ParallelConceptLimit int

	// RecoveryWindow bounds how old an interrupted processing task may be
	// before startup recovery ignores it. Zero means DefaultRecoveryWindow.
	RecoveryWindow time.Duration
}

// Defaults for zero-valued options.
const (
	DefaultMaxValidationRetries = 3
	DefaultParallelConceptLimit = 3
	DefaultRecoveryWindow       = 24 * time.Hour
)

// withDefaults fills zero values.
func (o Options) withDefaults() Options {
	if o.MaxValidationRetries == 0 {
		o.MaxValidationRetries = DefaultMaxValidationRetries
	}
	if o.ParallelConceptLimit == 0 {
		o.ParallelConceptLimit = DefaultParallelConceptLimit
	}
	if o.RecoveryWindow == 0 {
		o.RecoveryWindow = DefaultRecoveryWindow
	}
	return o
}
