package domain

// RetryPolicy configures exponential backoff with jitter for one
// message or activity retry lineage. A zero-value MaxRetries means no
// retries: first failure dead-letters.
type RetryPolicy struct {
	MaxRetries        int      `json:"max_retries"`
	InitialDelayMs    int64    `json:"initial_delay_ms"`
	MaxDelayMs        int64    `json:"max_delay_ms"`
	BackoffMultiplier float64  `json:"backoff_multiplier"`
	RetryableErrors   []string `json:"retryable_errors,omitempty"`
}

// Named presets for the three retry contexts the runtime uses:
// message redelivery, activity invocation, and "none" for
// configuration/structural errors that should dead-letter immediately.
var (
	RetryPolicyNone = RetryPolicy{MaxRetries: 0}

	RetryPolicyMessage = RetryPolicy{
		MaxRetries:        5,
		InitialDelayMs:    1000,
		MaxDelayMs:        60000,
		BackoffMultiplier: 2.0,
	}

	RetryPolicyActivity = RetryPolicy{
		MaxRetries:        3,
		InitialDelayMs:    500,
		MaxDelayMs:        30000,
		BackoffMultiplier: 2.0,
	}
)
