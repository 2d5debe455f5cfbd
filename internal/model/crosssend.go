package model

import "time"

// Strategy selects how sender/receiver pairs are dispatched during a
// cross-send run.
type Strategy string

const (
	// StrategySequential executes one pair at a time with an optional
	// fixed delay between pairs.
	StrategySequential Strategy = "sequential"

	// StrategyBatched runs fixed-size batches concurrently with a fixed
	// delay between batches.
	StrategyBatched Strategy = "batched"

	// StrategyParallel runs every pair concurrently with no delay.
	StrategyParallel Strategy = "parallel"

	// StrategySpaced executes one pair at a time with the configured
	// delay jittered by a factor in [0.8, 1.2].
	StrategySpaced Strategy = "spaced"

	// StrategyRandom shuffles the pairs and executes them one at a time
	// with the configured delay jittered by a factor in [0.5, 1.5].
	StrategyRandom Strategy = "random"
)

// CrossSendConfig controls one cross-send invocation. Zero values are
// filled in from the engine defaults; see Merge.
type CrossSendConfig struct {
	Strategy         Strategy      `mapstructure:"strategy"`
	BatchSize        int           `mapstructure:"batch_size"`
	SendDelay        time.Duration `mapstructure:"send_delay"`
	MaxConcurrent    int           `mapstructure:"max_concurrent"`
	ShuffleSenders   bool          `mapstructure:"shuffle_senders"`
	ShuffleReceivers bool          `mapstructure:"shuffle_receivers"`
	RandomizeContent bool          `mapstructure:"randomize_content"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	Priority         int           `mapstructure:"priority"`
	CollectStats     bool          `mapstructure:"collect_stats"`
}

// Merge returns a copy of the defaults with every non-zero field of the
// override applied on top.
func (c CrossSendConfig) Merge(override *CrossSendConfig) CrossSendConfig {
	if override == nil {
		return c
	}
	merged := c
	if override.Strategy != "" {
		merged.Strategy = override.Strategy
	}
	if override.BatchSize > 0 {
		merged.BatchSize = override.BatchSize
	}
	if override.SendDelay > 0 {
		merged.SendDelay = override.SendDelay
	}
	if override.MaxConcurrent > 0 {
		merged.MaxConcurrent = override.MaxConcurrent
	}
	if override.MaxAttempts > 0 {
		merged.MaxAttempts = override.MaxAttempts
	}
	if override.Priority > 0 {
		merged.Priority = override.Priority
	}
	merged.ShuffleSenders = c.ShuffleSenders || override.ShuffleSenders
	merged.ShuffleReceivers = c.ShuffleReceivers || override.ShuffleReceivers
	merged.RandomizeContent = c.RandomizeContent || override.RandomizeContent
	merged.CollectStats = c.CollectStats || override.CollectStats
	return merged
}

// SendError records a single pair failure inside a cross-send run.
type SendError struct {
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Reason     string `json:"reason"`
}

// CrossSendResult aggregates the outcome of one cross-send invocation.
// It is immutable once the run completes.
type CrossSendResult struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`

	// DeliveryRate is Successful/Total; the remaining rates are only
	// populated when statistics collection was requested.
	DeliveryRate float64 `json:"delivery_rate"`
	OpenRate     float64 `json:"open_rate"`
	ReplyRate    float64 `json:"reply_rate"`
	RescueRate   float64 `json:"rescue_rate"`

	Interactions []Interaction `json:"interactions"`
	Errors       []SendError   `json:"errors"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// AccountVolume counts interactions attributed to one account, used for
// the top-senders and top-receivers statistics.
type AccountVolume struct {
	AccountID string `json:"account_id" db:"account_id"`
	Count     int    `json:"count" db:"count"`
}

// NetworkStatistics summarizes the whole interaction network for an
// external observability consumer.
type NetworkStatistics struct {
	TotalAccounts       int             `json:"total_accounts"`
	TotalInteractions   int             `json:"total_interactions"`
	DeliveryRate        float64         `json:"delivery_rate"`
	OpenRate            float64         `json:"open_rate"`
	ReplyRate           float64         `json:"reply_rate"`
	RescueRate          float64         `json:"rescue_rate"`
	AverageDeliveryTime time.Duration   `json:"average_delivery_time"`
	TopSenders          []AccountVolume `json:"top_senders"`
	TopReceivers        []AccountVolume `json:"top_receivers"`
}

// Ratio divides part by whole, returning 0 when the denominator is 0.
// Every rate in this package is computed through this guard.
func Ratio(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}
