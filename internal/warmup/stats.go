package warmup

import (
	"context"
	"fmt"

	"github.com/emailmax/warmup/internal/model"
)

// topAccountLimit bounds the top-senders and top-receivers rankings.
const topAccountLimit = 5

// NetworkStatistics summarizes the whole interaction network from the
// persisted records. Lifecycle statuses are monotonic, so an interaction
// counted as read also counts as delivered.
func (o *Orchestrator) NetworkStatistics(ctx context.Context) (*model.NetworkStatistics, error) {
	counts, err := o.store.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("network statistics: %w", err)
	}

	var total int
	for _, n := range counts {
		total += n
	}
	succeeded := counts[model.StatusSent] + counts[model.StatusDelivered] +
		counts[model.StatusRead] + counts[model.StatusReplied] + counts[model.StatusRescued]
	delivered := counts[model.StatusDelivered] + counts[model.StatusRead] + counts[model.StatusReplied]
	read := counts[model.StatusRead] + counts[model.StatusReplied]

	stats := &model.NetworkStatistics{
		TotalAccounts:     len(o.directory.AccountIDs()),
		TotalInteractions: total,
		DeliveryRate:      model.Ratio(succeeded, total),
		OpenRate:          model.Ratio(read, delivered),
		ReplyRate:         model.Ratio(counts[model.StatusReplied], delivered),
		RescueRate:        model.Ratio(counts[model.StatusRescued], succeeded),
	}

	if stats.AverageDeliveryTime, err = o.store.AverageDeliveryTime(ctx); err != nil {
		return nil, fmt.Errorf("network statistics: %w", err)
	}
	if stats.TopSenders, err = o.store.TopSenders(ctx, topAccountLimit); err != nil {
		return nil, fmt.Errorf("network statistics: %w", err)
	}
	if stats.TopReceivers, err = o.store.TopReceivers(ctx, topAccountLimit); err != nil {
		return nil, fmt.Errorf("network statistics: %w", err)
	}
	return stats, nil
}
