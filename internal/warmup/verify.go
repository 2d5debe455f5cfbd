package warmup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/emailmax/warmup/internal/model"
	"github.com/emailmax/warmup/internal/store"
	"github.com/emailmax/warmup/internal/transport"
)

const inboxFolder = "INBOX"

// VerifyDelivery searches each receiver's inbox and spam folders for the
// message ids of interactions still marked sent, advancing the found
// ones to delivered. Returns how many were advanced; per-account errors
// are joined and do not stop the remaining accounts.
func (o *Orchestrator) VerifyDelivery(ctx context.Context) (int, error) {
	folders := append([]string{inboxFolder}, o.spamFolders...)
	return o.sweep(ctx, []model.InteractionStatus{model.StatusSent}, folders,
		func(ctx context.Context, mb transport.Mailbox, in *model.Interaction, msg *transport.Message, folder string) bool {
			return o.advance(ctx, in, model.StatusDelivered)
		})
}

// CheckReadStatus advances delivered interactions whose message carries
// the \Seen flag in the receiver's mailbox to read.
func (o *Orchestrator) CheckReadStatus(ctx context.Context) (int, error) {
	folders := append([]string{inboxFolder}, o.spamFolders...)
	return o.sweep(ctx, []model.InteractionStatus{model.StatusDelivered}, folders,
		func(ctx context.Context, mb transport.Mailbox, in *model.Interaction, msg *transport.Message, folder string) bool {
			if !msg.Seen() {
				return false
			}
			return o.advance(ctx, in, model.StatusRead)
		})
}

// RescueFromSpam looks for sent or delivered interactions whose message
// landed in a spam folder, moves the message back to the inbox, and
// marks the interaction rescued.
func (o *Orchestrator) RescueFromSpam(ctx context.Context) (int, error) {
	statuses := []model.InteractionStatus{model.StatusSent, model.StatusDelivered}
	return o.sweep(ctx, statuses, o.spamFolders,
		func(ctx context.Context, mb transport.Mailbox, in *model.Interaction, msg *transport.Message, folder string) bool {
			if err := mb.Move(ctx, msg.UID, inboxFolder); err != nil {
				slog.Warn("rescue: moving message failed",
					"interaction", in.ID, "folder", folder, "error", err)
				return false
			}
			slog.Info("rescue: message moved to inbox",
				"interaction", in.ID, "receiver", in.ReceiverID, "folder", folder)
			return o.advance(ctx, in, model.StatusRescued)
		})
}

// MarkReplied correlates an observed reply (its In-Reply-To header)
// onto the interaction whose message id it references. Observing a
// reply implies the receiver saw the message, so missing delivered and
// read transitions are filled in on the way to replied. Returns whether
// any interaction was advanced.
func (o *Orchestrator) MarkReplied(ctx context.Context, inReplyTo string) (bool, error) {
	id := transport.CanonicalMessageID(inReplyTo)
	if id == "" {
		return false, nil
	}

	matches, err := o.store.GetInteractions(ctx, store.InteractionFilter{MessageID: &id})
	if err != nil {
		return false, fmt.Errorf("looking up reply target %s: %w", id, err)
	}

	var advanced bool
	for i := range matches {
		in := &matches[i]
		for in.Status != model.StatusReplied {
			var next model.InteractionStatus
			switch in.Status {
			case model.StatusSent:
				next = model.StatusDelivered
			case model.StatusDelivered:
				next = model.StatusRead
			case model.StatusRead:
				next = model.StatusReplied
			}
			if next == "" || !o.advance(ctx, in, next) {
				break
			}
			advanced = true
		}
	}
	return advanced, nil
}

// CleanupOldInteractions deletes interactions created more than
// maxAgeDays ago, regardless of status.
func (o *Orchestrator) CleanupOldInteractions(ctx context.Context, maxAgeDays int) (int64, error) {
	if maxAgeDays <= 0 {
		return 0, fmt.Errorf("cleanup: max age must be positive, got %d days", maxAgeDays)
	}
	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	removed, err := o.store.DeleteInteractionsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	if removed > 0 {
		slog.Info("cleanup: old interactions removed", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}

// visitFunc inspects one located message and reports whether the
// interaction was advanced.
type visitFunc func(ctx context.Context, mb transport.Mailbox, in *model.Interaction, msg *transport.Message, folder string) bool

// sweep is the shared verification walk: load interactions in the given
// statuses, group them by receiver, and for each receiver open one
// pooled mailbox session and look each message id up folder by folder.
// A failing account is skipped; its error joins the returned error.
func (o *Orchestrator) sweep(ctx context.Context, statuses []model.InteractionStatus, folders []string, visit visitFunc) (int, error) {
	interactions, err := o.store.GetInteractions(ctx, store.InteractionFilter{Statuses: statuses})
	if err != nil {
		return 0, fmt.Errorf("listing interactions: %w", err)
	}
	if len(interactions) == 0 {
		return 0, nil
	}

	byReceiver := make(map[string][]model.Interaction)
	for _, in := range interactions {
		byReceiver[in.ReceiverID] = append(byReceiver[in.ReceiverID], in)
	}

	var updated int
	var errs []error
	for receiverID, batch := range byReceiver {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		n, err := o.sweepAccount(ctx, receiverID, batch, folders, visit)
		updated += n
		if err != nil {
			errs = append(errs, fmt.Errorf("account %s: %w", receiverID, err))
		}
	}
	return updated, errors.Join(errs...)
}

func (o *Orchestrator) sweepAccount(ctx context.Context, receiverID string, batch []model.Interaction, folders []string, visit visitFunc) (int, error) {
	creds, err := o.directory.GetCredentials(ctx, receiverID)
	if err != nil {
		return 0, err
	}
	lease, err := o.pool.AcquireMailbox(ctx, creds)
	if err != nil {
		return 0, err
	}

	var updated int
	for i := range batch {
		in := &batch[i]
		msg, folder, err := findMessage(ctx, lease.Mailbox, in.MessageID, folders)
		if err != nil {
			// The session is suspect after a protocol error; drop it.
			o.pool.Discard(lease)
			return updated, err
		}
		if msg == nil {
			continue
		}
		if visit(ctx, lease.Mailbox, in, msg, folder) {
			updated++
		}
	}

	o.pool.Release(lease)
	return updated, nil
}

// findMessage looks the message id up in each folder in order, returning
// the first hit and the folder it was found in. A folder that cannot be
// selected is skipped: accounts differ in which spam folders exist.
func findMessage(ctx context.Context, mb transport.Mailbox, messageID string, folders []string) (*transport.Message, string, error) {
	for _, folder := range folders {
		if err := mb.Select(ctx, folder); err != nil {
			if folder == inboxFolder {
				return nil, "", fmt.Errorf("selecting %s: %w", folder, err)
			}
			continue
		}
		msg, err := mb.FindMessageID(ctx, messageID)
		if err != nil {
			return nil, "", fmt.Errorf("searching %s: %w", folder, err)
		}
		if msg != nil {
			return msg, folder, nil
		}
	}
	return nil, "", nil
}
