package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/salehop/salehop-api/internal/domain/reference"
	"github.com/salehop/salehop-api/internal/pkg/storage"
)

// ReconcilerConfig configures a Reconciler.
type ReconcilerConfig struct {
	Store      storage.ObjectStore
	References reference.Repository
	// Rejections confirms that a missing object was deleted as unsafe. A
	// reference whose object is absent and unrecorded is left alone.
	Rejections    RejectionLog
	Bucket        string
	PublicBaseURL string
	// Grace skips references updated more recently than this, leaving them
	// to in-flight event deliveries.
	Grace time.Duration
	Batch int
}

// ReconcileStats summarises one sweep.
type ReconcileStats struct {
	Scanned  int
	Approved int
	Cleared  int
	Skipped  int
	Failed   int
}

// Reconciler repairs document references left pointing at pending paths
// after the object itself was resolved.
type Reconciler struct {
	store         storage.ObjectStore
	refs          reference.Repository
	rejections    RejectionLog
	dispatch      map[ContentKind]referenceOps
	bucket        string
	publicBaseURL string
	grace         time.Duration
	batch         int
	now           func() time.Time
	newToken      func() string
}

func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	return &Reconciler{
		store:         cfg.Store,
		refs:          cfg.References,
		rejections:    cfg.Rejections,
		dispatch:      dispatchTable(cfg.References),
		bucket:        cfg.Bucket,
		publicBaseURL: cfg.PublicBaseURL,
		grace:         cfg.Grace,
		batch:         cfg.Batch,
		now:           time.Now,
		newToken:      func() string { return uuid.New().String() },
	}
}

// RunOnce sweeps every stale pending reference, a batch at a time. Skipped
// references do not hide later ones.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats

	cutoff := r.now().Add(-r.grace)
	var cursor reference.Cursor
	for {
		refs, err := r.refs.ListPending(ctx, cutoff, cursor, r.batch)
		if err != nil {
			return stats, err
		}

		for _, ref := range refs {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			r.sweep(ctx, ref, &stats)
		}

		if len(refs) < r.batch {
			return stats, nil
		}
		next := refs[len(refs)-1].Cursor()
		if !cursor.Before(next) {
			return stats, fmt.Errorf("reference listing did not advance past %s", next.Path)
		}
		cursor = next
	}
}

func (r *Reconciler) sweep(ctx context.Context, ref reference.PendingReference, stats *ReconcileStats) {
	stats.Scanned++

	action, err := r.reconcile(ctx, ref)
	if err != nil {
		stats.Failed++
		log.Error().
			Err(err).
			Str("target", string(ref.Target)).
			Str("document_id", ref.DocumentID).
			Str("key", ref.Path).
			Msg("Failed to reconcile reference")
		return
	}

	switch action {
	case ResolutionApproved:
		stats.Approved++
	case ResolutionRejected:
		stats.Cleared++
	default:
		stats.Skipped++
	}
}

func (r *Reconciler) reconcile(ctx context.Context, ref reference.PendingReference) (Resolution, error) {
	ops, ok := r.dispatch[kindForTarget(ref.Target)]
	if !ok {
		return ResolutionIgnored, fmt.Errorf("unknown reference target %q", ref.Target)
	}

	_, err := r.store.GetMetadata(ctx, r.bucket, ref.Path)
	if err == nil {
		// Still pending: the event delivery owns it.
		return ResolutionIgnored, nil
	}
	if !errors.Is(err, storage.ErrObjectNotFound) {
		return ResolutionIgnored, fmt.Errorf("%w: pending lookup: %v", ErrStoreOperation, err)
	}

	obj := &PendingObject{Bucket: r.bucket, Key: ref.Path}
	finalKey := obj.FinalKey()

	info, err := r.store.GetMetadata(ctx, r.bucket, finalKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return r.clearIfRejected(ctx, ops, ref)
	}
	if err != nil {
		return ResolutionIgnored, fmt.Errorf("%w: final lookup: %v", ErrStoreOperation, err)
	}

	meta := storage.NormalizeMetadata(info.Metadata)
	if meta[MetaModeration] != ModerationApproved {
		return ResolutionRejected, ops.reject(ctx, ref.Path)
	}

	token := meta[MetaDownloadToken]
	if token == "" {
		token = r.newToken()
		meta[MetaDownloadToken] = token
		if err := r.store.UpdateMetadata(ctx, r.bucket, finalKey, meta); err != nil {
			return ResolutionIgnored, fmt.Errorf("%w: store token: %v", ErrStoreOperation, err)
		}
	}

	url := storage.PublicURL(r.publicBaseURL, r.bucket, finalKey, token)
	return ResolutionApproved, ops.approve(ctx, ref.Path, url)
}

// clearIfRejected clears a reference whose object is gone only when the
// object is known to have been rejected from this bucket. Anything else may
// live in another bucket and is left alone.
func (r *Reconciler) clearIfRejected(ctx context.Context, ops referenceOps, ref reference.PendingReference) (Resolution, error) {
	if r.rejections == nil {
		return ResolutionIgnored, nil
	}
	rejected, err := r.rejections.WasRejected(ctx, r.bucket, ref.Path)
	if err != nil {
		return ResolutionIgnored, fmt.Errorf("%w: rejection lookup: %v", ErrStoreOperation, err)
	}
	if !rejected {
		log.Debug().
			Str("bucket", r.bucket).
			Str("key", ref.Path).
			Msg("Object not found in bucket, leaving reference")
		return ResolutionIgnored, nil
	}
	return ResolutionRejected, ops.reject(ctx, ref.Path)
}

// Run sweeps every interval and whenever wake fires, until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration, wake <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Reconciler stopped")
			return
		case <-wake:
		case <-ticker.C:
		}

		start := time.Now()
		stats, err := r.RunOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Reconcile sweep failed")
			continue
		}
		if stats.Scanned == 0 {
			log.Debug().Msg("Idle: no stale pending references")
			continue
		}

		log.Info().
			Int("scanned", stats.Scanned).
			Int("approved", stats.Approved).
			Int("cleared", stats.Cleared).
			Int("skipped", stats.Skipped).
			Int("failed", stats.Failed).
			Dur("took", time.Since(start)).
			Msg("Reconcile sweep done")
	}
}
