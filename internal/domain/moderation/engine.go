package moderation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/salehop/salehop-api/internal/domain/reference"
	"github.com/salehop/salehop-api/internal/pkg/logger"
	"github.com/salehop/salehop-api/internal/pkg/safety"
	"github.com/salehop/salehop-api/internal/pkg/storage"
)

// Assessor classifies an image and applies the unsafe policy.
type Assessor interface {
	Assess(ctx context.Context, loc safety.Locator) (safety.Verdict, error)
}

// StrikeRecorder records a violation against a user, deduplicated by source.
type StrikeRecorder interface {
	AddStrikeFor(ctx context.Context, userID, source string) (int, error)
}

// Locker serialises work on one object. Acquire returns ErrLockHeld when
// another worker holds the key.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// SyncNotifier is told when a document reference could not be updated.
type SyncNotifier interface {
	NotifySyncMiss(ctx context.Context, miss SyncMiss)
}

// SyncMiss describes a reference left pointing at a pending path.
type SyncMiss struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// EngineDeps are the collaborators of an Engine. Rejections, Locker and
// Notifier are optional.
type EngineDeps struct {
	Store         storage.ObjectStore
	Assessor      Assessor
	References    reference.Repository
	Strikes       StrikeRecorder
	Rejections    RejectionLog
	Locker        Locker
	Notifier      SyncNotifier
	PublicBaseURL string
}

// Engine moves pending objects to their terminal state.
type Engine struct {
	store         storage.ObjectStore
	assessor      Assessor
	strikes       StrikeRecorder
	rejections    RejectionLog
	locker        Locker
	notifier      SyncNotifier
	dispatch      map[ContentKind]referenceOps
	publicBaseURL string
	newToken      func() string
}

// NewEngine creates an Engine
func NewEngine(deps EngineDeps) *Engine {
	return &Engine{
		store:         deps.Store,
		assessor:      deps.Assessor,
		strikes:       deps.Strikes,
		rejections:    deps.Rejections,
		locker:        deps.Locker,
		notifier:      deps.Notifier,
		dispatch:      dispatchTable(deps.References),
		publicBaseURL: deps.PublicBaseURL,
		newToken:      func() string { return uuid.New().String() },
	}
}

// Process classifies obj and rejects or approves it. An object that is no
// longer pending is acknowledged after its document reference is re-synced.
func (e *Engine) Process(ctx context.Context, obj *PendingObject) Outcome {
	ctx = logger.WithFields(ctx, map[string]string{
		"bucket": obj.Bucket,
		"key":    obj.Key,
		"kind":   obj.Kind.String(),
	})
	log := logger.FromContext(ctx)

	if e.locker != nil {
		release, err := e.locker.Acquire(ctx, obj.Source())
		switch {
		case errors.Is(err, ErrLockHeld):
			log.Info().Msg("Object is locked by another worker")
			return Retry(err)
		case err != nil:
			log.Warn().Err(err).Msg("Lock unavailable, processing without it")
		default:
			defer release()
		}
	}

	info, err := e.resolve(ctx, obj)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read pending object")
		return Retry(err)
	}
	if info == nil {
		e.replay(ctx, obj)
		return logOutcome(log, Ack(ResolutionAlreadyResolved))
	}

	if obj.ContentType == "" {
		obj.ContentType = info.ContentType
	}
	obj.applyMetadata(info.Metadata)

	verdict, err := e.assessor.Assess(ctx, safety.Locator{Bucket: obj.Bucket, Key: obj.Key})
	if err != nil {
		log.Error().Err(err).Msg("Classification failed")
		return Retry(fmt.Errorf("%w: %v", ErrClassificationFailure, err))
	}

	if verdict.Unsafe {
		return logOutcome(log, e.reject(ctx, obj, verdict))
	}
	return logOutcome(log, e.approve(ctx, obj, info))
}

// resolve returns the pending object's metadata, or nil if it is gone.
func (e *Engine) resolve(ctx context.Context, obj *PendingObject) (*storage.ObjectInfo, error) {
	if obj.absent {
		return nil, nil
	}
	if obj.info != nil {
		return obj.info, nil
	}

	info, err := e.store.GetMetadata(ctx, obj.Bucket, obj.Key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		obj.absent = true
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get metadata: %v", ErrStoreOperation, err)
	}
	obj.info = info
	return info, nil
}

func (e *Engine) reject(ctx context.Context, obj *PendingObject, verdict safety.Verdict) Outcome {
	log := logger.FromContext(ctx)

	// Recorded before the delete so a crash in between still leaves evidence.
	if e.rejections != nil {
		if err := e.rejections.RecordRejection(ctx, obj.Bucket, obj.Key); err != nil {
			log.Warn().Err(err).Msg("Failed to record rejection")
		}
	}

	if err := e.store.Delete(ctx, obj.Bucket, obj.Key); err != nil {
		log.Error().Err(err).Msg("Failed to delete unsafe object")
		return Retry(fmt.Errorf("%w: delete: %v", ErrStoreOperation, err))
	}

	categories := make([]string, 0, len(verdict.Triggered))
	for _, c := range verdict.Triggered {
		categories = append(categories, string(c))
	}
	log.Info().Strs("categories", categories).Msg("Unsafe object deleted")

	e.syncReject(ctx, obj)

	if obj.OwnerID != "" && e.strikes != nil {
		if _, err := e.strikes.AddStrikeFor(ctx, obj.OwnerID, obj.Source()); err != nil {
			log.Error().Err(err).Str("owner_id", obj.OwnerID).Msg("Failed to record strike")
		}
	}

	return Ack(ResolutionRejected)
}

func (e *Engine) approve(ctx context.Context, obj *PendingObject, info *storage.ObjectInfo) Outcome {
	log := logger.FromContext(ctx)

	finalKey := obj.FinalKey()

	// A racing delivery may already have promoted a copy; keep its token so
	// both deliveries hand out the same URL.
	token, err := e.finalToken(ctx, obj.Bucket, finalKey)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read final object")
		return Retry(fmt.Errorf("%w: get final metadata: %v", ErrStoreOperation, err))
	}
	if token == "" {
		token = e.newToken()
	}

	metadata := make(map[string]string, len(info.Metadata)+2)
	for k, v := range info.Metadata {
		metadata[k] = v
	}
	metadata[MetaModeration] = ModerationApproved
	metadata[MetaDownloadToken] = token

	err = e.store.Copy(ctx, obj.Bucket, obj.Key, obj.Bucket, finalKey, storage.CopyOptions{
		ContentType: obj.ContentType,
		Metadata:    metadata,
	})
	if errors.Is(err, storage.ErrObjectNotFound) {
		log.Info().Msg("Pending object vanished before copy")
		e.replay(ctx, obj)
		return Ack(ResolutionAlreadyResolved)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to copy approved object")
		return Retry(fmt.Errorf("%w: copy: %v", ErrStoreOperation, err))
	}

	if err := e.store.Delete(ctx, obj.Bucket, obj.Key); err != nil {
		log.Error().Err(err).Msg("Failed to delete pending object after copy")
		return Retry(fmt.Errorf("%w: delete pending: %v", ErrStoreOperation, err))
	}

	// With the pending object gone no later copy can land, so the stored
	// token is final. It differs from ours if another delivery copied after us.
	stored, err := e.finalToken(ctx, obj.Bucket, finalKey)
	if err != nil || stored == "" {
		log.Warn().Err(err).Msg("Could not confirm download token, leaving reference for reconciler")
		e.notify(ctx, obj, "download token not confirmed")
		return Ack(ResolutionApproved)
	}

	e.syncApprove(ctx, obj, storage.PublicURL(e.publicBaseURL, obj.Bucket, finalKey, stored))

	return Ack(ResolutionApproved)
}

// finalToken returns the download token of an approved final object, or ""
// when there is none.
func (e *Engine) finalToken(ctx context.Context, bucket, finalKey string) (string, error) {
	info, err := e.store.GetMetadata(ctx, bucket, finalKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	meta := storage.NormalizeMetadata(info.Metadata)
	if meta[MetaModeration] != ModerationApproved {
		return "", nil
	}
	return meta[MetaDownloadToken], nil
}

// replay re-applies the reference update for an object that has already
// left pending/. An approved final object means approve, anything else
// means reject.
func (e *Engine) replay(ctx context.Context, obj *PendingObject) {
	log := logger.FromContext(ctx)
	finalKey := obj.FinalKey()

	info, err := e.store.GetMetadata(ctx, obj.Bucket, finalKey)
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		log.Debug().Msg("Replaying rejection")
		e.syncReject(ctx, obj)
	case err != nil:
		log.Warn().Err(err).Msg("Could not read final object, leaving reference for reconciler")
		e.notify(ctx, obj, "final object lookup failed")
	default:
		meta := storage.NormalizeMetadata(info.Metadata)
		token := meta[MetaDownloadToken]
		if meta[MetaModeration] != ModerationApproved {
			log.Debug().Msg("Final object is not approved, replaying rejection")
			e.syncReject(ctx, obj)
			return
		}
		if token == "" {
			log.Warn().Msg("Approved object has no download token, leaving reference for reconciler")
			e.notify(ctx, obj, "approved object without token")
			return
		}
		obj.applyMetadata(meta)
		log.Debug().Msg("Replaying approval")
		e.syncApprove(ctx, obj, storage.PublicURL(e.publicBaseURL, obj.Bucket, finalKey, token))
	}
}

func (e *Engine) syncReject(ctx context.Context, obj *PendingObject) {
	ops, ok := e.dispatch[obj.Kind]
	if !ok {
		e.syncMiss(ctx, obj)
		return
	}
	if err := ops.reject(ctx, obj.Key); err != nil {
		e.syncFailed(ctx, obj, err)
	}
}

func (e *Engine) syncApprove(ctx context.Context, obj *PendingObject, url string) {
	ops, ok := e.dispatch[obj.Kind]
	if !ok {
		e.syncMiss(ctx, obj)
		return
	}
	if err := ops.approve(ctx, obj.Key, url); err != nil {
		e.syncFailed(ctx, obj, err)
	}
}

func (e *Engine) syncMiss(ctx context.Context, obj *PendingObject) {
	logger.FromContext(ctx).Warn().
		Str("owner_id", obj.OwnerID).
		Msg("Unknown content kind, reference not updated")
	e.notify(ctx, obj, "unknown content kind")
}

func (e *Engine) syncFailed(ctx context.Context, obj *PendingObject, err error) {
	logger.FromContext(ctx).Error().
		Err(fmt.Errorf("%w: %v", ErrReferenceSync, err)).
		Msg("Failed to update document reference")
	e.notify(ctx, obj, err.Error())
}

func (e *Engine) notify(ctx context.Context, obj *PendingObject, reason string) {
	if e.notifier == nil {
		return
	}
	e.notifier.NotifySyncMiss(ctx, SyncMiss{
		Bucket: obj.Bucket,
		Key:    obj.Key,
		Kind:   obj.Kind.String(),
		Reason: reason,
	})
}

func logOutcome(log *zerolog.Logger, o Outcome) Outcome {
	log.Info().Str("outcome", string(o.Resolution)).Msg("Moderation event handled")
	return o
}
