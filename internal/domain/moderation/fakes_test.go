package moderation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/salehop/salehop-api/internal/domain/reference"
	"github.com/salehop/salehop-api/internal/pkg/safety"
	"github.com/salehop/salehop-api/internal/pkg/storage"
)

// countingStore wraps MemoryStore, counting calls and injecting failures.
type countingStore struct {
	*storage.MemoryStore

	mu       sync.Mutex
	calls    map[string]int
	failures map[string]error
}

func newCountingStore() *countingStore {
	return &countingStore{
		MemoryStore: storage.NewMemoryStore(),
		calls:       map[string]int{},
		failures:    map[string]error{},
	}
}

func (s *countingStore) record(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	return s.failures[op]
}

func (s *countingStore) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *countingStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *countingStore) fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *countingStore) GetMetadata(ctx context.Context, bucket, key string) (*storage.ObjectInfo, error) {
	if err := s.record("get"); err != nil {
		return nil, err
	}
	return s.MemoryStore.GetMetadata(ctx, bucket, key)
}

func (s *countingStore) Delete(ctx context.Context, bucket, key string) error {
	if err := s.record("delete"); err != nil {
		return err
	}
	return s.MemoryStore.Delete(ctx, bucket, key)
}

func (s *countingStore) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string, opts storage.CopyOptions) error {
	if err := s.record("copy"); err != nil {
		return err
	}
	return s.MemoryStore.Copy(ctx, srcBucket, srcKey, dstBucket, dstKey, opts)
}

func (s *countingStore) UpdateMetadata(ctx context.Context, bucket, key string, metadata map[string]string) error {
	if err := s.record("update"); err != nil {
		return err
	}
	return s.MemoryStore.UpdateMetadata(ctx, bucket, key, metadata)
}

// docStore is an in-memory reference.Repository with the same matching
// semantics as the PostgreSQL one: a field is updated only while it still
// equals the pending path.
type docStore struct {
	mu       sync.Mutex
	covers   map[string]*string   // sale id -> cover_photo
	items    map[string][]*string // sale id -> item photos
	profiles map[string]*string   // profile id -> photo_url
	calls    int
	updates  int
	err      error
}

func newDocStore() *docStore {
	return &docStore{
		covers:   map[string]*string{},
		items:    map[string][]*string{},
		profiles: map[string]*string{},
	}
}

func ptr(s string) *string { return &s }

func (d *docStore) set(field *string, pendingPath string, value *string) (*string, bool) {
	if field != nil && *field == pendingPath {
		d.updates++
		return value, true
	}
	return field, false
}

func (d *docStore) begin() error {
	d.calls++
	return d.err
}

func (d *docStore) RejectSaleCover(_ context.Context, p string) error {
	return d.updateCovers(p, nil)
}

func (d *docStore) ApproveSaleCover(_ context.Context, p, url string) error {
	return d.updateCovers(p, &url)
}

func (d *docStore) updateCovers(p string, value *string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin(); err != nil {
		return err
	}
	for id, f := range d.covers {
		d.covers[id], _ = d.set(f, p, value)
	}
	return nil
}

func (d *docStore) RejectItemImage(_ context.Context, p string) error {
	return d.updateItems(p, nil)
}

func (d *docStore) ApproveItemImage(_ context.Context, p, url string) error {
	return d.updateItems(p, &url)
}

func (d *docStore) updateItems(p string, value *string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin(); err != nil {
		return err
	}
	for _, photos := range d.items {
		for i, f := range photos {
			photos[i], _ = d.set(f, p, value)
		}
	}
	return nil
}

func (d *docStore) RejectProfilePhoto(_ context.Context, p string) error {
	return d.updateProfiles(p, nil)
}

func (d *docStore) ApproveProfilePhoto(_ context.Context, p, url string) error {
	return d.updateProfiles(p, &url)
}

func (d *docStore) updateProfiles(p string, value *string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin(); err != nil {
		return err
	}
	for id, f := range d.profiles {
		d.profiles[id], _ = d.set(f, p, value)
	}
	return nil
}

func (d *docStore) ListPending(_ context.Context, _ time.Time, after reference.Cursor, limit int) ([]reference.PendingReference, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.begin(); err != nil {
		return nil, err
	}

	var out []reference.PendingReference
	add := func(t reference.Target, id string, f *string) {
		if f == nil || !strings.HasPrefix(*f, PendingPrefix) {
			return
		}
		ref := reference.PendingReference{Target: t, DocumentID: id, Path: *f}
		if after.Before(ref.Cursor()) {
			out = append(out, ref)
		}
	}
	for id, f := range d.covers {
		add(reference.TargetSaleCover, id, f)
	}
	for id, photos := range d.items {
		for _, f := range photos {
			add(reference.TargetSaleItem, id, f)
		}
	}
	for id, f := range d.profiles {
		add(reference.TargetProfilePhoto, id, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cursor().Before(out[j].Cursor()) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *docStore) item(sale string, i int) *string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.items[sale][i]
}

func (d *docStore) stats() (calls, updates int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls, d.updates
}

// rejectionBook is an in-memory RejectionLog.
type rejectionBook struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func newRejectionBook() *rejectionBook {
	return &rejectionBook{keys: map[string]bool{}}
}

func (b *rejectionBook) RecordRejection(_ context.Context, bucket, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.keys[bucket+"/"+key] = true
	return nil
}

func (b *rejectionBook) WasRejected(_ context.Context, bucket, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.keys[bucket+"/"+key], b.err
}

// hookStore runs callbacks around Copy so tests can interleave deliveries.
type hookStore struct {
	*countingStore
	beforeCopy func()
	afterCopy  func()
}

func (h *hookStore) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string, opts storage.CopyOptions) error {
	if h.beforeCopy != nil {
		h.beforeCopy()
	}
	err := h.countingStore.Copy(ctx, srcBucket, srcKey, dstBucket, dstKey, opts)
	if h.afterCopy != nil {
		h.afterCopy()
	}
	return err
}

// strikeBook records strikes per user, deduplicated by source.
type strikeBook struct {
	mu      sync.Mutex
	counts  map[string]int
	sources map[string]bool
	err     error
}

func newStrikeBook() *strikeBook {
	return &strikeBook{counts: map[string]int{}, sources: map[string]bool{}}
}

func (b *strikeBook) AddStrikeFor(_ context.Context, userID, source string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return 0, b.err
	}
	if !b.sources[userID+"|"+source] {
		b.sources[userID+"|"+source] = true
		b.counts[userID]++
	}
	return b.counts[userID], nil
}

func (b *strikeBook) count(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[userID]
}

// countingClassifier returns a fixed result and counts calls.
type countingClassifier struct {
	mu     sync.Mutex
	result safety.Result
	err    error
	calls  int
}

func (c *countingClassifier) Classify(context.Context, safety.Locator) (safety.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.result, c.err
}

func (c *countingClassifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

var (
	safeResult   = safety.Result{Adult: safety.Unlikely, Violence: safety.VeryUnlikely, Racy: safety.Possible}
	unsafeResult = safety.Result{Adult: safety.Likely}
	errBoom      = errors.New("boom")
)

// fixture wires an engine around in-memory collaborators.
type fixture struct {
	store      *countingStore
	docs       *docStore
	strikes    *strikeBook
	rejections *rejectionBook
	classifier *countingClassifier
	notes      *notes
	engine     *Engine
	pipeline   *Pipeline
}

type notes struct {
	mu     sync.Mutex
	misses []SyncMiss
}

func (n *notes) NotifySyncMiss(_ context.Context, m SyncMiss) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.misses = append(n.misses, m)
}

func (n *notes) all() []SyncMiss {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]SyncMiss(nil), n.misses...)
}

const testBaseURL = "https://cdn.salehop.app"

func newFixture(result safety.Result) *fixture {
	f := &fixture{
		store:      newCountingStore(),
		docs:       newDocStore(),
		strikes:    newStrikeBook(),
		rejections: newRejectionBook(),
		classifier: &countingClassifier{result: result},
		notes:      &notes{},
	}
	f.engine = NewEngine(EngineDeps{
		Store:         f.store,
		Assessor:      safety.NewChecker(f.classifier, safety.DefaultPolicy()),
		References:    f.docs,
		Strikes:       f.strikes,
		Rejections:    f.rejections,
		Notifier:      f.notes,
		PublicBaseURL: testBaseURL,
	})
	tokens := 0
	f.engine.newToken = func() string {
		tokens++
		return "tok-" + string(rune('0'+tokens))
	}
	f.pipeline = NewPipeline(NewNormalizer(f.store), f.engine, time.Minute)
	return f
}

type assessorFunc func(ctx context.Context, loc safety.Locator) (safety.Verdict, error)

func (f assessorFunc) Assess(ctx context.Context, loc safety.Locator) (safety.Verdict, error) {
	return f(ctx, loc)
}

func storageApproved(token string) storage.CopyOptions {
	return storage.CopyOptions{
		ContentType: "image/jpeg",
		Metadata:    map[string]string{MetaModeration: ModerationApproved, MetaDownloadToken: token},
	}
}
