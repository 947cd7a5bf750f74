package configstore

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/adinject/placement"
	"github.com/hazyhaar/adinject/watch"
)

// Snapshot is a parsed, read-only set of configs. It is shared between
// concurrent render passes and must never be modified after Parse.
type Snapshot struct {
	Generation string
	LoadedAt   time.Time
	Ads        *placement.AdsConfig
	AMP        *placement.AmpConfig
	Prefill    *placement.PrefillConfig
	Fbia       *placement.FbiaConfig
	Connatix   placement.ConnatixConfig
}

// Parse builds a Snapshot from raw family blobs. Absent or malformed blobs
// yield empty configs.
func Parse(raw map[Family][]byte) *Snapshot {
	return &Snapshot{
		LoadedAt: time.Now().UTC(),
		Ads:      placement.ParseAdsConfig(raw[FamilyAds], raw[FamilyRefreshRates]),
		AMP:      placement.ParseAmpConfig(raw[FamilyAMP]),
		Prefill:  placement.ParsePrefillConfig(raw[FamilyPrefill]),
		Fbia:     placement.ParseFbiaConfig(raw[FamilyFbia]),
		Connatix: placement.ParseConnatixConfig(raw[FamilyConnatix]),
	}
}

// Empty returns a Snapshot with every config empty.
func Empty() *Snapshot { return Parse(nil) }

// Holder keeps the current Snapshot. Refresh replaces it wholesale, so
// readers holding an older pointer keep a consistent view.
type Holder struct {
	store  *Store
	logger *slog.Logger
	cur    atomic.Pointer[Snapshot]
}

// NewHolder returns a Holder that starts with an empty snapshot.
func NewHolder(store *Store, logger *slog.Logger) *Holder {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Holder{store: store, logger: logger}
	h.cur.Store(Empty())
	return h
}

// Current returns the active snapshot. It is never nil.
func (h *Holder) Current() *Snapshot { return h.cur.Load() }

// Set installs snap as the active snapshot.
func (h *Holder) Set(snap *Snapshot) {
	if snap == nil {
		snap = Empty()
	}
	h.cur.Store(snap)
}

// Refresh reloads every family from the store. On error the previous
// snapshot stays active.
func (h *Holder) Refresh(ctx context.Context) error {
	snap, err := h.store.Load(ctx)
	if err != nil {
		h.logger.Error("configstore: refresh failed", "error", err)
		return err
	}
	prev := h.cur.Swap(snap)
	if prev != nil && prev.Generation == snap.Generation {
		return nil
	}
	h.logger.Info("configstore: refreshed",
		"generation", snap.Generation,
		"ads_placements", snap.Ads.Len(),
		"ad_rules", len(snap.Ads.AdRules),
		"amp_placements", snap.AMP.Len(),
		"prefill_placements", snap.Prefill.Len(),
	)
	return nil
}

// Run polls the store every interval and refreshes the snapshot when a
// blob changed, so writes from another process sharing the database are
// picked up. It blocks until ctx is done.
func (h *Holder) Run(ctx context.Context, interval time.Duration) {
	w := watch.New(h.store.DB, watch.Options{
		Interval: interval,
		Detector: watch.MaxColumn("config_blobs", "updated_at"),
		Logger:   h.logger,
	})
	w.OnChange(ctx, h.Refresh)
}

// Get returns the stored blob of family.
func (h *Holder) Get(ctx context.Context, family Family) (Blob, error) {
	return h.store.Get(ctx, family)
}

// Put stores a blob and refreshes the active snapshot.
func (h *Holder) Put(ctx context.Context, family Family, raw []byte) (Blob, error) {
	b, err := h.store.Put(ctx, family, raw)
	if err != nil {
		return Blob{}, err
	}
	return b, h.Refresh(ctx)
}
