package override

import (
	"context"

	"github.com/sentrygrid/twinctl/internal/model"
	"github.com/sentrygrid/twinctl/internal/retry"
	"github.com/sentrygrid/twinctl/internal/twinerr"
)

// PutWithRetry resolves a version conflict by re-reading the current version
// and retrying the write, up to the bounded backoff policy in internal/retry.
// build receives the latest known version (0 if the override doesn't exist
// yet) and returns the Override to write for that attempt, letting the
// caller keep its own fields (value, reason, ...) while only the version
// changes between attempts.
func PutWithRetry(ctx context.Context, store Store, targetId string, category model.OverrideCategory, build func(version int64) model.Override) error {
	cfg := retry.DefaultConflictRetry()
	return retry.Do(ctx, cfg, twinerr.IsConflict, func() error {
		var version int64
		if existing, err := store.Get(ctx, targetId, category); err == nil && existing != nil {
			version = existing.Version
		}
		return store.Put(ctx, build(version))
	})
}
