package recorder

import (
	"context"
	"errors"
	"time"
)

// AutoSplit splits the running recording every interval until ctx is done.
// Ticks while idle or before both formats are known are skipped.
func (r *Recorder) AutoSplit(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.State() != StateRecording {
				continue
			}
			if _, err := r.Split(); err != nil && !errors.Is(err, ErrSplitNotReady) && !errors.Is(err, ErrNotRecording) {
				r.obs.Warn(module, "Auto split failed: %v", err)
			}
		}
	}
}
