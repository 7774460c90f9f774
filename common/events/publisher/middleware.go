package publisher

import (
	"context"
)

// WithRunID attributes every published event with the id of the migration
// run that produced it, so downstream consumers can tell replayed runs
// apart.
func WithRunID(runID string) PublishMiddleware {
	return func(next PublishEventFunc) PublishEventFunc {
		return func(ctx context.Context, eventType string, metadata map[string]string, message string) error {
			if metadata == nil {
				metadata = map[string]string{}
			}
			metadata["run-id"] = runID

			return next(ctx, eventType, metadata, message)
		}
	}
}
