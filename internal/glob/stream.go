package glob

import (
	"context"

	"github.com/posixfs/posixfs/internal/backend"
)

// Stream runs Glob but delivers matches over a channel as soon as they are
// found, maintaining its own in-memory de-duplication set rather than the
// batch call's final sort.
// Closing the returned channel signals completion; a second channel
// carries the terminal error, if any.
func Stream(ctx context.Context, be backend.Backend, opts Options) (<-chan string, <-chan error) {
	out := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		err := walkMatches(ctx, be, opts, func(path string) bool {
			select {
			case out <- path:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil {
			errc <- err
		}
	}()

	return out, errc
}
