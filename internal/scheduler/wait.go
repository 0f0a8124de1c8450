package scheduler

import (
	"github.com/Iron-Ham/kiln/internal/errors"
)

// Wait blocks until every result has resolved or one of them fails.
//
// The first error that is not a dependency failure is returned as soon as
// it arrives; work still in flight keeps running and its results are
// discarded. Dependency failures are only returned when nothing else
// failed, since they always follow the failure that caused them.
func Wait(results ...<-chan error) error {
	if len(results) == 0 {
		return nil
	}

	merged := make(chan error, len(results))
	for _, r := range results {
		go func(r <-chan error) { merged <- <-r }(r)
	}

	var depErr error
	for range results {
		err := <-merged
		if err == nil {
			continue
		}
		if errors.Is(err, errors.ErrDependencyFailed) {
			if depErr == nil {
				depErr = err
			}
			continue
		}
		return err
	}
	return depErr
}
