package corewasm

import "go.uber.org/multierr"

// appendErr aggregates tail onto errs using multierr rather than
// discarding all but the last failure, so every resource's close error
// is reported during teardown.
func appendErr(errs, tail error) error {
	return multierr.Append(errs, tail)
}
