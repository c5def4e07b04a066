package semver

import (
	"fmt"

	"github.com/pkg/errors"
)

type InvalidVersionError struct {
	Version string
	Err     error
}

func (invalidVersion *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid version format: %q", invalidVersion.Version)
}

func (invalidVersion *InvalidVersionError) Is(target error) bool {
	var t *InvalidVersionError
	ok := errors.As(target, &t)
	if !ok {
		return false
	}
	return t.Version == invalidVersion.Version
}

func (invalidVersion *InvalidVersionError) Unwrap() error {
	return invalidVersion.Err
}
