package detection

import "github.com/pkg/errors"

var ErrUnknownSession = errors.New("unknown monitoring session")

func errInvalidConfig(err error) error {
	return errors.WithMessage(err, "validate monitor config")
}
