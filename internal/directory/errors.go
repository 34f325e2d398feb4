package directory

import "errors"

// Domain errors for the directory package.
//
//	if errors.Is(err, directory.ErrStoreUnavailable) {
//	    // tell the user the command failed; nothing was changed
//	}
var (
	// ErrStoreUnavailable wraps every backend failure and every stored value
	// that cannot be decoded.
	ErrStoreUnavailable = errors.New("directory: store unavailable")

	// ErrInvalidIdentifier is returned for an empty imei, phone or message id.
	ErrInvalidIdentifier = errors.New("directory: invalid identifier")
)
