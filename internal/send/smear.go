package send

import (
	"errors"
	"io"
	"os"

	"github.com/quantarax/vaultbridge/internal/vaulterr"
)

// smearError is the package-internal marker a DirWalker or file reader
// raises when it observes the filesystem changing out from under a
// send attempt; toFilesystemModifiedError converts it into the public
// vaulterr.FilesystemModifiedError at the attempt boundary, carrying
// the attempt count spec §4.8's retry loop needs.
type smearError struct {
	path  string
	cause error
}

func (e *smearError) Error() string { return "send: filesystem modified: " + e.path }
func (e *smearError) Unwrap() error { return e.cause }

func isSmearCandidate(err error) bool {
	if err == nil {
		return false
	}
	var se *smearError
	if errors.As(err, &se) {
		return true
	}
	return os.IsNotExist(err) || errors.Is(err, os.ErrInvalid) || errors.Is(err, io.ErrUnexpectedEOF)
}

// toFilesystemModifiedError wraps err as a vaulterr.FilesystemModifiedError
// for attempt, tagged with the offending path when known.
func toFilesystemModifiedError(attempt int, path string, err error) *vaulterr.FilesystemModifiedError {
	return &vaulterr.FilesystemModifiedError{Attempt: attempt, Path: path, Cause: err}
}

// checkShortRead raises a smear error if a regular file read returned
// fewer bytes than its stat-reported size promised (spec §4.8 "Smear
// recovery": "a short read vs declared size").
func checkShortRead(path string, declaredSize int64, gotSize int64) error {
	if gotSize < declaredSize {
		return &smearError{path: path, cause: io.ErrUnexpectedEOF}
	}
	return nil
}
