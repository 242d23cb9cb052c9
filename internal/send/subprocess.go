package send

import (
	"fmt"
	"io"
	"os/exec"

	"github.com/quantarax/vaultbridge/internal/vaulterr"
)

// runSubprocess starts argv and returns its stdout along with a close
// function that waits for exit and reports vaulterr.ErrChildProcessFailure
// on a nonzero exit code (spec §4.8 DataSource{Subprocess(argv)}).
func runSubprocess(argv []string) (io.Reader, func() error, error) {
	if len(argv) == 0 {
		return nil, nil, fmt.Errorf("send: subprocess source requires a non-empty argv")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}

	closeFn := func() error {
		if err := cmd.Wait(); err != nil {
			return fmt.Errorf("%w: %v", vaulterr.ErrChildProcessFailure, err)
		}
		return nil
	}
	return stdout, closeFn, nil
}
