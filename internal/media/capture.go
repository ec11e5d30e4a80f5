package media

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// classifyCaptureErr maps a device-layer failure onto the package's
// error sentinels. The capture stack surfaces OS and portal failures as
// opaque text, so classification is by message; anything unrecognized
// is a device failure.
func classifyCaptureErr(err error, screen bool) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, os.ErrPermission),
		strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "not authorized"),
		strings.Contains(msg, "access denied"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case screen && (strings.Contains(msg, "cancel") || strings.Contains(msg, "dismissed")):
		return fmt.Errorf("%w: %v", ErrUserCancelled, err)
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}
