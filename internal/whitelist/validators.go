package whitelist

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dplaneos/dplaned/internal/shared"
)

// ValidatePoolName ensures pool names contain only safe characters.
// ZFS pool names: start with a letter, then alphanumerics, hyphens,
// underscores, dots. No spaces, no shell metacharacters. This MUST hold
// before any pool name is placed into an argv.
var validPoolName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]{0,254}$`)

func ValidatePoolName(name string) error {
	if !validPoolName.MatchString(name) {
		return fmt.Errorf("%w: invalid pool name %q (must start with a letter, alphanumeric, max 255 chars)",
			shared.ErrValidation, name)
	}
	return nil
}

var validDatasetComponent = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)

// ValidateDatasetName checks a slash-separated dataset path (pool/child/...).
// Every component is matched against a restricted character class.
func ValidateDatasetName(name string) error {
	if len(name) == 0 || len(name) > 255 {
		return fmt.Errorf("%w: invalid dataset name length", shared.ErrValidation)
	}
	for _, part := range strings.Split(name, "/") {
		if part == "." || part == ".." || !validDatasetComponent.MatchString(part) {
			return fmt.Errorf("%w: invalid characters in dataset component %q", shared.ErrValidation, part)
		}
	}
	return nil
}

// ValidateSnapshotName validates a full snapshot identifier (pool/dataset@snapname).
func ValidateSnapshotName(name string) error {
	parts := strings.SplitN(name, "@", 2)
	if len(parts) != 2 {
		return fmt.Errorf("%w: invalid snapshot name %q (must contain exactly one @)", shared.ErrValidation, name)
	}
	if err := ValidateDatasetName(parts[0]); err != nil {
		return err
	}
	if !validDatasetComponent.MatchString(parts[1]) {
		return fmt.Errorf("%w: invalid snapshot suffix %q", shared.ErrValidation, parts[1])
	}
	return nil
}

// ValidateDevicePath restricts device paths to /dev/sdX[N], /dev/srN and
// /dev/nvmeNnN[pN] forms only.
var validDevicePath = regexp.MustCompile(`^/dev/(sd[a-z][0-9]*|sr[0-9]+|nvme[0-9]+n[0-9]+(p[0-9]+)?)$`)

func ValidateDevicePath(path string) error {
	if !validDevicePath.MatchString(path) {
		return fmt.Errorf("%w: invalid device path %q (must be /dev/sdX, /dev/srN, or /dev/nvmeNnNpN)",
			shared.ErrValidation, path)
	}
	return nil
}

// ValidateMountPoint ensures mount points resolve under allow-listed roots.
var validMountPoint = regexp.MustCompile(`^/(mnt|media)/[a-zA-Z0-9_\-\.]+(/[a-zA-Z0-9_\-\.]+)*$`)

func ValidateMountPoint(path string) error {
	if strings.Contains(path, "..") || !validMountPoint.MatchString(path) {
		return fmt.Errorf("%w: invalid mount point %q (must be under /mnt/ or /media/)", shared.ErrValidation, path)
	}
	return nil
}

var sessionTokenPattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// IsValidSessionToken reports whether a token has the expected shape:
// alphanumeric and of reasonable length. Checked before the store is queried.
func IsValidSessionToken(token string) bool {
	if len(token) < 20 || len(token) > 100 {
		return false
	}
	return sessionTokenPattern.MatchString(token)
}

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`password=[^\s]+`),
	regexp.MustCompile(`token=[^\s]+`),
	regexp.MustCompile(`key=[^\s]+`),
}

var secretReplacements = []string{"password=***", "token=***", "key=***"}

// SanitizeOutput strips credential-shaped substrings from subprocess output
// before it is surfaced or logged anywhere.
func SanitizeOutput(output string) string {
	for i, pattern := range secretPatterns {
		output = pattern.ReplaceAllString(output, secretReplacements[i])
	}
	return output
}
