package broker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dplaneos/dplaned/internal/shared"
	"github.com/dplaneos/dplaned/internal/whitelist"
)

// ParamType is the closed set of parameter kinds a command may declare.
// Every caller-supplied value is dispatched through exactly one typed
// validator before it is placed into an argv.
type ParamType int

const (
	ParamPoolName ParamType = iota
	ParamDatasetName
	ParamSnapshotName
	ParamDiskPath
	ParamContainerName
	ParamSandboxedPath
	ParamTestType
	ParamZFSPropertyKV
	ParamVdevSpec
	ParamFlag
	ParamBoundedString
)

// ParamSpec declares one named, typed parameter of a command key.
type ParamSpec struct {
	Name     string
	Type     ParamType
	Optional bool
}

var (
	containerName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.\-]*$`)
	propertyKV    = regexp.MustCompile(`^[a-zA-Z0-9_\-\./:]+=[a-zA-Z0-9_\-\.:/]+$`)
	flagValue     = regexp.MustCompile(`^-[a-zA-Z]$`)
	boundedString = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]{1,64}$`)
	testType      = regexp.MustCompile(`^(short|long|conveyance)$`)
	raidType      = regexp.MustCompile(`^(mirror|raidz|raidz1|raidz2|raidz3)$`)
)

// renderParam validates a raw value against its declared type and returns the
// argv tokens it contributes. Most types contribute exactly one token; a vdev
// spec expands into an optional raid-type token plus one token per device.
func renderParam(t ParamType, value string) ([]string, error) {
	switch t {
	case ParamPoolName:
		if err := whitelist.ValidatePoolName(value); err != nil {
			return nil, err
		}
	case ParamDatasetName:
		if err := whitelist.ValidateDatasetName(value); err != nil {
			return nil, err
		}
	case ParamSnapshotName:
		if err := whitelist.ValidateSnapshotName(value); err != nil {
			return nil, err
		}
	case ParamDiskPath:
		if err := whitelist.ValidateDevicePath(value); err != nil {
			return nil, err
		}
	case ParamSandboxedPath:
		if err := whitelist.ValidateMountPoint(value); err != nil {
			return nil, err
		}
	case ParamContainerName:
		if !containerName.MatchString(value) {
			return nil, fmt.Errorf("%w: invalid container name %q", shared.ErrValidation, value)
		}
	case ParamTestType:
		if !testType.MatchString(value) {
			return nil, fmt.Errorf("%w: invalid self-test type %q", shared.ErrValidation, value)
		}
	case ParamZFSPropertyKV:
		if !propertyKV.MatchString(value) {
			return nil, fmt.Errorf("%w: invalid property assignment %q", shared.ErrValidation, value)
		}
	case ParamFlag:
		if !flagValue.MatchString(value) {
			return nil, fmt.Errorf("%w: invalid flag %q", shared.ErrValidation, value)
		}
	case ParamBoundedString:
		if !boundedString.MatchString(value) {
			return nil, fmt.Errorf("%w: invalid value %q", shared.ErrValidation, value)
		}
	case ParamVdevSpec:
		return renderVdevSpec(value)
	default:
		return nil, fmt.Errorf("%w: unknown parameter type %d", shared.ErrValidation, t)
	}
	return []string{value}, nil
}

// renderVdevSpec splits a vdev specification ("mirror /dev/sdb /dev/sdc" or a
// bare device list) into tokens, validating the optional raid-type token and
// every device path individually.
func renderVdevSpec(value string) ([]string, error) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty vdev specification", shared.ErrValidation)
	}
	tokens := make([]string, 0, len(fields))
	start := 0
	if raidType.MatchString(fields[0]) {
		tokens = append(tokens, fields[0])
		start = 1
	}
	if start >= len(fields) {
		return nil, fmt.Errorf("%w: vdev specification needs at least one device", shared.ErrValidation)
	}
	for _, dev := range fields[start:] {
		if err := whitelist.ValidateDevicePath(dev); err != nil {
			return nil, err
		}
		tokens = append(tokens, dev)
	}
	return tokens, nil
}
