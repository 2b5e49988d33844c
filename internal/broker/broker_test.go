package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dplaneos/dplaned/internal/shared"
	"github.com/dplaneos/dplaned/internal/whitelist"
)

// fakeRunner records what would have been spawned instead of spawning it.
type fakeRunner struct {
	path     string
	args     []string
	timeout  time.Duration
	output   []byte
	exitCode int
	err      error
	calls    int
}

func (f *fakeRunner) Run(_ context.Context, timeout time.Duration, path string, args []string) ([]byte, int, error) {
	f.calls++
	f.path = path
	f.args = args
	f.timeout = timeout
	return f.output, f.exitCode, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(runner *fakeRunner, opts ...Option) *Service {
	opts = append([]Option{WithRunner(runner)}, opts...)
	return NewService(whitelist.Default(), testLogger(), opts...)
}

func TestExecuteRendersValidatedArgv(t *testing.T) {
	runner := &fakeRunner{output: []byte("ok")}
	s := newTestService(runner)

	result, err := s.Execute(context.Background(), "zpool_destroy", map[string]string{"name": "tank"})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Output)
	assert.Equal(t, 0, result.ExitCode)

	assert.Equal(t, "/usr/sbin/zpool", runner.path)
	assert.Equal(t, []string{"destroy", "tank"}, runner.args)
	assert.Equal(t, TimeoutSlow, runner.timeout)
}

func TestExecuteSudoPrefix(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestService(runner, WithSudo("/usr/bin/sudo"))

	_, err := s.Execute(context.Background(), "zpool_create", map[string]string{
		"flags": "-f",
		"name":  "tank",
		"vdev":  "/dev/sdb /dev/sdc",
	})
	require.NoError(t, err)

	assert.Equal(t, "/usr/bin/sudo", runner.path)
	assert.Equal(t, []string{"/usr/sbin/zpool", "create", "-f", "tank", "/dev/sdb", "/dev/sdc"}, runner.args)
}

func TestExecuteVdevRaidToken(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestService(runner)

	_, err := s.Execute(context.Background(), "zpool_create", map[string]string{
		"name": "tank",
		"vdev": "mirror /dev/sdb /dev/sdc",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"create", "tank", "mirror", "/dev/sdb", "/dev/sdc"}, runner.args)
}

func TestExecuteRejectsInjectionBeforeSpawn(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestService(runner)

	_, err := s.Execute(context.Background(), "zpool_create", map[string]string{
		"name": "tank",
		"vdev": "/dev/sdb; rm -rf /",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
	assert.Zero(t, runner.calls, "no process may be spawned for rejected input")
}

func TestExecuteMissingRequiredParam(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestService(runner)

	_, err := s.Execute(context.Background(), "zpool_destroy", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
	assert.Zero(t, runner.calls)
}

func TestExecuteOptionalParamOmitted(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestService(runner)

	// flags is optional on zpool_create; omission renders without it.
	_, err := s.Execute(context.Background(), "zpool_create", map[string]string{
		"name": "tank",
		"vdev": "/dev/sdb",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"create", "tank", "/dev/sdb"}, runner.args)
}

func TestExecuteUnknownKey(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestService(runner)

	_, err := s.Execute(context.Background(), "bash", map[string]string{"c": "id"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotWhitelisted))
	assert.Zero(t, runner.calls)
}

func TestExecuteNonZeroExit(t *testing.T) {
	runner := &fakeRunner{output: []byte("cannot open 'tank': no such pool"), exitCode: 1}
	s := newTestService(runner)

	result, err := s.Execute(context.Background(), "zpool_status", map[string]string{"name": "tank"})
	require.NoError(t, err, "non-zero exit is an outcome, not an error")
	assert.Equal(t, 1, result.ExitCode)
	assert.Contains(t, result.Output, "no such pool")
}

func TestExecuteSanitizesOutput(t *testing.T) {
	runner := &fakeRunner{output: []byte("smb mount password=hunter2 ok")}
	s := newTestService(runner)

	result, err := s.Execute(context.Background(), "zpool_list", nil)
	require.NoError(t, err)
	assert.NotContains(t, result.Output, "hunter2")
	assert.Contains(t, result.Output, "password=***")
}

func TestExecuteObserverOutcomes(t *testing.T) {
	observer := &captureObserver{}
	runner := &fakeRunner{}
	s := newTestService(runner, WithObserver(observer))

	_, _ = s.Execute(context.Background(), "zpool_list", nil)
	_, _ = s.Execute(context.Background(), "bash", nil)

	require.Len(t, observer.seen, 2)
	assert.Equal(t, [2]string{"zpool_list", "ok"}, observer.seen[0])
	assert.Equal(t, [2]string{"bash", "rejected"}, observer.seen[1])
}

type captureObserver struct {
	seen [][2]string
}

func (c *captureObserver) ObserveCommand(command, outcome string) {
	c.seen = append(c.seen, [2]string{command, outcome})
}

func TestRenderParamTypes(t *testing.T) {
	cases := []struct {
		name  string
		ptype ParamType
		value string
		want  []string
		ok    bool
	}{
		{"pool", ParamPoolName, "tank", []string{"tank"}, true},
		{"dataset", ParamDatasetName, "tank/data", []string{"tank/data"}, true},
		{"snapshot", ParamSnapshotName, "tank/data@daily", []string{"tank/data@daily"}, true},
		{"disk", ParamDiskPath, "/dev/nvme0n1", []string{"/dev/nvme0n1"}, true},
		{"container", ParamContainerName, "plex-server", []string{"plex-server"}, true},
		{"path", ParamSandboxedPath, "/mnt/tank/share", []string{"/mnt/tank/share"}, true},
		{"test type", ParamTestType, "short", []string{"short"}, true},
		{"property", ParamZFSPropertyKV, "compression=lz4", []string{"compression=lz4"}, true},
		{"flag", ParamFlag, "-f", []string{"-f"}, true},
		{"bounded", ParamBoundedString, "smbd", []string{"smbd"}, true},
		{"vdev", ParamVdevSpec, "raidz2 /dev/sdb /dev/sdc /dev/sdd", []string{"raidz2", "/dev/sdb", "/dev/sdc", "/dev/sdd"}, true},

		{"pool injection", ParamPoolName, "tank;id", nil, false},
		{"container leading dash", ParamContainerName, "-rm", nil, false},
		{"path escape", ParamSandboxedPath, "/etc/passwd", nil, false},
		{"test type free text", ParamTestType, "short; reboot", nil, false},
		{"property shell", ParamZFSPropertyKV, "mountpoint=/mnt/x;id", nil, false},
		{"long flag", ParamFlag, "--force", nil, false},
		{"bounded too long", ParamBoundedString, string(make([]byte, 65)), nil, false},
		{"vdev empty", ParamVdevSpec, "   ", nil, false},
		{"vdev raid only", ParamVdevSpec, "mirror", nil, false},
		{"vdev bad device", ParamVdevSpec, "mirror /dev/sdb $(id)", nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tokens, err := renderParam(tc.ptype, tc.value)
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, tc.want, tokens)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
