package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadEnv_LoadsOnlyExistingFiles(t *testing.T) {
	tmp := t.TempDir()
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "PAYROLL_TEST_ENV_LOAD=ok\n")

	origWd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	require.NoError(t, os.Chdir(tmp))

	_ = os.Unsetenv("PAYROLL_TEST_ENV_LOAD")

	n, err := LoadEnv([]string{".env", ".env.local"})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "ok", os.Getenv("PAYROLL_TEST_ENV_LOAD"))
}

func TestLoadEnv_NoFiles(t *testing.T) {
	tmp := t.TempDir()

	origWd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	require.NoError(t, os.Chdir(tmp))

	n, err := LoadEnv([]string{".env"})
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestReviewQueueOptions_Validate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		opts    ReviewQueueOptions
		wantErr bool
	}{
		{name: "memory", opts: ReviewQueueOptions{Storage: "memory", AutocleanInterval: time.Second}},
		{name: "redis", opts: ReviewQueueOptions{Storage: "redis", RedisURL: "localhost:6379", AutocleanInterval: time.Second}},
		{name: "redis without url", opts: ReviewQueueOptions{Storage: "redis", AutocleanInterval: time.Second}, wantErr: true},
		{name: "unknown storage", opts: ReviewQueueOptions{Storage: "kafka", AutocleanInterval: time.Second}, wantErr: true},
		{name: "zero autoclean", opts: ReviewQueueOptions{Storage: "memory"}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.opts.Validate()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTaskOptions_Validate(t *testing.T) {
	t.Parallel()

	ok := TaskOptions{RelayWorkers: 1, RelayMaxAttempts: 1, RelayDispatchTimeout: time.Minute, RelayLockTTL: time.Hour}
	require.NoError(t, ok.Validate())

	bad := ok
	bad.RelayDispatchTimeout = 2 * time.Hour
	require.Error(t, bad.Validate())

	bad = ok
	bad.RelayWorkers = 0
	require.Error(t, bad.Validate())
}

func TestConfiguration_ResolveUpload(t *testing.T) {
	t.Parallel()

	c := &Configuration{UploadsPath: "/srv/uploads"}
	require.Equal(t, filepath.Join("/srv/uploads", "2020/payroll.csv"), c.ResolveUpload("2020/payroll.csv"))
	require.Equal(t, "/tmp/x.csv", c.ResolveUpload("/tmp/x.csv"))
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
