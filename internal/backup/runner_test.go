package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/newthinker/s3backup/internal/config"
	"github.com/newthinker/s3backup/internal/core"
	"github.com/newthinker/s3backup/internal/flags"
	"github.com/newthinker/s3backup/internal/metrics"
	"github.com/newthinker/s3backup/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var artifactPattern = regexp.MustCompile(`'([^']*\.t?gz)'`)

// fakeExecutor records scripts and writes the artifact each script targets.
type fakeExecutor struct {
	scripts []string
	err     error
	noWrite bool
	onRun   func(script string)
}

func (f *fakeExecutor) Run(ctx context.Context, script string) error {
	f.scripts = append(f.scripts, script)
	if f.onRun != nil {
		f.onRun(script)
	}
	if !f.noWrite {
		m := artifactPattern.FindAllStringSubmatch(script, -1)
		if len(m) > 0 {
			path := m[len(m)-1][1]
			if err := os.WriteFile(path, []byte("archive:"+filepath.Base(path)), 0644); err != nil {
				return err
			}
		}
	}
	return f.err
}

type runnerFixture struct {
	runner    *Runner
	exec      *fakeExecutor
	bucket    storage.Bucket
	bucketDir string
	tmpRoot   string
	now       time.Time
	logs      *observer.ObservedLogs
}

func newRunnerFixture(t *testing.T, cfg *config.Config, args ...string) *runnerFixture {
	t.Helper()

	base := t.TempDir()
	fs, err := storage.NewLocalFS(base)
	require.NoError(t, err)
	bucket, err := storage.Resolve(context.Background(), fs, "backups")
	require.NoError(t, err)

	obs, logs := observer.New(zap.DebugLevel)
	now := time.Now()
	fake := &fakeExecutor{}

	r := NewRunner(cfg, flags.Parse(args), bucket, zap.New(obs))
	r.SetExecutor(fake)
	r.SetClock(func() time.Time { return now })

	return &runnerFixture{
		runner:    r,
		exec:      fake,
		bucket:    bucket,
		bucketDir: filepath.Join(base, "backups"),
		tmpRoot:   filepath.Join(t.TempDir(), "work"),
		now:       now,
		logs:      logs,
	}
}

func (fx *runnerFixture) keys(t *testing.T) []string {
	t.Helper()
	objects, err := fx.bucket.List(context.Background())
	require.NoError(t, err)
	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		keys = append(keys, o.Key)
	}
	sort.Strings(keys)
	return keys
}

func fullConfig(t *testing.T) *config.Config {
	t.Helper()
	src := t.TempDir()
	hosts := filepath.Join(src, "hosts")
	require.NoError(t, os.WriteFile(hosts, []byte("127.0.0.1 localhost\n"), 0644))

	cfg := config.Defaults()
	cfg.RetentionDays = 7
	cfg.PostgresDBs = []string{"appdb"}
	cfg.MongoDBs = []string{"events"}
	cfg.Directories = []config.DirectoryConfig{{Name: "logs", Path: src}}
	cfg.SingleFiles = []config.FileGroupConfig{{Name: "etc", Files: []string{hosts}}}
	return cfg
}

func counterValue(t *testing.T, reg *metrics.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if want, ok := labels[l.GetName()]; ok && want != l.GetValue() {
					continue metric
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestRunner_AllCategories(t *testing.T) {
	fx := newRunnerFixture(t, fullConfig(t))
	ts := fx.now.Format(core.TimestampLayout)

	var scratchFiles []string
	fx.exec.onRun = func(script string) {
		if strings.Contains(script, "etc-tmp") {
			entries, err := os.ReadDir(filepath.Join(fx.tmpRoot, "etc-tmp"))
			require.NoError(t, err)
			for _, e := range entries {
				scratchFiles = append(scratchFiles, e.Name())
			}
		}
	}

	report, err := fx.runner.Run(context.Background(), fx.tmpRoot)
	require.NoError(t, err)

	want := []string{
		"db-appdb-" + ts + ".gz",
		"mdb-events-" + ts + ".tgz",
		"dir-logs-" + ts + ".tgz",
		"files-etc-" + ts + ".tgz",
	}
	assert.Equal(t, want, report.Uploaded, "categories run in order")
	assert.Equal(t, ts, report.Timestamp)
	assert.Len(t, fx.exec.scripts, 4)

	keys := fx.keys(t)
	assert.Len(t, keys, 4)
	for _, k := range keys {
		assert.Contains(t, k, "-"+ts+".", "every object shares the run timestamp")
	}

	assert.Equal(t, []string{"hosts"}, scratchFiles, "files are copied before archiving")
	assert.NoDirExists(t, fx.tmpRoot)
}

func TestRunner_FlagGates(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		prefixes []string
	}{
		{"full backup", nil, []string{"db", "dir", "files", "mdb"}},
		{"only_db", []string{"--only_db"}, []string{"db", "mdb"}},
		{"only_files", []string{"-only_files"}, []string{"dir", "files"}},
		{"both flags", []string{"--only_db", "--only_files"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newRunnerFixture(t, fullConfig(t), tt.args...)

			_, err := fx.runner.Run(context.Background(), fx.tmpRoot)
			require.NoError(t, err)

			var prefixes []string
			for _, k := range fx.keys(t) {
				prefixes = append(prefixes, strings.SplitN(k, "-", 2)[0])
			}
			sort.Strings(prefixes)
			assert.Equal(t, tt.prefixes, prefixes)
			assert.Len(t, fx.exec.scripts, len(tt.prefixes))
			assert.NoDirExists(t, fx.tmpRoot)
		})
	}
}

func TestRunner_BothFlagsStillSweeps(t *testing.T) {
	fx := newRunnerFixture(t, fullConfig(t), "--only_db", "--only_files")

	old := filepath.Join(fx.bucketDir, "db-appdb-20200101-0000.gz")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0644))
	stale := fx.now.Add(-8 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(old, stale, stale))

	report, err := fx.runner.Run(context.Background(), fx.tmpRoot)
	require.NoError(t, err)
	assert.Empty(t, report.Uploaded)
	assert.Equal(t, []string{"db-appdb-20200101-0000.gz"}, report.Pruned)
	assert.Empty(t, fx.keys(t))
}

func TestRunner_SweepAfterUploads(t *testing.T) {
	cfg := fullConfig(t)
	fx := newRunnerFixture(t, cfg)

	write := func(name string, age time.Duration) {
		p := filepath.Join(fx.bucketDir, name)
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
		mod := fx.now.Add(-age)
		require.NoError(t, os.Chtimes(p, mod, mod))
	}
	write("dir-logs-old.tgz", 8*24*time.Hour)
	write("dir-logs-recent.tgz", 6*24*time.Hour)

	report, err := fx.runner.Run(context.Background(), fx.tmpRoot)
	require.NoError(t, err)

	assert.Equal(t, []string{"dir-logs-old.tgz"}, report.Pruned)
	keys := fx.keys(t)
	assert.Contains(t, keys, "dir-logs-recent.tgz")
	assert.NotContains(t, keys, "dir-logs-old.tgz")
	assert.Len(t, keys, 5, "fresh uploads survive the sweep")
	assert.Equal(t, float64(1), counterValue(t, fx.runner.Metrics(), "s3backup_objects_pruned_total", nil))
}

func TestRunner_ToolFailureIgnored(t *testing.T) {
	cfg := config.Defaults()
	cfg.PostgresDBs = []string{"appdb"}
	fx := newRunnerFixture(t, cfg)
	fx.exec.err = core.WrapError(core.ErrToolFailed, errors.New("exit status 1"))

	report, err := fx.runner.Run(context.Background(), fx.tmpRoot)
	require.NoError(t, err)
	assert.Len(t, report.Uploaded, 1)
	assert.NoDirExists(t, fx.tmpRoot)

	reg := fx.runner.Metrics()
	assert.Equal(t, float64(1), counterValue(t, reg, "s3backup_tool_failures_total", map[string]string{"category": "postgres"}))
	assert.Equal(t, float64(1), counterValue(t, reg, "s3backup_archives_total", map[string]string{"status": "uploaded"}))
	assert.Equal(t, 1, fx.logs.FilterMessage("tool exited with error").Len())
}

func TestRunner_StrictToolsAborts(t *testing.T) {
	cfg := config.Defaults()
	cfg.StrictTools = true
	cfg.PostgresDBs = []string{"appdb", "billing"}
	fx := newRunnerFixture(t, cfg)
	fx.exec.err = core.WrapError(core.ErrToolFailed, errors.New("exit status 1"))

	report, err := fx.runner.Run(context.Background(), fx.tmpRoot)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrToolFailed)
	assert.Empty(t, report.Uploaded)
	assert.Len(t, fx.exec.scripts, 1, "run stops at the first failure")
	assert.Empty(t, fx.keys(t))
	assert.DirExists(t, fx.tmpRoot, "temp tree is left behind on failure")
}

func TestRunner_MissingArtifactAborts(t *testing.T) {
	cfg := config.Defaults()
	cfg.PostgresDBs = []string{"appdb"}
	cfg.Directories = []config.DirectoryConfig{{Name: "logs", Path: "/var/log/app"}}
	fx := newRunnerFixture(t, cfg)
	fx.exec.noWrite = true
	fx.exec.err = core.WrapError(core.ErrToolFailed, errors.New("pg_dump: not found"))

	_, err := fx.runner.Run(context.Background(), fx.tmpRoot)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Len(t, fx.exec.scripts, 1)
	assert.DirExists(t, fx.tmpRoot)
	assert.Equal(t, float64(1), counterValue(t, fx.runner.Metrics(), "s3backup_archives_total", map[string]string{"status": "failed"}))
}

func TestRunner_FilesPrepareFailureAborts(t *testing.T) {
	cfg := config.Defaults()
	cfg.SingleFiles = []config.FileGroupConfig{{Name: "etc", Files: []string{"/definitely/not/here"}}}
	fx := newRunnerFixture(t, cfg)

	_, err := fx.runner.Run(context.Background(), fx.tmpRoot)
	require.Error(t, err)
	assert.Empty(t, fx.exec.scripts, "tool never runs when files cannot be collected")
}

func TestRunner_NothingConfigured(t *testing.T) {
	fx := newRunnerFixture(t, config.Defaults())

	report, err := fx.runner.Run(context.Background(), fx.tmpRoot)
	require.NoError(t, err)
	assert.Empty(t, report.Uploaded)
	assert.NoDirExists(t, fx.tmpRoot)
}

func requireTools(t *testing.T, tools ...string) {
	t.Helper()
	requireShell(t)
	for _, tool := range tools {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not available", tool)
		}
	}
}

func readGzip(t *testing.T, path string) []byte {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	return data
}

func tarEntries(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)

	var names []string
	tr := tar.NewReader(zr)
	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if h.Typeflag == tar.TypeReg {
			names = append(names, strings.TrimPrefix(h.Name, "./"))
		}
	}
	sort.Strings(names)
	return names
}

// Mirrors the documented example: one database, one directory, seven days.
func TestRunner_ShellTools(t *testing.T) {
	requireTools(t, "tar", "gzip")

	logDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(logDir, "app.log"), []byte("started\n"), 0644))

	bin := t.TempDir()
	mongodump := filepath.Join(bin, "mongodump")
	require.NoError(t, os.WriteFile(mongodump, []byte(`#!/bin/sh
# invoked as: mongodump -h HOST -d DB -o OUT
mkdir -p "$6/$4" && echo '{}' > "$6/$4/users.bson"
`), 0755))

	cfg := config.Defaults()
	cfg.RetentionDays = 7
	cfg.Tools.PgDump = "echo"
	cfg.Tools.Mongodump = mongodump
	cfg.PostgresDBs = []string{"appdb"}
	cfg.MongoDBs = []string{"events"}
	cfg.Directories = []config.DirectoryConfig{{Name: "logs", Path: logDir}}

	fx := newRunnerFixture(t, cfg)
	fx.runner.SetExecutor(NewShellExecutor())

	old := filepath.Join(fx.bucketDir, "db-appdb-20000101-0000.gz")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0644))
	stale := fx.now.Add(-8 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(old, stale, stale))

	report, err := fx.runner.Run(context.Background(), fx.tmpRoot)
	require.NoError(t, err)

	ts := fx.now.Format(core.TimestampLayout)
	dbObject := "db-appdb-" + ts + ".gz"
	mdbObject := "mdb-events-" + ts + ".tgz"
	dirObject := "dir-logs-" + ts + ".tgz"

	assert.Equal(t, []string{dbObject, mdbObject, dirObject}, report.Uploaded)
	assert.Equal(t, []string{"db-appdb-20000101-0000.gz"}, report.Pruned)

	assert.Equal(t, "appdb\n", string(readGzip(t, filepath.Join(fx.bucketDir, dbObject))))
	assert.Equal(t, []string{"users.bson"}, tarEntries(t, filepath.Join(fx.bucketDir, mdbObject)))
	assert.Equal(t, []string{"app.log"}, tarEntries(t, filepath.Join(fx.bucketDir, dirObject)))

	assert.NoDirExists(t, fx.tmpRoot)
}
