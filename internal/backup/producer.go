package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/juju/utils/v4"

	"github.com/newthinker/s3backup/internal/config"
	"github.com/newthinker/s3backup/internal/core"
	"github.com/newthinker/s3backup/internal/flags"
)

// Job produces one archive: optional scratch setup, a tool script that
// writes Artifact, upload as Object, then removal of Scratch.
type Job struct {
	Name     string
	Object   string
	Artifact string
	Script   string
	Scratch  string
	Prepare  func() error
}

// Producer turns one configured category into jobs.
type Producer interface {
	Category() core.Category
	Enabled(f flags.Flags) bool
	Jobs(rc RunContext) []Job
}

// Finisher is implemented by producers that share scratch space across jobs.
type Finisher interface {
	Finish(rc RunContext) error
}

// Producers returns every producer in execution order.
func Producers(cfg *config.Config) []Producer {
	return []Producer{
		&postgresProducer{cfg: cfg},
		&mongoProducer{cfg: cfg},
		&directoryProducer{cfg: cfg},
		&filesProducer{cfg: cfg},
	}
}

func sortedByName[T any](items []T, name func(T) string) []T {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b T) int { return strings.Compare(name(a), name(b)) })
	return out
}

// archiveScript archives the contents of dir in place.
func archiveScript(tar, dir, artifact string) string {
	return fmt.Sprintf("cd %s && %s -czf %s .", utils.ShQuote(dir), tar, utils.ShQuote(artifact))
}

type postgresProducer struct {
	cfg *config.Config
}

func (p *postgresProducer) Category() core.Category { return core.CategoryPostgres }

func (p *postgresProducer) Enabled(f flags.Flags) bool {
	return f.RunDatabases() && len(p.cfg.PostgresDBs) > 0
}

func (p *postgresProducer) Jobs(rc RunContext) []Job {
	jobs := make([]Job, 0, len(p.cfg.PostgresDBs))
	for _, db := range p.cfg.PostgresDBs {
		object := rc.ObjectName(core.CategoryPostgres, db)
		artifact := rc.ArtifactPath(object)
		jobs = append(jobs, Job{
			Name:     db,
			Object:   object,
			Artifact: artifact,
			Script: fmt.Sprintf("%s %s | %s -c > %s",
				p.cfg.Tools.PgDump, utils.ShQuote(db), p.cfg.Tools.Gzip, utils.ShQuote(artifact)),
		})
	}
	return jobs
}

type mongoProducer struct {
	cfg *config.Config
}

func (p *mongoProducer) Category() core.Category { return core.CategoryMongo }

func (p *mongoProducer) Enabled(f flags.Flags) bool {
	return f.RunDatabases() && len(p.cfg.MongoDBs) > 0
}

func mongoDumpDir(rc RunContext) string {
	return filepath.Join(rc.TmpRoot, "mdbs")
}

func (p *mongoProducer) Jobs(rc RunContext) []Job {
	dumpDir := mongoDumpDir(rc)
	jobs := make([]Job, 0, len(p.cfg.MongoDBs))
	for _, db := range p.cfg.MongoDBs {
		object := rc.ObjectName(core.CategoryMongo, db)
		artifact := rc.ArtifactPath(object)
		scratch := filepath.Join(dumpDir, db)
		jobs = append(jobs, Job{
			Name:     db,
			Object:   object,
			Artifact: artifact,
			Scratch:  scratch,
			Prepare:  func() error { return os.MkdirAll(dumpDir, 0755) },
			Script: fmt.Sprintf("%s -h %s -d %s -o %s && %s",
				p.cfg.Tools.Mongodump, utils.ShQuote(p.cfg.Tools.MongoHost), utils.ShQuote(db),
				utils.ShQuote(dumpDir), archiveScript(p.cfg.Tools.Tar, scratch, artifact)),
		})
	}
	return jobs
}

func (p *mongoProducer) Finish(rc RunContext) error {
	return os.RemoveAll(mongoDumpDir(rc))
}

type directoryProducer struct {
	cfg *config.Config
}

func (p *directoryProducer) Category() core.Category { return core.CategoryDirectory }

func (p *directoryProducer) Enabled(f flags.Flags) bool {
	return f.RunFiles() && len(p.cfg.Directories) > 0
}

func (p *directoryProducer) Jobs(rc RunContext) []Job {
	jobs := make([]Job, 0, len(p.cfg.Directories))
	dirs := sortedByName(p.cfg.Directories, func(d config.DirectoryConfig) string { return d.Name })
	for _, dir := range dirs {
		object := rc.ObjectName(core.CategoryDirectory, dir.Name)
		artifact := rc.ArtifactPath(object)
		jobs = append(jobs, Job{
			Name:     dir.Name,
			Object:   object,
			Artifact: artifact,
			Script:   archiveScript(p.cfg.Tools.Tar, expandHome(dir.Path), artifact),
		})
	}
	return jobs
}

type filesProducer struct {
	cfg *config.Config
}

func (p *filesProducer) Category() core.Category { return core.CategoryFiles }

func (p *filesProducer) Enabled(f flags.Flags) bool {
	return f.RunFiles() && len(p.cfg.SingleFiles) > 0
}

func (p *filesProducer) Jobs(rc RunContext) []Job {
	jobs := make([]Job, 0, len(p.cfg.SingleFiles))
	groups := sortedByName(p.cfg.SingleFiles, func(g config.FileGroupConfig) string { return g.Name })
	for _, group := range groups {
		files := group.Files
		object := rc.ObjectName(core.CategoryFiles, group.Name)
		artifact := rc.ArtifactPath(object)
		scratch := filepath.Join(rc.TmpRoot, group.Name+"-tmp")
		jobs = append(jobs, Job{
			Name:     group.Name,
			Object:   object,
			Artifact: artifact,
			Scratch:  scratch,
			Prepare: func() error {
				if err := os.MkdirAll(scratch, 0755); err != nil {
					return err
				}
				return copyInto(scratch, files)
			},
			Script: archiveScript(p.cfg.Tools.Tar, scratch, artifact),
		})
	}
	return jobs
}
