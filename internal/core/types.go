package core

import (
	"fmt"
	"time"
)

// TimestampLayout formats the run timestamp embedded in every object name.
const TimestampLayout = "20060102-1504"

// Category identifies a kind of backup artifact
type Category struct {
	Name   string
	Prefix string
	Ext    string
}

var (
	CategoryPostgres  = Category{Name: "postgres", Prefix: "db", Ext: "gz"}
	CategoryMongo     = Category{Name: "mongo", Prefix: "mdb", Ext: "tgz"}
	CategoryDirectory = Category{Name: "directory", Prefix: "dir", Ext: "tgz"}
	CategoryFiles     = Category{Name: "files", Prefix: "files", Ext: "tgz"}
)

// Categories lists every category in execution order.
func Categories() []Category {
	return []Category{CategoryPostgres, CategoryMongo, CategoryDirectory, CategoryFiles}
}

// IsDatabase reports whether the category dumps a database rather than files.
func (c Category) IsDatabase() bool {
	return c == CategoryPostgres || c == CategoryMongo
}

// ObjectName returns <prefix>-<name>-<timestamp>.<ext>
func (c Category) ObjectName(name, timestamp string) string {
	return fmt.Sprintf("%s-%s-%s.%s", c.Prefix, name, timestamp, c.Ext)
}

// Object is a stored archive in a bucket
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}
