// Package flags parses the loose --key[=value] switches accepted on the command line.
package flags

import (
	"regexp"
	"strings"
)

// Recognized flag names.
const (
	OnlyDB    = "only_db"
	OnlyFiles = "only_files"
)

var flagPattern = regexp.MustCompile(`--?([^=\s]+)(?:=(\S+))?`)

// Flags holds every switch found on the command line.
type Flags struct {
	OnlyDB    bool
	OnlyFiles bool

	values map[string]string
}

// Parse joins args with spaces and collects every -name or --name[=value] token.
// Unknown names are kept but never validated.
func Parse(args []string) Flags {
	values := make(map[string]string)
	for _, m := range flagPattern.FindAllStringSubmatch(strings.Join(args, " "), -1) {
		values[m[1]] = m[2]
	}

	f := Flags{values: values}
	f.OnlyDB = f.Has(OnlyDB)
	f.OnlyFiles = f.Has(OnlyFiles)
	return f
}

// Has reports whether name was passed, whatever its value.
func (f Flags) Has(name string) bool {
	_, ok := f.values[name]
	return ok
}

// Value returns the value given for name, or "" when absent or bare.
func (f Flags) Value(name string) string {
	return f.values[name]
}

// Lookup returns the first non-empty value among names.
func (f Flags) Lookup(names ...string) string {
	for _, n := range names {
		if v := f.values[n]; v != "" {
			return v
		}
	}
	return ""
}

// RunDatabases reports whether database producers are enabled.
func (f Flags) RunDatabases() bool {
	return !f.OnlyFiles
}

// RunFiles reports whether directory and file-group producers are enabled.
func (f Flags) RunFiles() bool {
	return !f.OnlyDB
}
