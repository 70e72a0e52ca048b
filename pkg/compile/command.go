// Package compile derives a compile-command database from xcodebuild
// transcripts so language servers can resolve per-file compiler flags.
package compile

// FileName is the database file written at the project root.
const FileName = ".compile"

// Command is one compiler invocation recovered from a build log.
// Arguments keep the exact order the build tool emitted them.
type Command struct {
	File           string   `json:"file"`
	Files          []string `json:"files,omitempty"`
	Directory      string   `json:"directory,omitempty"`
	Arguments      []string `json:"arguments"`
	ModuleName     string   `json:"module_name,omitempty"`
	IndexStorePath string   `json:"index_store_path,omitempty"`
}

// Commands is the ordered database, one entry per compiled module in build
// order. A module compiled twice appears twice.
type Commands []Command

// IndexStorePaths returns the distinct index store paths referenced by the
// database, in first-seen order.
func (c Commands) IndexStorePaths() []string {
	seen := make(map[string]struct{})
	var paths []string
	for _, cmd := range c {
		if cmd.IndexStorePath == "" {
			continue
		}
		if _, ok := seen[cmd.IndexStorePath]; ok {
			continue
		}
		seen[cmd.IndexStorePath] = struct{}{}
		paths = append(paths, cmd.IndexStorePath)
	}
	return paths
}

// Lookup returns the last command that compiles file.
func (c Commands) Lookup(file string) (Command, bool) {
	for i := len(c) - 1; i >= 0; i-- {
		for _, f := range c[i].Files {
			if f == file {
				return c[i], true
			}
		}
	}
	return Command{}, false
}
