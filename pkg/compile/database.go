package compile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/grovetools/buildhub/errors"
)

// Path returns the database location for a project root.
func Path(root string) string {
	return filepath.Join(root, FileName)
}

// Marshal renders the database as a pretty-printed JSON array. An empty
// database renders as [].
func Marshal(cmds Commands) ([]byte, error) {
	if cmds == nil {
		cmds = Commands{}
	}
	data, err := json.MarshalIndent(cmds, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode compile commands")
	}
	return data, nil
}

// Write replaces the database at the project root. The file is written to a
// temporary sibling and renamed so readers never observe a partial file.
func Write(root string, cmds Commands) error {
	data, err := Marshal(cmds)
	if err != nil {
		return err
	}

	path := Path(root)
	tmp, err := os.CreateTemp(root, FileName+".*.tmp")
	if err != nil {
		return errors.IO(err, "create", path)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.IO(err, "write", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.IO(err, "write", path)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return errors.IO(err, "chmod", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.IO(err, "rename", path)
	}
	return nil
}

// Read loads a database previously written by Write.
func Read(path string) (Commands, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IO(err, "read", path)
	}
	var cmds Commands
	if err := json.Unmarshal(data, &cmds); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode compile commands").
			WithDetail("path", path)
	}
	return cmds, nil
}

// Update parses a build transcript and rewrites the database at root.
func Update(root string, lines []string) (Commands, error) {
	cmds := Parse(lines)
	if err := Write(root, cmds); err != nil {
		return nil, err
	}
	return cmds, nil
}

// Collector accumulates build log lines from concurrent producers.
type Collector struct {
	mu    sync.Mutex
	lines []string
}

// Add appends a line.
func (c *Collector) Add(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

// Lines returns a copy of the collected lines.
func (c *Collector) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}
