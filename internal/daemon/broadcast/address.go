package broadcast

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/grovetools/buildhub/util/sanitize"
)

// Address returns the socket path for a project root inside dir. The name
// only depends on the cleaned root path, so reconnecting clients find the
// same address across daemon restarts.
func Address(dir, root string) string {
	root = filepath.Clean(root)
	sum := sha256.Sum256([]byte(root))

	name := sanitize.ForFilename(filepath.Base(root))
	if len(name) > 24 {
		name = name[:24]
	}
	if name == "" {
		name = "project"
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s.socket", name, hex.EncodeToString(sum[:])[:12]))
}
