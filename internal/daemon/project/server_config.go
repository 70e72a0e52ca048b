package project

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/grovetools/buildhub/errors"
)

// ServerConfigFile is read by sourcekit-lsp to find the build server.
const ServerConfigFile = "buildServer.json"

type serverConfig struct {
	Name       string   `json:"name"`
	Argv       []string `json:"argv"`
	Version    string   `json:"version"`
	BSPVersion string   `json:"bspVersion"`
	Languages  []string `json:"languages"`
}

// EnsureServerConfig writes buildServer.json unless the project already
// has one. It reports whether the file was created.
func (p *Project) EnsureServerConfig() (bool, error) {
	path := filepath.Join(p.Root, ServerConfigFile)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	argv := append([]string{}, p.settings.ServerCommand...)
	if bin, err := exec.LookPath(argv[0]); err == nil {
		argv[0] = bin
	}

	data, err := json.MarshalIndent(serverConfig{
		Name:       "buildhub",
		Argv:       argv,
		Version:    "0.1",
		BSPVersion: "0.2",
		Languages:  []string{"swift", "objective-c", "objective-cpp", "c", "cpp"},
	}, "", "  ")
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeSerialization, "encode "+ServerConfigFile)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return false, errors.IO(err, "write", path)
	}
	return true, nil
}
