package models

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Client identifies an editor instance attached to a project.
type Client struct {
	PID  int    `json:"pid"`
	Root string `json:"root"`
}

// Validate checks that the client carries an absolute project root.
func (c Client) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("client root is required")
	}
	if !filepath.IsAbs(c.Root) {
		return fmt.Errorf("client root must be absolute: %s", c.Root)
	}
	return nil
}

// Operation selects how a build or run request is handled.
type Operation string

const (
	// OpOnce executes the request a single time.
	OpOnce Operation = "once"
	// OpWatch registers the request to re-execute on file changes.
	OpWatch Operation = "watch"
	// OpStop removes an existing watch registration.
	OpStop Operation = "stop"
)

// Valid reports whether the operation is known. An empty operation is
// treated as once.
func (o Operation) Valid() bool {
	switch o {
	case "", OpOnce, OpWatch, OpStop:
		return true
	}
	return false
}

// BuildSettings describes what the build tool should build.
type BuildSettings struct {
	Target        string   `json:"target"`
	Configuration string   `json:"configuration"`
	Scheme        string   `json:"scheme,omitempty"`
	Args          []string `json:"args,omitempty"`
}

// Arguments returns the build tool flags selecting the target, scheme and
// configuration, followed by the extra arguments.
func (s BuildSettings) Arguments() []string {
	parts := []string{}
	if s.Scheme != "" {
		parts = append(parts, "-scheme", s.Scheme)
	} else {
		parts = append(parts, "-target", s.Target)
	}
	if s.Configuration != "" {
		parts = append(parts, "-configuration", s.Configuration)
	}
	return append(parts, s.Args...)
}

// String renders settings the way they appear in notifications.
func (s BuildSettings) String() string {
	return strings.Join(s.Arguments(), " ")
}

// BuildRequest asks the daemon to build a target.
type BuildRequest struct {
	Client    Client        `json:"client"`
	Settings  BuildSettings `json:"settings"`
	Operation Operation     `json:"operation"`
}

// Signature is the normalized key identifying the request across watch,
// re-register and stop operations.
func (r BuildRequest) Signature() string {
	return signature("build", r.Settings, "")
}

// RunRequest asks the daemon to build and then launch a target.
type RunRequest struct {
	Client    Client        `json:"client"`
	Settings  BuildSettings `json:"settings"`
	Device    string        `json:"device,omitempty"`
	Operation Operation     `json:"operation"`
}

// Signature is the normalized key identifying the request.
func (r RunRequest) Signature() string {
	return signature("run", r.Settings, r.Device)
}

func signature(kind string, s BuildSettings, device string) string {
	key := []string{kind, strings.TrimSpace(s.Target), strings.ToLower(strings.TrimSpace(s.Configuration))}
	if s.Scheme != "" {
		key = append(key, "scheme="+s.Scheme)
	}
	if device != "" {
		key = append(key, "device="+device)
	}
	if len(s.Args) > 0 {
		key = append(key, strings.Join(s.Args, " "))
	}
	return strings.Join(key, ":")
}

// ProjectInfo is the daemon's view of an open project, returned by the
// state endpoint.
type ProjectInfo struct {
	Root          string   `json:"root"`
	Name          string   `json:"name"`
	Generator     string   `json:"generator"`
	Socket        string   `json:"socket"`
	Clients       int      `json:"clients"`
	Targets       []string `json:"targets"`
	Registrations []string `json:"registrations"`
}

// RegisterResponse is returned when a client attaches to a project.
type RegisterResponse struct {
	Socket string `json:"socket"`
}
