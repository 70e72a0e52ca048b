package compile

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/shlex"
)

// blockMarker starts every section header in an xcodebuild transcript.
const blockMarker = "==="

var (
	targetHeader      = regexp.MustCompile(`^===\s*BUILD\s+(?:AGGREGATE\s+)?TARGET\s+(\S+)`)
	swiftModuleHeader = regexp.MustCompile(`(?i)^===\s*(?:compile\s*swift(?:\s*sources)?|swift\s*driver|compile)\b`)
	headerTarget      = regexp.MustCompile(`in target '([^']+)'`)
	indexStoreFlag    = regexp.MustCompile(`(?:^|\s)(?:-|<)?index-store-path>?\s+(\S+)`)
)

var swiftCompilers = map[string]bool{
	"swiftc":         true,
	"swift-frontend": true,
	"swift":          true,
}

// Parse scans build log lines and returns one Command per swift module
// compile block, in the order the blocks appear. Blocks that do not match
// the compile pattern, and matched blocks that name no source file, are
// skipped.
func Parse(lines []string) Commands {
	cmds := Commands{}
	module := ""

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, blockMarker) {
			continue
		}

		if m := targetHeader.FindStringSubmatch(line); m != nil {
			module = m[1]
			continue
		}
		if !swiftModuleHeader.MatchString(line) {
			continue
		}

		end := nextBlock(lines, i+1)
		if cmd, ok := parseSwiftModule(line, lines[i+1:end], module); ok {
			cmds = append(cmds, cmd)
		}
		i = end - 1
	}

	return cmds
}

// nextBlock returns the index of the next block header at or after from.
func nextBlock(lines []string, from int) int {
	for i := from; i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), blockMarker) {
			return i
		}
	}
	return len(lines)
}

type moduleBuilder struct {
	cmd   Command
	files map[string]struct{}
}

func (b *moduleBuilder) addFile(path string) {
	if _, ok := b.files[path]; ok {
		return
	}
	b.files[path] = struct{}{}
	b.cmd.Files = append(b.cmd.Files, path)
}

func parseSwiftModule(header string, body []string, module string) (Command, bool) {
	b := &moduleBuilder{
		cmd:   Command{Arguments: []string{}},
		files: make(map[string]struct{}),
	}

	for _, field := range strings.Fields(strings.Trim(header, "= ")) {
		if isSwiftPath(field) {
			b.addFile(field)
		}
	}
	if m := headerTarget.FindStringSubmatch(header); m != nil {
		module = m[1]
	}

	for _, raw := range body {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
		case strings.HasPrefix(line, "cd "):
			if dir, err := shlex.Split(line[3:]); err == nil && len(dir) == 1 {
				b.cmd.Directory = dir[0]
			}
		case strings.HasPrefix(line, "export "):
		case b.compilerInvocation(line):
		case isSwiftPath(line):
			b.addFile(line)
		default:
			if m := indexStoreFlag.FindStringSubmatch(line); m != nil {
				b.cmd.IndexStorePath = m[1]
			}
		}
	}

	if len(b.cmd.Files) == 0 {
		return Command{}, false
	}

	b.cmd.File = b.cmd.Files[0]
	if b.cmd.ModuleName == "" {
		b.cmd.ModuleName = module
	}
	return b.cmd, true
}

// compilerInvocation consumes line if it runs a swift compiler, recording
// the argument vector and the values it carries.
func (b *moduleBuilder) compilerInvocation(line string) bool {
	args, err := shlex.Split(line)
	if err != nil || len(args) == 0 {
		return false
	}
	if !swiftCompilers[filepath.Base(args[0])] {
		return false
	}

	b.cmd.Arguments = args
	for i := 1; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "-index-store-path", "-module-name", "-working-directory":
			if i+1 >= len(args) {
				continue
			}
			i++
			switch arg {
			case "-index-store-path":
				b.cmd.IndexStorePath = args[i]
			case "-module-name":
				b.cmd.ModuleName = args[i]
			case "-working-directory":
				if b.cmd.Directory == "" {
					b.cmd.Directory = args[i]
				}
			}
		default:
			if !strings.HasPrefix(arg, "-") && strings.HasSuffix(arg, ".swift") {
				b.addFile(arg)
			}
		}
	}
	return true
}

func isSwiftPath(line string) bool {
	return !strings.ContainsAny(line, " \t") && strings.HasSuffix(line, ".swift")
}
