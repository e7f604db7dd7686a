// Package taskcontent expands a task's abstract command list into concrete
// shell text for one execution. Every function here is pure: inputs are never
// modified and the same inputs always produce the same output.
package taskcontent

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"reflect"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"

	"task-orchestration-service/internal/models"
)

// Target placeholder tokens.
const (
	TokenTargetDomain = "{{TARGET_DOMAIN}}"
	TokenTargetID     = "{{TARGET_ID}}"
	TokenTargetName   = "{{TARGET_NAME}}"
	TokenUserAgent    = "{{USER_AGENT}}"
	TokenCustomHeader = "{{CUSTOM_HEADER}}"
)

var tempFileToken = regexp.MustCompile(`task:\{tempfile-([A-Za-z0-9_.\-]+)\}`)

// Options binds a compile to one execution.
type Options struct {
	ToolsRoot string
	Target    *models.Target
	Data      map[string]any
}

// Compile applies tool, target and custom-data substitution, in that order,
// and returns fresh content. The tool installation prefix is not included; it
// depends on the worker chosen at assignment time (see WithInstallPrefix).
func Compile(content models.TaskContent, opts Options) models.TaskContent {
	out := content.Clone()
	out.Commands = SubstituteTools(out.Commands, opts.ToolsRoot, out.RequiredTools)
	out.Commands = SubstituteTarget(out.Commands, opts.Target)
	out.Commands = SubstituteData(out.Commands, opts.Data)
	return out
}

// WithInstallPrefix returns a copy of content whose commands are preceded by
// installation steps for each required tool the worker does not have.
func WithInstallPrefix(content models.TaskContent, root string, installed map[string]bool) models.TaskContent {
	out := content.Clone()
	prefix := InstallPrefix(root, out.RequiredTools, installed)
	if len(prefix) == 0 {
		return out
	}
	out.Commands = append(prefix, out.Commands...)
	return out
}

// ToolDir is the versioned directory a tool is installed into.
func ToolDir(root string, t models.Tool) string {
	return filepath.Join(root, t.Identifier())
}

// ToolBinaryPath is the absolute path of the tool's binary.
func ToolBinaryPath(root string, t models.Tool) string {
	return filepath.Join(ToolDir(root, t), t.Name)
}

// InstallPrefix emits installation commands for required tools missing from
// installed (keyed by name@version). Tools already present are skipped.
func InstallPrefix(root string, required []models.Tool, installed map[string]bool) []string {
	var cmds []string
	seen := make(map[string]bool, len(required))
	for _, t := range required {
		id := t.Identifier()
		if installed[id] || seen[id] {
			continue
		}
		seen[id] = true

		dir := ToolDir(root, t)
		cmds = append(cmds,
			shellquote.Join("mkdir", "-p", dir),
			shellquote.Join("cd", dir),
		)
		cmds = append(cmds, t.PreInstallCommands...)
		cmds = append(cmds, shellquote.Join("curl", "-fsSL", "-o", t.Name, t.DownloadURL))
		cmds = append(cmds, t.PostInstallCommands...)
		cmds = append(cmds,
			shellquote.Join("chmod", "+x", t.Name),
			shellquote.Join("cd", root),
		)
	}
	return cmds
}

// SubstituteTools replaces tool:{name} with the tool's binary path. Tools not
// in the list leave their tokens untouched.
func SubstituteTools(commands []string, root string, tools []models.Tool) []string {
	out := slices.Clone(commands)
	for _, t := range tools {
		token := "tool:{" + t.Name + "}"
		path := ToolBinaryPath(root, t)
		for i := range out {
			out[i] = strings.ReplaceAll(out[i], token, path)
		}
	}
	return out
}

// SubstituteTarget replaces the target tokens. A nil target leaves commands
// unchanged.
func SubstituteTarget(commands []string, target *models.Target) []string {
	out := slices.Clone(commands)
	if target == nil {
		return out
	}
	r := strings.NewReplacer(
		TokenTargetDomain, target.Domain,
		TokenTargetID, strconv.FormatUint(uint64(target.ID), 10),
		TokenTargetName, target.Name,
		TokenUserAgent, target.UserAgent,
		TokenCustomHeader, target.CustomHeader,
	)
	for i := range out {
		out[i] = r.Replace(out[i])
	}
	return out
}

// SubstituteData replaces {{KEY}} tokens with caller-supplied values in a
// single pass, so a value containing another key's token is not expanded
// again. Keys with no token are ignored and tokens with no key are left as
// they are.
func SubstituteData(commands []string, data map[string]any) []string {
	out := slices.Clone(commands)
	if len(data) == 0 {
		return out
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", FormatValue(data[k]))
	}
	r := strings.NewReplacer(pairs...)
	for i := range out {
		out[i] = r.Replace(out[i])
	}
	return out
}

// FormatValue renders a custom-data value for shell text: arrays join with
// spaces, objects become compact JSON, scalars stringify.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case json.Number:
		return val.String()
	case []string:
		return strings.Join(val, " ")
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = FormatValue(item)
		}
		return strings.Join(parts, " ")
	case map[string]any, map[string]string:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		rv := reflect.ValueOf(val)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			parts := make([]string, rv.Len())
			for i := range parts {
				parts[i] = FormatValue(rv.Index(i).Interface())
			}
			return strings.Join(parts, " ")
		}
		return fmt.Sprint(val)
	}
}

// SubstituteTempFiles replaces task:{tempfile-<name>} with a path under dir
// that is unique to scope, so concurrent executions never share a file.
func SubstituteTempFiles(commands []string, dir, scope string) []string {
	out := slices.Clone(commands)
	for i := range out {
		out[i] = tempFileToken.ReplaceAllStringFunc(out[i], func(tok string) string {
			name := tempFileToken.FindStringSubmatch(tok)[1]
			return TempFilePath(dir, scope, name)
		})
	}
	return out
}

// TempFilePath is the path a tempfile token resolves to.
func TempFilePath(dir, scope, name string) string {
	return filepath.Join(dir, "task-"+scope+"-"+name)
}

// TempFileNames lists the distinct tempfile names referenced by commands.
func TempFileNames(commands []string) []string {
	var names []string
	for _, c := range commands {
		for _, m := range tempFileToken.FindAllStringSubmatch(c, -1) {
			if !slices.Contains(names, m[1]) {
				names = append(names, m[1])
			}
		}
	}
	return names
}

// Script joins commands with a logical AND so a cd carries over to later lines
// and any failing line aborts the rest.
func Script(commands []string) string {
	return strings.Join(commands, " && ")
}
