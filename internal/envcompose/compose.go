// Package envcompose layers the pristine process environment,
// backend-exported env, config-declared env, and a template-evaluated
// post-env into a single PATH and environment map for a resolved
// toolset. The shell export machinery (Formatter) renders activation
// output as POSIX or fish export lines; the post-env stage uses
// text/template since it evaluates lazily over the already-composed
// env rather than a schema document.
package envcompose

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
)

// managedPathVarMise and managedPathVarRtx are the ADD_PATH keys a
// backend's exec_env may emit instead of touching PATH directly; their
// values are appended to PATH rather than exported as-is.
const (
	managedPathVarMise = "MISE_ADD_PATH"
	managedPathVarRtx  = "RTX_ADD_PATH"
)

// managedToolOptsPrefixes are stripped from the pristine environment
// snapshot so stale per-tool option exports from a parent shell don't
// leak into the composed environment.
var managedToolOptsPrefixes = []string{"MISE_TOOL_OPTS__", "RTX_TOOL_OPTS__"}

// ToolEnv is one backend's exported environment contribution, in
// Toolset order.
type ToolEnv struct {
	Identifier string
	Env        map[string]string
	BinPaths   []string
}

// Input gathers everything the composer needs to produce the final
// PATH and environment map.
type Input struct {
	// PristineEnv is the environment the process saw at start.
	PristineEnv map[string]string
	// Tools are per-backend exported env/bin-paths, in Toolset order.
	Tools []ToolEnv
	// ConfigEnv is merged env declarations from config files.
	ConfigEnv map[string]string
	// ConfigPathDirs are config-declared path_dirs, in config order.
	ConfigPathDirs []string
	// VenvPath is the active virtualenv bin directory, if any.
	VenvPath string
	// PostEnv holds lazily-evaluated template env declarations; each
	// value is a text/template source evaluated against a context
	// with the already-composed env bound as `.Env`.
	PostEnv map[string]string
	// PostEnvPathDirs are additional PATH entries contributed by the
	// post-env layer.
	PostEnvPathDirs []string
}

// Result is the fully composed environment.
type Result struct {
	Env  map[string]string
	Path []string
}

// Compose runs the four-layer composition: pristine env, backend
// exports, config env, then post-env, assembling PATH head-first from
// the most specific layer to the least.
func Compose(in Input) (Result, error) {
	env := pristineLayer(in.PristineEnv)

	var pathFromToolExports []string
	var toolBinPaths []string
	for _, t := range in.Tools {
		keys := make([]string, 0, len(t.Env))
		for k := range t.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := t.Env[k]
			switch {
			case strings.ToUpper(k) == "PATH":
				// PATH itself is never imported from exec_env.
				continue
			case k == managedPathVarMise || k == managedPathVarRtx:
				pathFromToolExports = append(pathFromToolExports, v)
			default:
				env[k] = v
			}
		}
		toolBinPaths = append(toolBinPaths, filterPathsWithParent(t.BinPaths)...)
	}

	for k, v := range in.ConfigEnv {
		env[k] = v
	}

	postEnv, postPathDirs, err := evaluatePostEnv(in.PostEnv, env)
	if err != nil {
		return Result{}, fmt.Errorf("envcompose: post-env evaluation: %w", err)
	}
	for k, v := range postEnv {
		env[k] = v
	}

	path := composePath(
		append(append([]string{}, in.PostEnvPathDirs...), postPathDirs...),
		in.ConfigPathDirs,
		in.VenvPath,
		toolBinPaths,
		pathFromToolExports,
		strings.Split(in.PristineEnv["PATH"], ":"),
	)
	env["PATH"] = strings.Join(path, ":")

	return Result{Env: env, Path: path}, nil
}

// pristineLayer copies the pristine snapshot, dropping managed
// prefixes and the ADD_PATH keys.
func pristineLayer(pristine map[string]string) map[string]string {
	env := make(map[string]string, len(pristine))
	for k, v := range pristine {
		if k == managedPathVarMise || k == managedPathVarRtx {
			continue
		}
		if hasManagedPrefix(k) {
			continue
		}
		env[k] = v
	}
	return env
}

func hasManagedPrefix(key string) bool {
	for _, p := range managedToolOptsPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// evaluatePostEnv evaluates each post-env template against a context
// binding the already-composed env, returning the resulting key/value
// overlay. A template producing the reserved key "PATH" contributes to
// the path-dirs return value instead of the env map.
func evaluatePostEnv(templates map[string]string, composedEnv map[string]string) (map[string]string, []string, error) {
	if len(templates) == 0 {
		return nil, nil, nil
	}

	ctx := struct{ Env map[string]string }{Env: composedEnv}

	keys := make([]string, 0, len(templates))
	for k := range templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(templates))
	var pathDirs []string
	for _, k := range keys {
		src := templates[k]
		tmpl, err := template.New(k).Parse(src)
		if err != nil {
			return nil, nil, fmt.Errorf("parse post-env %q: %w", k, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, ctx); err != nil {
			return nil, nil, fmt.Errorf("evaluate post-env %q: %w", k, err)
		}
		if k == "PATH" {
			pathDirs = append(pathDirs, splitNonEmpty(buf.String(), ":")...)
			continue
		}
		out[k] = buf.String()
	}
	return out, pathDirs, nil
}

// composePath assembles PATH head-first: post-env paths, config
// path_dirs, venv path, per-tool bin paths (Toolset order), tool
// export paths, then the pre-existing PATH, deduplicated keeping the
// first occurrence.
func composePath(postEnvDirs, configDirs []string, venv string, toolBinPaths, toolExportPaths, existing []string) []string {
	var ordered []string
	ordered = append(ordered, postEnvDirs...)
	ordered = append(ordered, configDirs...)
	if venv != "" {
		ordered = append(ordered, venv)
	}
	ordered = append(ordered, toolBinPaths...)
	ordered = append(ordered, toolExportPaths...)
	ordered = append(ordered, existing...)

	return dedupStable(ordered)
}

// filterPathsWithParent drops bin paths with no parent directory ("/" or
// ""), matching original_source's `.filter(|p| p.parent().is_some())` in
// list_paths. The original gives no rationale for the filter; preserved
// verbatim to match observable behavior rather than removed.
func filterPathsWithParent(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" || p == "/" || filepath.Dir(p) == p {
			continue
		}
		out = append(out, p)
	}
	return out
}

func dedupStable(ss []string) []string {
	seen := make(map[string]bool, len(ss))
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GenerateShellLines formats the composed Result as shell export
// statements for the given Formatter, one export per line with PATH
// last.
func GenerateShellLines(res Result, f Formatter) []string {
	keys := make([]string, 0, len(res.Env))
	for k := range res.Env {
		if k == "PATH" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		lines = append(lines, f.ExportVar(k, toShellPath(res.Env[k])))
	}
	if len(res.Path) > 0 {
		shellDirs := make([]string, len(res.Path))
		for i, d := range res.Path {
			shellDirs[i] = toShellPath(d)
		}
		lines = append(lines, f.ExportPath(shellDirs))
	}
	return lines
}

// toShellPath rewrites an absolute path under $HOME to the portable
// $HOME/... form.
func toShellPath(p string) string {
	home := homeDir()
	if home != "" && strings.HasPrefix(p, home+"/") {
		return shellHome + "/" + p[len(home)+1:]
	}
	if p == home && home != "" {
		return shellHome
	}
	return p
}
