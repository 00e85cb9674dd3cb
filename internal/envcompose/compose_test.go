package envcompose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestPathCompositionLiteralScenario checks PATH composition across
// two tool layers with no config dirs or venv: tool bin paths come
// before the pre-existing PATH, in Toolset order.
func TestPathCompositionLiteralScenario(t *testing.T) {
	res, err := Compose(Input{
		PristineEnv: map[string]string{"PATH": "/usr/bin"},
		Tools: []ToolEnv{
			{Identifier: "node", BinPaths: []string{"/i/node/20/bin"}},
			{Identifier: "python", BinPaths: []string{"/i/python/3.12/bin"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/i/node/20/bin", "/i/python/3.12/bin", "/usr/bin"}, res.Path)
}

func TestPathCompositionWithConfigAndVenv(t *testing.T) {
	res, err := Compose(Input{
		PristineEnv:    map[string]string{"PATH": "/usr/bin"},
		ConfigPathDirs: []string{"/config/dir"},
		VenvPath:       "/venv/bin",
		Tools: []ToolEnv{
			{Identifier: "node", BinPaths: []string{"/i/node/20/bin"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/config/dir", "/venv/bin", "/i/node/20/bin", "/usr/bin"}, res.Path)
}

// TestManagedAddPathRewrite verifies MISE_ADD_PATH/RTX_ADD_PATH keys
// from exec_env are removed and their values appended to PATH instead
// of being exported as-is.
func TestManagedAddPathRewrite(t *testing.T) {
	res, err := Compose(Input{
		PristineEnv: map[string]string{"PATH": "/usr/bin"},
		Tools: []ToolEnv{
			{Identifier: "rust", Env: map[string]string{
				"MISE_ADD_PATH": "/i/rust/stable/cargo-bin",
				"CARGO_HOME":    "/i/rust/stable/.cargo",
			}},
		},
	})
	require.NoError(t, err)
	_, hasAddPath := res.Env["MISE_ADD_PATH"]
	assert.False(t, hasAddPath, "MISE_ADD_PATH must not be exported directly")
	assert.Equal(t, "/i/rust/stable/.cargo", res.Env["CARGO_HOME"])
	assert.Contains(t, res.Path, "/i/rust/stable/cargo-bin")
}

// TestExecEnvPathExclusion verifies no PATH key from exec_env ever
// reaches the composed env map directly.
func TestExecEnvPathExclusion(t *testing.T) {
	res, err := Compose(Input{
		PristineEnv: map[string]string{"PATH": "/usr/bin"},
		Tools: []ToolEnv{
			{Identifier: "go", Env: map[string]string{"PATH": "/should/not/leak"}},
		},
	})
	require.NoError(t, err)
	assert.NotContains(t, res.Path, "/should/not/leak")
}

// TestExecEnvPathExclusionCaseInsensitive verifies the exec_env PATH
// exclusion matches regardless of key case (e.g. a backend reporting
// "Path" on Windows), not just the literal "PATH".
func TestExecEnvPathExclusionCaseInsensitive(t *testing.T) {
	res, err := Compose(Input{
		PristineEnv: map[string]string{"PATH": "/usr/bin"},
		Tools: []ToolEnv{
			{Identifier: "go", Env: map[string]string{"Path": "/should/not/leak"}},
		},
	})
	require.NoError(t, err)
	assert.NotContains(t, res.Path, "/should/not/leak")
	_, hasPath := res.Env["Path"]
	assert.False(t, hasPath, "Path must not be exported directly")
}

// TestManagedToolOptsStripped verifies pristine-layer MISE_TOOL_OPTS__*
// / RTX_TOOL_OPTS__* keys are dropped.
func TestManagedToolOptsStripped(t *testing.T) {
	res, err := Compose(Input{
		PristineEnv: map[string]string{
			"PATH":                  "/usr/bin",
			"MISE_TOOL_OPTS__node":  "exe=node",
			"RTX_TOOL_OPTS__python": "exe=python3",
			"SOME_OTHER_VAR":        "kept",
		},
	})
	require.NoError(t, err)
	_, hasMise := res.Env["MISE_TOOL_OPTS__node"]
	_, hasRtx := res.Env["RTX_TOOL_OPTS__python"]
	assert.False(t, hasMise)
	assert.False(t, hasRtx)
	assert.Equal(t, "kept", res.Env["SOME_OTHER_VAR"])
}

func TestPostEnvTemplateEvaluation(t *testing.T) {
	res, err := Compose(Input{
		PristineEnv: map[string]string{"PATH": "/usr/bin"},
		ConfigEnv:   map[string]string{"BASE_DIR": "/data"},
		PostEnv: map[string]string{
			"DERIVED": "{{ .Env.BASE_DIR }}/derived",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "/data/derived", res.Env["DERIVED"])
}

// TestPropertyPathNoDup checks that PATH never contains duplicate
// directories regardless of how many tools contribute overlapping
// bin paths.
func TestPropertyPathNoDup(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dirGen := rapid.StringMatching(`/[a-z]{1,6}`)
		n := rapid.IntRange(0, 10).Draw(rt, "n")
		dirs := make([]string, n)
		for i := range dirs {
			dirs[i] = dirGen.Draw(rt, "dir")
		}

		tools := make([]ToolEnv, 0)
		for i, d := range dirs {
			if i%2 == 0 {
				tools = append(tools, ToolEnv{Identifier: "t", BinPaths: []string{d}})
			}
		}

		res, err := Compose(Input{
			PristineEnv: map[string]string{"PATH": dirsToPath(dirs)},
			Tools:       tools,
		})
		require.NoError(rt, err)

		seen := map[string]bool{}
		for _, d := range res.Path {
			assert.False(rt, seen[d], "PATH must not contain duplicates")
			seen[d] = true
		}
	})
}

// TestBinPathsWithoutParentDropped verifies the original_source
// list_paths filter (paths with no parent directory, e.g. "/" or "")
// never reach the composed PATH.
func TestBinPathsWithoutParentDropped(t *testing.T) {
	res, err := Compose(Input{
		PristineEnv: map[string]string{"PATH": "/usr/bin"},
		Tools: []ToolEnv{
			{Identifier: "weird", BinPaths: []string{"/", "", "/i/weird/1.0/bin"}},
		},
	})
	require.NoError(t, err)
	assert.NotContains(t, res.Path, "/")
	assert.Contains(t, res.Path, "/i/weird/1.0/bin")
}

func dirsToPath(dirs []string) string {
	out := ""
	for i, d := range dirs {
		if i > 0 {
			out += ":"
		}
		out += d
	}
	return out
}
