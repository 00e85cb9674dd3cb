// Package config loads the already-parsed tool-request stream the
// core engine consumes: a YAML tool-request document, or a
// line-oriented ".tool-versions"-style file, each turned into
// []toolset.Request plus the env/path declarations envcompose.Input
// expects. Parsing itself stays a thin collaborator outside the core
// engine's tested surface, kept separate from toolset resolution and
// install scheduling.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/kagenomi/tvm/internal/backend"
	tvmerrors "github.com/kagenomi/tvm/internal/errors"
	"github.com/kagenomi/tvm/internal/toolset"
)

// Document is the YAML shape of a tool-request file:
//
//	tools:
//	  node: "20"
//	  zig: "ref:master"
//	env:
//	  NODE_ENV: production
//	path_dirs:
//	  - ./scripts
type Document struct {
	Tools    map[string]string `yaml:"tools"`
	Env      map[string]string `yaml:"env"`
	PathDirs []string          `yaml:"path_dirs"`
}

// IdentifierLookup resolves a tool name from a config document to the
// backend.Identifier that owns it. The config package has no registry
// of its own — the caller (cmd/tvm's backend wiring) supplies this, the
// same decoupling internal/backends/aqua uses for its registry ref.
type IdentifierLookup func(name string) (backend.Identifier, bool)

// Loaded is the parsed result of a config document: the tool requests
// it declares and its env/path contributions.
type Loaded struct {
	Requests []toolset.Request
	Env      map[string]string
	PathDirs []string
}

// LoadYAMLFile reads and parses a YAML tool-request document at path.
func LoadYAMLFile(path string, lookup IdentifierLookup) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return LoadYAML(data, lookup)
}

// LoadYAML parses a YAML tool-request document from data.
func LoadYAML(data []byte, lookup IdentifierLookup) (Loaded, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Loaded{}, tvmerrors.NewConfigError("failed to parse yaml tool-request document", err)
	}

	requests, err := toRequests(doc.Tools, lookup, toolset.SourceConfigFile)
	if err != nil {
		return Loaded{}, err
	}

	return Loaded{
		Requests: requests,
		Env:      doc.Env,
		PathDirs: doc.PathDirs,
	}, nil
}

// LoadToolVersionsFile reads a ".tool-versions"-style file: one
// "name version" pair per line, blank lines and "#"-prefixed comments
// ignored. It carries no env or path_dirs section.
func LoadToolVersionsFile(path string, lookup IdentifierLookup) (Loaded, error) {
	f, err := os.Open(path)
	if err != nil {
		return Loaded{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	tools := map[string]string{}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return Loaded{}, tvmerrors.NewConfigErrorAt(path, lineNo, 0, "expected \"name version\" pair", nil).WithContext(line)
		}
		tools[fields[0]] = fields[1]
	}
	if err := scanner.Err(); err != nil {
		return Loaded{}, fmt.Errorf("config: scan %s: %w", path, err)
	}

	requests, err := toRequests(tools, lookup, toolset.SourceConfigFile)
	if err != nil {
		return Loaded{}, err
	}
	return Loaded{Requests: requests}, nil
}

// toRequests turns a name->raw-version map into concrete Request
// values, dispatching to a RefRequest when the backend has opted into
// tag:/branch:/rev: shorthand (toolset.RewriteRefPrefix), a
// SystemRequest for the literal "system", a PrefixRequest for a
// trailing-dot prefix like "20.", and a VersionRequest otherwise.
func toRequests(tools map[string]string, lookup IdentifierLookup, src toolset.Source) ([]toolset.Request, error) {
	var requests []toolset.Request
	for name, raw := range tools {
		id, ok := lookup(name)
		if !ok {
			return nil, tvmerrors.NewValidationError(name, "name", "a tool registered in the backend registry", name)
		}
		opts := toolset.NewOptions()

		if ref, ok := toolset.RewriteRefPrefix(id, raw, opts, src); ok {
			requests = append(requests, ref)
			continue
		}
		if raw == "system" {
			requests = append(requests, toolset.NewSystemRequest(id, opts, src))
			continue
		}
		if strings.HasSuffix(raw, ".") {
			requests = append(requests, toolset.NewPrefixRequest(id, strings.TrimSuffix(raw, "."), opts, src))
			continue
		}
		requests = append(requests, toolset.NewVersionRequest(id, raw, opts, src))
	}
	return requests, nil
}
