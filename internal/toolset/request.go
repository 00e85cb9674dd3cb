package toolset

import (
	"fmt"

	"github.com/kagenomi/tvm/internal/backend"
)

// RefKind distinguishes the three source-control reference flavors a
// RefRequest may carry.
type RefKind string

const (
	RefTag    RefKind = "tag"
	RefBranch RefKind = "branch"
	RefRev    RefKind = "rev"
)

// Request is a desired version specification for one tool. It is a
// sealed tagged union: the concrete kinds below are the only
// implementations, matched via a type switch rather than inheritance,
// the way tomei favors capability interfaces over hierarchies.
type Request interface {
	Identifier() backend.Identifier
	Options() Options
	Source() Source
	// Raw returns the original, unparsed request string for diagnostics
	// and for canonical-version fallback when a backend has no opinion.
	Raw() string
	isRequest()
}

type base struct {
	id     backend.Identifier
	opts   Options
	source Source
}

func (b base) Identifier() backend.Identifier { return b.id }
func (b base) Options() Options               { return b.opts }
func (b base) Source() Source                 { return b.source }
func (base) isRequest()                       {}

// VersionRequest asks for a concrete or partial version string such as
// "20", "20.5.1", or "latest".
type VersionRequest struct {
	base
	RawVersion string
}

func (r VersionRequest) Raw() string { return r.RawVersion }

// NewVersionRequest builds a VersionRequest.
func NewVersionRequest(id backend.Identifier, raw string, opts Options, src Source) VersionRequest {
	return VersionRequest{base: base{id: id, opts: opts, source: src}, RawVersion: raw}
}

// PrefixRequest resolves to the newest remote version matching Prefix.
type PrefixRequest struct {
	base
	Prefix string
}

func (r PrefixRequest) Raw() string { return r.Prefix }

// NewPrefixRequest builds a PrefixRequest.
func NewPrefixRequest(id backend.Identifier, prefix string, opts Options, src Source) PrefixRequest {
	return PrefixRequest{base: base{id: id, opts: opts, source: src}, Prefix: prefix}
}

// RefRequest pins a source-control reference (tag, branch, or revision).
type RefRequest struct {
	base
	Kind  RefKind
	Value string
}

func (r RefRequest) Raw() string { return fmt.Sprintf("%s:%s", r.Kind, r.Value) }

// NewRefRequest builds a RefRequest.
func NewRefRequest(id backend.Identifier, kind RefKind, value string, opts Options, src Source) RefRequest {
	return RefRequest{base: base{id: id, opts: opts, source: src}, Kind: kind, Value: value}
}

// PathRequest uses a local directory as the install root, bypassing
// download/install entirely.
type PathRequest struct {
	base
	Path string
}

func (r PathRequest) Raw() string { return r.Path }

// NewPathRequest builds a PathRequest.
func NewPathRequest(id backend.Identifier, path string, opts Options, src Source) PathRequest {
	return PathRequest{base: base{id: id, opts: opts, source: src}, Path: path}
}

// SystemRequest defers to an externally managed binary already on PATH.
// It is never installed and never contributes env or PATH entries.
type SystemRequest struct {
	base
}

func (r SystemRequest) Raw() string { return "system" }

// NewSystemRequest builds a SystemRequest.
func NewSystemRequest(id backend.Identifier, opts Options, src Source) SystemRequest {
	return SystemRequest{base: base{id: id, opts: opts, source: src}}
}

// IsSystem reports whether r is a SystemRequest.
func IsSystem(r Request) bool {
	_, ok := r.(SystemRequest)
	return ok
}

// refPrefixes is the generic, backend-opt-in table of recognized
// "prefix:value" shorthand that RewriteRefPrefix turns into a synthetic
// RefRequest when config files are loaded. The original sources
// special-case this only for "cargo:"; this design generalizes it (see
// DESIGN.md, Open Question #1) so any backend may register the
// prefixes it wants rewritten.
var refPrefixes = map[RefKind]string{
	RefTag:    "tag:",
	RefBranch: "branch:",
	RefRev:    "rev:",
}

// refPrefixBackends is the set of backend short names that opt into the
// ref-prefix rewrite. It is filled only through RegisterRefPrefixBackend;
// no backend package in this module calls it, so the set starts empty.
var refPrefixBackends = map[string]bool{}

// RegisterRefPrefixBackend opts a backend's short name into the
// tag:/branch:/rev: shorthand rewrite.
func RegisterRefPrefixBackend(short string) {
	refPrefixBackends[short] = true
}

// RewriteRefPrefix inspects raw for a registered ref-type prefix and, if
// id's short name opted in, returns the equivalent RefRequest. ok is
// false when no rewrite applies and the raw string should be treated as
// an ordinary version request.
func RewriteRefPrefix(id backend.Identifier, raw string, opts Options, src Source) (RefRequest, bool) {
	if !refPrefixBackends[id.Short] {
		return RefRequest{}, false
	}
	for kind, prefix := range refPrefixes {
		if len(raw) > len(prefix) && raw[:len(prefix)] == prefix {
			return NewRefRequest(id, kind, raw[len(prefix):], opts, src), true
		}
	}
	return RefRequest{}, false
}
