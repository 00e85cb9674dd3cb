package toolset

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/kagenomi/tvm/internal/backend"
	tvmerrors "github.com/kagenomi/tvm/internal/errors"
)

// Version is a resolved Request: the originating request, a canonical
// version string, and the paths derived from the backend's install-root
// convention. For any non-System/Path request the canonical string fully
// determines the install paths.
type Version struct {
	Request   Request
	Canonical string
	Paths     backend.ResolvedVersion
}

// Identifier forwards to the originating request's identifier.
func (v Version) Identifier() backend.Identifier { return v.Request.Identifier() }

var devVersionPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+-dev\.[0-9]+\+[0-9a-f]+$`)

// IsDevBuild reports whether raw matches the dev-build version pattern
// used by the reference backend's mirror-URL branch (§4.7).
func IsDevBuild(raw string) bool {
	return devVersionPattern.MatchString(raw)
}

// Resolve selects a concrete Version for req against the versions
// returned by ListRemoteVersions (§4.2):
//   - exact match wins over prefix match;
//   - among prefix candidates, the greatest version by semver ordering wins;
//   - pre-releases are excluded unless the request explicitly names one;
//   - a tie between two otherwise-equal candidates breaks lexicographically
//     on the original string;
//   - Ref/Path/System requests pass through unchanged: Ref encodes as
//     "ref:<value>", Path as the literal path, System has no canonical
//     version.
func Resolve(ctx context.Context, b backend.Backend, req Request, opts ResolveOpts) (Version, error) {
	switch r := req.(type) {
	case RefRequest:
		return Version{Request: r, Canonical: "ref:" + r.Value}, nil
	case PathRequest:
		return Version{Request: r, Canonical: r.Path}, nil
	case SystemRequest:
		return Version{Request: r, Canonical: ""}, nil
	case VersionRequest:
		if r.RawVersion == "" {
			return Version{}, tvmerrors.Wrap(tvmerrors.CategoryInstall, "empty version request", nil)
		}
		remote, err := b.ListRemoteVersions(ctx)
		if err != nil {
			return Version{}, tvmerrors.NewResolutionFailedError(r.Identifier().Full, r.RawVersion, err)
		}
		for _, v := range remote {
			if v == r.RawVersion {
				return Version{Request: r, Canonical: v}, nil
			}
		}
		match, ok := bestPrefixMatch(remote, r.RawVersion, opts)
		if !ok {
			return Version{}, tvmerrors.NewResolutionFailedError(r.Identifier().Full, r.RawVersion, nil)
		}
		return Version{Request: r, Canonical: match}, nil
	case PrefixRequest:
		remote, err := b.ListRemoteVersions(ctx)
		if err != nil {
			return Version{}, tvmerrors.NewResolutionFailedError(r.Identifier().Full, r.Prefix, err)
		}
		match, ok := bestPrefixMatch(remote, r.Prefix, opts)
		if !ok {
			return Version{}, tvmerrors.NewResolutionFailedError(r.Identifier().Full, r.Prefix, nil)
		}
		return Version{Request: r, Canonical: match}, nil
	default:
		return Version{}, tvmerrors.Wrap(tvmerrors.CategoryInstall, "unknown request kind", nil)
	}
}

// ResolveOpts is the resolve_options of the contract (§4.5), e.g.
// allow-prereleases.
type ResolveOpts struct {
	AllowPrerelease bool
}

// bestPrefixMatch finds the greatest semver-ordered candidate in remote
// that has prefix as a dotted prefix (or equals it), excluding
// pre-releases unless allowed or explicitly requested. The prefix
// "latest" admits every remote version as a candidate.
func bestPrefixMatch(remote []string, prefix string, opts ResolveOpts) (string, bool) {
	type candidate struct {
		raw string
		sv  *semver.Version
	}
	var candidates []candidate
	explicitPrerelease := strings.Contains(prefix, "-")
	matchAll := prefix == "latest"

	for _, v := range remote {
		if !matchAll && !hasVersionPrefix(v, prefix) {
			continue
		}
		sv, err := semver.NewVersion(v)
		if err != nil {
			candidates = append(candidates, candidate{raw: v})
			continue
		}
		if sv.Prerelease() != "" && !opts.AllowPrerelease && !explicitPrerelease {
			continue
		}
		candidates = append(candidates, candidate{raw: v, sv: sv})
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		switch {
		case a.sv != nil && b.sv != nil:
			if c := a.sv.Compare(b.sv); c != 0 {
				return c > 0
			}
			return a.raw > b.raw
		case a.sv != nil:
			return true
		case b.sv != nil:
			return false
		default:
			return a.raw > b.raw
		}
	})
	return candidates[0].raw, true
}

func hasVersionPrefix(v, prefix string) bool {
	if v == prefix {
		return true
	}
	return strings.HasPrefix(v, prefix+".")
}

// DedupeSortVersions removes duplicates and sorts remaining entries by
// semantic version descending, with a stable lexicographic tiebreak,
// matching the reference backend's ListRemoteVersions contract (§4.7).
func DedupeSortVersions(versions []string) []string {
	seen := make(map[string]bool, len(versions))
	out := make([]string, 0, len(versions))
	for _, v := range versions {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, erra := semver.NewVersion(out[i])
		b, errb := semver.NewVersion(out[j])
		switch {
		case erra == nil && errb == nil:
			if c := a.Compare(b); c != 0 {
				return c > 0
			}
			return out[i] > out[j]
		case erra == nil:
			return true
		case errb == nil:
			return false
		default:
			return out[i] > out[j]
		}
	})
	return out
}
