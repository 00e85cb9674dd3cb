package toolset

import "github.com/kagenomi/tvm/internal/backend"

// VersionList is, for one backend identifier within one Toolset layer,
// an ordered list of requests and, after resolution, a parallel ordered
// list of resolved versions. Source is preserved from the requests that
// built it.
type VersionList struct {
	ID       backend.Identifier
	Requests []Request
	Versions []Version // empty until Resolve; same length/order as Requests once resolved
}

// NewVersionList builds an empty VersionList for id.
func NewVersionList(id backend.Identifier) *VersionList {
	return &VersionList{ID: id}
}

// Add appends a request, preserving insertion order.
func (l *VersionList) Add(r Request) {
	l.Requests = append(l.Requests, r)
}

// Latest returns the most recently added request, or false if empty.
func (l *VersionList) Latest() (Request, bool) {
	if len(l.Requests) == 0 {
		return nil, false
	}
	return l.Requests[len(l.Requests)-1], true
}

// Clone returns a deep-enough copy for merge purposes (slices copied,
// requests are immutable value types so they are shared safely).
func (l *VersionList) Clone() *VersionList {
	out := &VersionList{ID: l.ID}
	out.Requests = append(out.Requests, l.Requests...)
	out.Versions = append(out.Versions, l.Versions...)
	return out
}
