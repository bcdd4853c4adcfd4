package graph

import (
	"path"
	"strings"
)

// Separator divides FilterPath segments and sidecar Include paths.
const Separator = `\`

// Join appends name to parent. The root (empty) parent yields name itself.
func Join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + Separator + name
}

// Split returns the segments of p. The root has no segments.
func Split(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, Separator)
}

// Base returns the last segment of p.
func Base(p string) string {
	if i := strings.LastIndex(p, Separator); i >= 0 {
		return p[i+1:]
	}
	return p
}

// Parent returns p without its last segment; the parent of a top-level
// filter is the root ("").
func Parent(p string) string {
	if i := strings.LastIndex(p, Separator); i >= 0 {
		return p[:i]
	}
	return ""
}

// Valid reports whether p is a well-formed non-root FilterPath: no empty
// segments.
func Valid(p string) bool {
	if p == "" {
		return false
	}
	for _, seg := range Split(p) {
		if seg == "" {
			return false
		}
	}
	return true
}

// IsWithin reports whether p equals ancestor or is nested under it. The
// separator is the boundary, so "AB" is not within "A". Nothing is within
// the root by prefix; callers handle the root explicitly.
func IsWithin(p, ancestor string) bool {
	if ancestor == "" {
		return false
	}
	return p == ancestor || strings.HasPrefix(p, ancestor+Separator)
}

// Rebase replaces the oldPrefix of p with newPrefix when p is within
// oldPrefix.
func Rebase(p, oldPrefix, newPrefix string) (string, bool) {
	if !IsWithin(p, oldPrefix) {
		return p, false
	}
	rest := strings.TrimPrefix(p, oldPrefix)
	if newPrefix == "" {
		return strings.TrimPrefix(rest, Separator), true
	}
	return newPrefix + rest, true
}

// IncludeToRel converts a sidecar Include value into a clean slash-separated
// workspace-relative path.
func IncludeToRel(include string) string {
	rel := strings.ReplaceAll(include, Separator, "/")
	rel = path.Clean(rel)
	rel = strings.TrimPrefix(rel, "./")
	return rel
}

// RelToInclude converts a slash-separated relative path to sidecar form.
func RelToInclude(rel string) string {
	return strings.ReplaceAll(strings.TrimPrefix(path.Clean(rel), "./"), "/", Separator)
}

// SameInclude compares two Include values the way the sidecar tolerates:
// separator-insensitive and case-insensitive.
func SameInclude(a, b string) bool {
	return strings.EqualFold(IncludeToRel(a), IncludeToRel(b))
}

// IncludeWithin reports whether include is dir or nested under it,
// case-insensitively and on a separator boundary.
func IncludeWithin(include, dir string) bool {
	a := strings.ToLower(IncludeToRel(include))
	d := strings.ToLower(IncludeToRel(dir))
	if d == "." || d == "" {
		return false
	}
	return a == d || strings.HasPrefix(a, d+"/")
}

// Clean drops empty segments and surrounding whitespace so that sloppy
// references such as `Src\\Module\` resolve to `Src\Module`.
func Clean(p string) string {
	var segs []string
	for _, seg := range strings.Split(strings.TrimSpace(p), Separator) {
		if seg != "" {
			segs = append(segs, seg)
		}
	}
	return strings.Join(segs, Separator)
}
