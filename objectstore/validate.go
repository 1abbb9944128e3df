package objectstore

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/blang/semver/v4"
)

// MaxNameLen is the maximum object name length in bytes.
const MaxNameLen = 255

// ValidateName checks an object name.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case len(name) > MaxNameLen:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, MaxNameLen)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, "/\x00"):
		return fmt.Errorf("%w: %q contains '/' or NUL", ErrInvalidName, name)
	case !utf8.ValidString(name):
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidName)
	}
	return nil
}

// parseVersion parses v leniently, so "1.0" and "1.10" are accepted.
func parseVersion(v string) (semver.Version, error) {
	if strings.TrimSpace(v) == "" {
		return semver.Version{}, fmt.Errorf("%w: empty", ErrInvalidVersion)
	}
	sv, err := semver.ParseTolerant(v)
	if err != nil {
		return semver.Version{}, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, v, err)
	}
	return sv, nil
}

// CompareVersions returns -1, 0 or 1 as a is less than, equal to or greater than b.
func CompareVersions(a, b string) (int, error) {
	va, err := parseVersion(a)
	if err != nil {
		return 0, err
	}
	vb, err := parseVersion(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

// childPath derives the informational path of a child.
func childPath(parentPath, name string) string {
	return strings.TrimSuffix(parentPath, "/") + "/" + name
}

// renamedPath replaces the last element of p with name.
func renamedPath(p, name string) string {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return "/" + name
	}
	return p[:i] + "/" + name
}
