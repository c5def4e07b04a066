// Package semver compares mod version strings using semantic-version
// ordering rather than lexical comparison.
package semver

import (
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

// Relation is the outcome of comparing a local version against a remote one.
type Relation int

const (
	Behind Relation = iota - 1
	Identical
	Ahead
)

func (r Relation) String() string {
	switch r {
	case Behind:
		return "behind"
	case Ahead:
		return "ahead"
	default:
		return "identical"
	}
}

// Compare orders local against remote. Pre-release qualifiers participate in
// the ordering ("1.2.0-rc.1" < "1.2.0"). Either side failing to parse yields
// an InvalidVersionError; callers treat that as skip-with-warning.
func Compare(local string, remote string) (Relation, error) {
	localVersion, err := parse(local)
	if err != nil {
		return Identical, err
	}
	remoteVersion, err := parse(remote)
	if err != nil {
		return Identical, err
	}

	switch localVersion.Compare(remoteVersion) {
	case -1:
		return Behind, nil
	case 1:
		return Ahead, nil
	default:
		return Identical, nil
	}
}

// SameFamily reports whether two versions share a major.minor family.
// "1.19.8" and "1.19.3" are family-equal, "1.19.8" and "1.20.0" are not.
func SameFamily(a string, b string) (bool, error) {
	versionA, err := parse(a)
	if err != nil {
		return false, err
	}
	versionB, err := parse(b)
	if err != nil {
		return false, err
	}
	return versionA.Major() == versionB.Major() && versionA.Minor() == versionB.Minor(), nil
}

// IsPrerelease reports whether a version carries a pre-release qualifier.
func IsPrerelease(version string) (bool, error) {
	parsed, err := parse(version)
	if err != nil {
		return false, err
	}
	return parsed.Prerelease() != "", nil
}

// Complete pads a version string to three components ("1.19" -> "1.19.0").
func Complete(version string) string {
	base := version
	rest := ""
	if idx := strings.IndexAny(version, "-+"); idx >= 0 {
		base = version[:idx]
		rest = version[idx:]
	}
	parts := strings.Split(base, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	return strings.Join(parts, ".") + rest
}

func parse(raw string) (*masterminds.Version, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "v")
	parsed, err := masterminds.NewVersion(Complete(trimmed))
	if err != nil {
		return nil, &InvalidVersionError{Version: raw, Err: err}
	}
	return parsed, nil
}
