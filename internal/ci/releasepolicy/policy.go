// Package releasepolicy decides which git refs publish a release build.
package releasepolicy

import (
	"regexp"
	"strings"
)

var stableSemverTagRef = regexp.MustCompile(`^refs/tags/v[0-9]+\.[0-9]+\.[0-9]+$`)

func IsStableSemverTagRef(ref string) bool {
	return stableSemverTagRef.MatchString(ref)
}

// ReleaseVersion returns the version a ref publishes, without the leading
// "v". Pre-release tags and branches publish nothing.
func ReleaseVersion(ref string) (string, bool) {
	if !IsStableSemverTagRef(ref) {
		return "", false
	}
	return strings.TrimPrefix(ref, "refs/tags/v"), true
}
