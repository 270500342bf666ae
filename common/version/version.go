package version

import (
	"github.com/blang/semver"
)

var CURRENT_VERSION = semver.MustParse("0.4.0")

//	Compatible reports whether a daemon at version other speaks the same
//	control API as this build.
func Compatible(other semver.Version) bool {
	return other.Major == CURRENT_VERSION.Major && other.Minor == CURRENT_VERSION.Minor
}
