package etna

import "github.com/Masterminds/semver/v3"

// Version is the current client version.
const Version = "0.1.0"

// MinClusterVersion is the oldest engine version the client has been
// tested against. Membership refreshes skip nodes reporting an older
// version so requests never route to a node speaking an incompatible
// wire dialect.
const MinClusterVersion = "5.0.0"

var minClusterVersion = semver.MustParse(MinClusterVersion)

// SupportedClusterVersion reports whether a node version string is at
// least [MinClusterVersion]. Unparseable versions pass, so a cluster
// with an exotic build tag is not silently dropped from the pool.
func SupportedClusterVersion(v string) bool {
	ver, err := semver.NewVersion(v)
	if err != nil {
		return true
	}
	return !ver.LessThan(minClusterVersion)
}
