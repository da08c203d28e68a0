package version

import (
	"fmt"
	"runtime"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/histsync/errors"
)

// Build information. These variables are set at build time via ldflags.
var (
	// CommitHash is the git commit hash when the binary was built
	CommitHash = "dev"

	// BuildTime is when the binary was built
	BuildTime = "unknown"

	// Version is the semantic version (if tagged)
	Version = "dev"
)

// Protocol is the version of the sync HTTP API spoken by this build. Client
// and server interoperate when Compatible reports true.
const Protocol = "0.1.0"

// Header carries Protocol on every sync server response.
const Header = "X-Histsync-Version"

// Info contains version and build information
type Info struct {
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Version    string `json:"version"`
	Protocol   string `json:"protocol"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// Get returns the current version information
func Get() Info {
	return Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		Protocol:   Protocol,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns a human-readable version string
func (i Info) String() string {
	if i.Version != "dev" {
		return fmt.Sprintf("histsync %s (protocol %s, commit %s, built %s)", i.Version, i.Protocol, i.CommitHash, i.BuildTime)
	}
	return fmt.Sprintf("histsync dev (protocol %s, commit %s, built %s)", i.Protocol, i.CommitHash, i.BuildTime)
}

// Short returns a short version string with just the commit hash
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}

// UserAgent is sent by the sync client.
func UserAgent() string {
	return "histsync/" + Version
}

// CheckCompatible reports whether a peer speaking protocol remote can sync
// with this build. Majors must match; while the major is 0 minors must match too.
func CheckCompatible(remote string) error {
	local, err := semver.NewVersion(Protocol)
	if err != nil {
		return errors.Wrapf(err, "invalid local protocol version %s", Protocol)
	}
	remoteVer, err := semver.NewVersion(remote)
	if err != nil {
		return errors.Wrapf(err, "invalid remote protocol version %q", remote)
	}

	expr := fmt.Sprintf("^%d.0.0", local.Major())
	if local.Major() == 0 {
		expr = fmt.Sprintf("~0.%d.0", local.Minor())
	}
	constraint, err := semver.NewConstraint(expr)
	if err != nil {
		return errors.Wrapf(err, "invalid version constraint %s", expr)
	}

	if !constraint.Check(remoteVer) {
		return errors.WithHintf(
			errors.Newf("server speaks protocol %s, but this client requires %s", remote, expr),
			"upgrade whichever side is older; this build is %s", Get())
	}
	return nil
}
