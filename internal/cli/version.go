package cli

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set via -ldflags at build time. Commit falls back to the VCS revision the
// Go toolchain stamps into the binary.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

func currentBuild() BuildInfo {
	b := BuildInfo{Version: Version, Commit: Commit, BuildDate: BuildDate, GoVersion: runtime.Version()}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch {
			case s.Key == "vcs.revision" && b.Commit == "unknown":
				b.Commit = shortRevision(s.Value)
			case s.Key == "vcs.time" && b.BuildDate == "unknown":
				b.BuildDate = s.Value
			}
		}
	}
	return b
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

var versionJSON bool

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print build information as JSON")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		b := currentBuild()
		out := cmd.OutOrStdout()
		if versionJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(b)
		}
		fmt.Fprintf(out, "calibrator %s (commit %s, built %s, %s)\n", b.Version, b.Commit, b.BuildDate, b.GoVersion)
		return nil
	},
}

// VersionString is the short form reported by the health endpoint.
func VersionString() string {
	b := currentBuild()
	return fmt.Sprintf("%s (%s)", b.Version, b.Commit)
}
