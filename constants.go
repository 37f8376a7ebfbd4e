package telemd

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

var (
	// Version is the version as described by git.
	Version string

	// ShortName is used as a prefix to binary file names.
	ShortName string

	// LongName is used in file and directory names.
	LongName string

	// UserAgent is sent with every telemetry request.
	UserAgent string
)

// Installation directory prefix and paths. Values are specified by compile-time
// substitution values, and are then set to sane defaults at runtime if the
// value is a zero-value string.
var (
	PrefixDir     string
	BinDir        string
	SbinDir       string
	SysconfDir    string
	LocalstateDir string

	// ConfigDir is a path to a location where configuration data is assumed to
	// be stored. For non-root users, this is set to $XDG_CONFIG_HOME. Otherwise,
	// it gets set to /etc/telemd.
	ConfigDir string

	// StateDir is a path to a location where local state information, such as
	// the device ID, is stored. For non-root users, this is set to
	// $XDG_STATE_HOME. Otherwise, it gets set to /var/lib/telemd.
	StateDir string
)

func init() {
	if PrefixDir == "" {
		PrefixDir = "/usr/local"
	}
	if BinDir == "" {
		BinDir = filepath.Join(PrefixDir, "bin")
	}
	if SbinDir == "" {
		SbinDir = filepath.Join(PrefixDir, "sbin")
	}
	if SysconfDir == "" {
		SysconfDir = filepath.Join(PrefixDir, "etc")
	}
	if LocalstateDir == "" {
		LocalstateDir = filepath.Join(PrefixDir, "var")
	}

	if ShortName == "" {
		ShortName = "telem"
	}
	if LongName == "" {
		LongName = "telemd"
	}
	if UserAgent == "" {
		UserAgent = "ESP32-TCP-Client/1.0"
	}

	if ConfigDir == "" {
		ConfigDir = filepath.Join(SysconfDir, LongName)
		if os.Getuid() > 0 {
			ConfigDir = filepath.Join(xdg.ConfigHome, LongName)
		}
	}
	if StateDir == "" {
		StateDir = filepath.Join(LocalstateDir, "lib", LongName)
		if os.Getuid() > 0 {
			StateDir = filepath.Join(xdg.StateHome, LongName)
		}
	}
}
