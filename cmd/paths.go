package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
)

const appDirName = "pagescope"

// getDataDir returns the per-user data directory for the current OS.
// On Linux/Unix it follows the XDG Base Directory layout.
func getDataDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		baseDir = os.Getenv("LOCALAPPDATA")
		if baseDir == "" {
			baseDir = os.Getenv("APPDATA")
		}
		if baseDir == "" {
			return "", fmt.Errorf("could not determine Windows data directory")
		}
		baseDir = filepath.Join(baseDir, appDirName)

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, "Library", "Application Support", appDirName)

	default:
		// $XDG_DATA_HOME/pagescope, then ~/.local/share/pagescope
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			baseDir = filepath.Join(xdg, appDirName)
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("could not determine home directory: %w", err)
			}
			baseDir = filepath.Join(homeDir, ".local", "share", appDirName)
		}
	}

	return baseDir, nil
}

// defaultResultsDir is <data dir>/results, falling back to ./results when no
// home directory can be determined.
func defaultResultsDir() (string, error) {
	dataDir, err := getDataDir()
	if err != nil {
		return "./results", nil
	}
	return filepath.Join(dataDir, "results"), nil
}

// configFilePath returns the config file viper loaded, or the default location.
func configFilePath(used string) string {
	if used != "" {
		return used
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "~/" + configName + ".yaml"
	}
	return filepath.Join(homeDir, configName+".yaml")
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), consts.DefaultDirPerm); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, consts.DefaultFilePerm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
