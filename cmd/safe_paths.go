package cmd

import (
	"fmt"
	"os"

	consts "github.com/khanhnv2901/pagescope/internal/shared/constants"
	"github.com/khanhnv2901/pagescope/internal/shared/security"
)

const resultsFileName = "results.json"

// validateRunID ensures run identifiers can't be used for path traversal.
func validateRunID(id string) error {
	if err := security.ValidateName(id); err != nil {
		return fmt.Errorf("run ID: %w", err)
	}
	return nil
}

func resolveResultsPath(resultsDir, runID string, parts ...string) (string, error) {
	if err := validateRunID(runID); err != nil {
		return "", err
	}
	return security.ResolveWithin(resultsDir, append([]string{runID}, parts...)...)
}

func ensureRunDir(resultsDir, runID string) (string, error) {
	path, err := resolveResultsPath(resultsDir, runID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(path, consts.DefaultDirPerm); err != nil {
		return "", fmt.Errorf("create results directory: %w", err)
	}
	return path, nil
}
