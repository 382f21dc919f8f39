// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// DataRootEnv overrides the launcher data root.
	DataRootEnv = "NBLAUNCH_DATA_DIR"

	// DefaultNotebookName is the notebook directory used when none is requested.
	DefaultNotebookName = "default_notebook"
)

// DataRoot returns the launcher data root.
//
// Priority:
// 1. NBLAUNCH_DATA_DIR environment variable (if set and non-empty)
// 2. ~/.nblaunch (default)
//
// The returned path is always absolute. Tilde (~) in NBLAUNCH_DATA_DIR is expanded to the
// user's home directory and relative paths are converted to absolute paths.
//
// This function is called during bootstrap (before the config file is loaded) to locate
// the config file itself. After config is loaded, use Config.DataDir for consistency.
//
// Examples:
//
//	NBLAUNCH_DATA_DIR=/srv/notebooks  -> /srv/notebooks
//	NBLAUNCH_DATA_DIR=~/nb            -> /home/user/nb
//	NBLAUNCH_DATA_DIR=relative/path   -> /current/dir/relative/path
//	NBLAUNCH_DATA_DIR not set         -> /home/user/.nblaunch
func DataRoot() string {
	if dataDir := os.Getenv(DataRootEnv); dataDir != "" {
		return ExpandPath(dataDir)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home dir cannot be determined
		return ".nblaunch"
	}
	return filepath.Join(homeDir, ".nblaunch")
}

// ConfDir returns the directory holding launcher-wide state such as the certificate bundle.
// Example: ConfDir() returns ~/.nblaunch/notebook
func ConfDir() string {
	return filepath.Join(DataRoot(), "notebook")
}

// DefaultNotebookDir returns the notebook directory used when a launch names none.
func DefaultNotebookDir() string {
	return filepath.Join(DataRoot(), DefaultNotebookName)
}

// ExpandPath expands ~ and resolves to an absolute path.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path // Return as-is if we can't get home dir
		}
		return filepath.Join(homeDir, strings.TrimPrefix(path[1:], "/"))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
