// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataRoot(t *testing.T) {
	t.Run("default to ~/.nblaunch", func(t *testing.T) {
		t.Setenv(DataRootEnv, "")

		homeDir, err := os.UserHomeDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(homeDir, ".nblaunch"), DataRoot())
	})

	t.Run("use NBLAUNCH_DATA_DIR when set", func(t *testing.T) {
		t.Setenv(DataRootEnv, "/custom/nb/data")

		assert.Equal(t, "/custom/nb/data", DataRoot())
	})

	t.Run("expand ~ in NBLAUNCH_DATA_DIR", func(t *testing.T) {
		t.Setenv(DataRootEnv, "~/custom/.nblaunch")

		homeDir, err := os.UserHomeDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(homeDir, "custom", ".nblaunch"), DataRoot())
	})

	t.Run("make relative path absolute", func(t *testing.T) {
		t.Setenv(DataRootEnv, "relative/path")

		dataDir := DataRoot()
		assert.True(t, filepath.IsAbs(dataDir))
		assert.True(t, strings.HasSuffix(dataDir, filepath.Join("relative", "path")))
	})
}

func TestDerivedDirs(t *testing.T) {
	t.Setenv(DataRootEnv, "/srv/nb")

	assert.Equal(t, filepath.Join("/srv/nb", "notebook"), ConfDir())
	assert.Equal(t, filepath.Join("/srv/nb", DefaultNotebookName), DefaultNotebookDir())
}

func TestExpandPath_Tilde(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, homeDir, ExpandPath("~"))
	assert.Equal(t, filepath.Join(homeDir, "a", "b"), ExpandPath("~/a/b"))
}
