// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package uiutil holds the launcher's small terminal and desktop helpers.
package uiutil

import (
	"os/exec"
	"runtime"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/atotto/clipboard"
)

// OpenURL asks the desktop to open url in a browser. It does not wait for the
// browser to exit.
func OpenURL(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		// #nosec G204 -- Intentional: url is built by the launcher, not user shell input
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// CopyToClipboard places text on the system clipboard.
func CopyToClipboard(text string) error {
	return clipboard.WriteAll(text)
}

var (
	noticeStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 2)

	warningStyle = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("11")).
			Foreground(lipgloss.Color("11")).
			Padding(0, 2)
)

// NoticeBox frames lines in a rounded box.
func NoticeBox(lines ...string) string {
	return noticeStyle.Render(strings.Join(lines, "\n"))
}

// WarningBox frames lines in a highlighted box.
func WarningBox(lines ...string) string {
	return warningStyle.Render(strings.Join(lines, "\n"))
}
