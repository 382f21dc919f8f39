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
package main

import (
	"fmt"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	nbconfig "github.com/teradata-labs/nblaunch/pkg/config"
	"github.com/teradata-labs/nblaunch/pkg/notebook"
	"github.com/teradata-labs/nblaunch/pkg/tls"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the TLS certificate used by secure notebooks",
	Long: heredoc.Doc(`
		Create the self-signed certificate used by 'nblaunch launch --secure'.

		The private key, certificate and certtool template are written to
		$NBLAUNCH_DATA_DIR/notebook. Existing files are kept.

		With --encrypt-store, also create an encryption key for a notebook
		directory in the system keyring. Set store.encrypt: true to use it.
	`),
	Args: cobra.NoArgs,
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().Bool("encrypt-store", false, "create a notebook store encryption key in the system keyring")
	setupCmd.Flags().String("directory", "", "notebook directory for --encrypt-store (default: $NBLAUNCH_DATA_DIR/default_notebook)")
	setupCmd.Flags().Bool("show", false, "print the certificate details after setup")
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	l, err := newLauncher(config, out, "")
	if err != nil {
		return err
	}
	if err := l.Setup(cmd.Context()); err != nil {
		return err
	}

	bundle := tls.NewBundle(l.ConfDir())
	fmt.Fprintf(out, "Certificate: %s\nPrivate key: %s\n", bundle.CertFile, bundle.KeyFile)

	if show, _ := cmd.Flags().GetBool("show"); show {
		info, err := tls.Inspect(bundle.CertFile)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Subject: %s\nDomains: %v\nExpires: %s (%d days)\nValid: %t\n",
			info.Subject, info.Domains, info.ExpiresAt.Format("2006-01-02"), info.DaysUntilExpiry, info.Valid)
	}

	if encrypt, _ := cmd.Flags().GetBool("encrypt-store"); encrypt {
		dir, _ := cmd.Flags().GetString("directory")
		if dir == "" {
			dir = nbconfig.DefaultNotebookDir()
		}
		dir = nbconfig.ExpandPath(dir)
		if _, err := notebook.StoreKey(dir, true); err != nil {
			return err
		}
		fmt.Fprintf(out, "Store encryption key saved to the system keyring for %s\n", dir)
	}
	return nil
}
