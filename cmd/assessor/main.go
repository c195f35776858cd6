// assessor is the command-line client for the assessment backend: submit a
// generation job, watch or resume it, and export the finished document.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	noColor     bool
	serverURL   string
	sessionFile string
	downloadDir string
)

var rootCmd = &cobra.Command{
	Use:           "assessor",
	Short:         "Generate and export electrical risk assessments",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL(), "backend base URL")
	rootCmd.PersistentFlags().StringVar(&sessionFile, "session-file", "", "path to the session file (default: XDG data dir)")
	rootCmd.PersistentFlags().StringVar(&downloadDir, "download-dir", ".", "directory for exported PDFs")

	rootCmd.AddCommand(submitCmd, watchCmd, statusCmd, cancelCmd, retryCmd, copyCmd, exportCmd, editCmd)
}

func defaultServerURL() string {
	if v := os.Getenv("ASSESSOR_SERVER"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
