// Package cli implements the cas command-line tool: a thin cobra
// wrapper over internal/casstore. Grounded on the teacher's cli/cli.go
// root command/Execute/init registration pattern, trimmed from a full
// VCS command tree down to the CAS operations this store supports.
package cli

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/javanhut/ivaldi-cas/internal/colors"
)

const Version = "0.1.0"

var (
	version   bool
	storeRoot string
)

var rootCmd = &cobra.Command{
	Use:   "cas",
	Short: "cas is a content-addressed artifact store",
	Long:  "cas stores and retrieves build artifacts by the SHA-256 digest of their content.",
	Run: func(cmd *cobra.Command, args []string) {
		if version {
			fmt.Printf("cas version %s\n", Version)
			os.Exit(0)
		}
		cmd.Help()
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeRoot, "store", ".cas", "path to the CAS store root")
	rootCmd.Flags().BoolVar(&version, "version", false, "print the cas version")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(checkoutCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(sizeCmd)

	rootCmd.AddCommand(refCmd)
	refCmd.AddCommand(refSetCmd, refGetCmd, refListCmd, refRemoveCmd, refCleanCmd)
}

func fatalf(format string, args ...interface{}) {
	log.Fatal(colors.ErrorText(fmt.Sprintf(format, args...)))
}
