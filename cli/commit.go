package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var commitCmd = &cobra.Command{
	Use:   "commit <directory>",
	Short: "Import a directory tree into the store",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		defer s.Close()

		d, err := s.CommitDirectory(args[0])
		if err != nil {
			fatalf("commit: %v", err)
		}
		fmt.Println(d.String())
	},
}
