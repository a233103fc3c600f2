package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var extractSubdir string

var extractCmd = &cobra.Command{
	Use:   "extract <hash> <dest-root>",
	Short: "Atomically materialize a tree digest under dest-root/<hash>",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		defer s.Close()

		d, err := resolveDigestArg(s, args[0])
		if err != nil {
			fatalf("extract: %v", err)
		}
		path, err := s.Extract(args[1], d, extractSubdir)
		if err != nil {
			fatalf("extract: %v", err)
		}
		fmt.Println(path)
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractSubdir, "subdir", "", "extract only this subdirectory of the tree")
}
