package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Add a single file to the store",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		defer s.Close()

		d, err := s.AddFile(args[0])
		if err != nil {
			fatalf("add: %v", err)
		}
		fmt.Println(d.String())
	},
}
