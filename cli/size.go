package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Report the total size of all stored objects and ref records",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		defer s.Close()

		size, err := s.CalculateCacheSize()
		if err != nil {
			fatalf("size: %v", err)
		}
		fmt.Println(size)
	},
}
