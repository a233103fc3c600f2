package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javanhut/ivaldi-cas/internal/colors"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete every object unreachable from any ref",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		defer s.Close()

		freed, err := s.Prune()
		if err != nil {
			fatalf("prune: %v", err)
		}
		fmt.Println(colors.SuccessText(fmt.Sprintf("freed %d bytes", freed)))
	},
}
