package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javanhut/ivaldi-cas/internal/colors"
)

var diffCmd = &cobra.Command{
	Use:   "diff <hash-a> <hash-b>",
	Short: "Compare two tree digests",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		defer s.Close()

		a, err := resolveDigestArg(s, args[0])
		if err != nil {
			fatalf("diff: %v", err)
		}
		b, err := resolveDigestArg(s, args[1])
		if err != nil {
			fatalf("diff: %v", err)
		}

		modified, removed, added, err := s.DiffTrees(a, b)
		if err != nil {
			fatalf("diff: %v", err)
		}
		for _, p := range added {
			fmt.Println(colors.ColorizeDiffEntry("added", p))
		}
		for _, p := range removed {
			fmt.Println(colors.ColorizeDiffEntry("removed", p))
		}
		for _, p := range modified {
			fmt.Println(colors.ColorizeDiffEntry("modified", p))
		}
	},
}
