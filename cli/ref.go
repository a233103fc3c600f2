package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/javanhut/ivaldi-cas/internal/colors"
)

var cleanBeforeDuration string

var refCmd = &cobra.Command{
	Use:   "ref",
	Short: "Manage named pointers to a tree digest",
}

var refSetCmd = &cobra.Command{
	Use:   "set <ref> <hash>",
	Short: "Point a ref at a tree digest",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		defer s.Close()

		d, err := resolveDigestArg(s, args[1])
		if err != nil {
			fatalf("ref set: %v", err)
		}
		if err := s.SetRef(args[0], d); err != nil {
			fatalf("ref set: %v", err)
		}
		fmt.Println(colors.SuccessText(fmt.Sprintf("%s -> %s", args[0], d.Hash)))
	},
}

var refGetCmd = &cobra.Command{
	Use:   "get <ref>",
	Short: "Resolve a ref to its tree digest",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		defer s.Close()

		d, err := s.ResolveRef(args[0])
		if err != nil {
			fatalf("ref get: %v", err)
		}
		fmt.Println(d.Hash)
	},
}

var refListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every ref, least-recently-modified first",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		defer s.Close()

		refs, err := s.ListRefs()
		if err != nil {
			fatalf("ref list: %v", err)
		}
		for _, r := range refs {
			fmt.Printf("%s\t%s\n", r.Name, time.Unix(r.Mtime, 0).Format(time.RFC3339))
		}
	},
}

var refRemoveCmd = &cobra.Command{
	Use:   "rm <ref>",
	Short: "Delete a ref",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		defer s.Close()

		if err := s.RemoveRef(args[0]); err != nil {
			fatalf("ref rm: %v", err)
		}
	},
}

var refCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove refs older than --before",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		defer s.Close()

		age, err := time.ParseDuration(cleanBeforeDuration)
		if err != nil {
			fatalf("ref clean: invalid --before duration %q: %v", cleanBeforeDuration, err)
		}
		if minAge := time.Duration(s.Config.Store.PruneMinAgeSeconds) * time.Second; age < minAge {
			age = minAge
		}
		cutoff := time.Now().Add(-age).Unix()

		removed, err := s.CleanRefsUntil(cutoff)
		if err != nil {
			fatalf("ref clean: %v", err)
		}
		for _, r := range removed {
			fmt.Println(colors.Removed(r))
		}
	},
}

func init() {
	refCleanCmd.Flags().StringVar(&cleanBeforeDuration, "before", "720h", "remove refs not modified within this duration")
}
