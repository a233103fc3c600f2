package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/javanhut/ivaldi-cas/internal/casstore"
	"github.com/javanhut/ivaldi-cas/internal/colors"
	"github.com/javanhut/ivaldi-cas/internal/digest"
)

var checkoutCmd = &cobra.Command{
	Use:   "checkout <hash> <dest>",
	Short: "Materialize a tree digest into a directory, creating it if needed",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		defer s.Close()

		d, err := resolveDigestArg(s, args[0])
		if err != nil {
			fatalf("checkout: %v", err)
		}
		if err := os.MkdirAll(args[1], 0755); err != nil {
			fatalf("checkout: create destination: %v", err)
		}
		if err := s.Checkout(args[1], d); err != nil {
			fatalf("checkout: %v", err)
		}
		fmt.Println(colors.SuccessText("checked out " + d.Hash + " to " + args[1]))
	},
}

// resolveDigestArg turns a bare hash from the command line into a full
// Digest by stat'ing the stored object for its size, since the CLI
// only ever receives a hash, not a (hash, size) pair.
func resolveDigestArg(s *casstore.Store, hash string) (digest.Digest, error) {
	if !digest.Valid(hash) {
		return digest.Digest{}, fmt.Errorf("invalid digest %q", hash)
	}
	path := s.Objects.ObjPath(digest.Digest{Hash: hash})
	info, err := os.Stat(path)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("object %s not found", hash)
	}
	return digest.Digest{Hash: hash, SizeBytes: info.Size()}, nil
}
