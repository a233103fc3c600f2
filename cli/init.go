package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/javanhut/ivaldi-cas/internal/casstore"
	"github.com/javanhut/ivaldi-cas/internal/colors"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new CAS store",
	Long:  "Creates the objects, refs, and tmp directories for a new store",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 0 {
			fatalf("init takes no arguments, %d given", len(args))
		}
		if _, err := casstore.Init(storeRoot); err != nil {
			fatalf("init: %v", err)
		}
		fmt.Println(colors.SuccessText(fmt.Sprintf("initialized CAS store at %s", storeRoot)))
	},
}
