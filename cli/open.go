package cli

import (
	"github.com/javanhut/ivaldi-cas/internal/casstore"
	"github.com/javanhut/ivaldi-cas/internal/colors"
)

// openStore opens storeRoot or fatally exits, used by every subcommand
// except init. A config with color.ui set to false turns color off.
func openStore() *casstore.Store {
	s, err := casstore.Open(storeRoot)
	if err != nil {
		fatalf("open store at %s: %v", storeRoot, err)
	}
	if !s.Config.Color.UI {
		colors.SetColorEnabled(false)
	}
	return s
}
