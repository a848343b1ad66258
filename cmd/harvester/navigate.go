package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/compass-harvester/internal/navigation"
	"github.com/jonathan/compass-harvester/internal/pipeline"
)

var navigateCmd = &cobra.Command{
	Use:   "navigate <category path>",
	Short: "Select a category in the analytics page's category picker",
	Long:  `Open the analytics page and walk the category picker to a path such as "Home/Kitchen/Cookware".`,
	Args:  cobra.ExactArgs(1),
	RunE:  runNavigate,
}

func init() {
	rootCmd.AddCommand(navigateCmd)
}

func runNavigate(_ *cobra.Command, args []string) error {
	path := navigation.ParsePath(args[0])
	if len(path) == 0 {
		return fmt.Errorf("empty category path")
	}

	ctx, stop := signalContext()
	defer stop()

	session, err := pipeline.OpenSession(ctx, cfg, componentLog("navigate"))
	if err != nil {
		return err
	}
	defer session.Close() //nolint:errcheck

	ok, err := session.Navigator.NavigateTo(ctx, path)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("category %q not found", args[0])
	}
	current, err := session.Navigator.CurrentCategory(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stdout, "Category: %s\n", current)
	return nil
}
