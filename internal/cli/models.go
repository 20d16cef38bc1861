package cli

import (
	"fmt"

	"github.com/fmueller/voxsrt/internal/engine"
	"github.com/spf13/cobra"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the engine models that can be selected with --model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows := make([][]string, 0, len(engine.ModelNames()))
			for _, name := range engine.ModelNames() {
				model, _ := engine.LookupModel(name)
				marker := ""
				if name == engine.DefaultModel {
					marker = "*"
				}
				rows = append(rows, []string{name, marker, model.Description})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Model", "Default", "Description"}, rows, nil, nil))
			return nil
		},
	}
}
