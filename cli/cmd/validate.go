package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/convoflow/convoflow/runtime"
)

var validateCmd = &cobra.Command{
	Use:   "validate [flow.json ...]",
	Short: "Check flow definition files",
	Long: `Validate parses each file as a flow definition and checks its wiring:
step ids are unique, every transition targets an existing step, branch
operators and validation kinds are known.

Example:

  convoflow validate flows/*.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := 0
		for _, path := range args {
			if err := validateFile(path); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				failed++
				continue
			}
			fmt.Printf("%s: ok\n", path)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed validation", failed, len(args))
		}
		return nil
	},
}

func validateFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var def runtime.FlowDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return fmt.Errorf("parsing: %w", err)
	}
	return runtime.CheckDefinition(&def)
}
