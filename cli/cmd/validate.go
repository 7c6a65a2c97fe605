package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/botui/chatflow/runtime"
)

var validateCmd = &cobra.Command{
	Use:   "validate <script>...",
	Short: "Check conversation scripts for malformed steps",
	Long: `Validate decodes each script (.json, .yaml or .yml) and checks every step
for the fields its kind requires.

Example:
  chatflow validate scripts/signup.yaml
  chatflow validate scripts/*.json
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	failed := 0

	for _, path := range args {
		problems := validateScript(path)
		if len(problems) == 0 {
			fmt.Fprintf(out, "ok    %s\n", path)
			continue
		}
		failed++
		fmt.Fprintf(out, "FAIL  %s\n", path)
		for _, p := range problems {
			fmt.Fprintf(out, "      %v\n", p)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d scripts failed validation", failed, len(args))
	}
	return nil
}

// validateScript returns every problem found; decoding stops at the first
// undecodable step or repeated id, validation reports all invalid ones.
func validateScript(path string) []error {
	steps, err := runtime.LoadScript(path)
	if err != nil {
		return []error{err}
	}

	var problems []error
	for _, s := range steps {
		if err := s.Validate(); err != nil {
			var stepErr *runtime.StepError
			if errors.As(err, &stepErr) && stepErr.Code == runtime.ErrorCodeUnknownJob {
				problems = append(problems, fmt.Errorf("%w (known jobs: %s, %s, %s)", err,
					runtime.JobScript, runtime.JobWebhook, runtime.JobFormPush))
				continue
			}
			problems = append(problems, err)
		}
	}
	return problems
}
