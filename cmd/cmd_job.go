package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"vision-inspector/internal/infrastructure/vision"
	"vision-inspector/internal/logger"
	"vision-inspector/internal/pipeline"
	"vision-inspector/internal/tools"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Job file commands",
	Long:  "Inspect and validate tool-graph job files (JSON or YAML).",
}

var jobValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check that a job file builds a valid tool graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := loadJob(args[0])
		if err != nil {
			return err
		}
		defer job.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, %d tools\n", job.Name(), job.Len())
		return nil
	},
}

var jobShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Print tools and connections of a job file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := loadJob(args[0])
		if err != nil {
			return err
		}
		defer job.Close()
		printJob(cmd.OutOrStdout(), job)
		return nil
	},
}

func init() {
	jobCmd.AddCommand(jobValidateCmd)
	jobCmd.AddCommand(jobShowCmd)
}

// loadJob строит задание без загрузки моделей в GPU.
func loadJob(path string) (*pipeline.Job, error) {
	doc, err := pipeline.LoadDocumentFile(path)
	if err != nil {
		return nil, err
	}
	registry, err := tools.NewRegistry(vision.Loader(false, logger.Nop()), logger.Nop())
	if err != nil {
		return nil, err
	}
	job, err := pipeline.FromDocument(doc, registry)
	if err != nil {
		return nil, err
	}
	if err := job.Validate(); err != nil {
		job.Close()
		return nil, err
	}
	return job, nil
}

func printJob(w io.Writer, job *pipeline.Job) {
	fmt.Fprintf(w, "Job: %s\n", job.Name())
	if d := job.Description(); d != "" {
		fmt.Fprintf(w, "  %s\n", d)
	}
	fmt.Fprintln(w, "Tools:")
	for _, t := range job.Tools() {
		fmt.Fprintf(w, "  [%d] %s (%s)", t.ID(), t.DisplayName(), t.Kind())
		if in := job.Inputs(t.ID()); len(in) > 0 {
			p, _ := job.PrimarySource(t.ID())
			fmt.Fprintf(w, " <- %s primary=%d", joinInts(in), p)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Start: %s\n", joinInts(job.StartTools()))
	fmt.Fprintf(w, "End:   %s\n", joinInts(job.EndTools()))
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}
