package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/regatta/internal/journal"
	"github.com/ShayCichocki/regatta/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show journaled executions",
	Long: `Display the execution journal for this project.

Shows every execution the executor has recorded, its current state, and
the remote job it maps to. The journal is observational: restart recovery
works from backend job names, not from these rows.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	path := cfg.JournalPath
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		path = journal.DefaultPath(cwd)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println("No journal found. Run 'regatta run <workflow.yaml>' to start.")
		return nil
	}

	jn, err := journal.Open(path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer jn.Close()

	entries, err := jn.List()
	if err != nil {
		return fmt.Errorf("list executions: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No executions journaled.")
		return nil
	}

	for _, e := range entries {
		remote := e.RemoteID
		if remote == "" {
			remote = "-"
		}
		fmt.Printf("%s  %-10s  %-20s  %s  %s\n",
			e.EvalHash[:min(12, len(e.EvalHash))],
			stateColor(e.State).Sprint(e.State),
			e.TaskName,
			remote,
			e.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
		)
		if e.Detail != "" && e.State == models.ExecStateFailed {
			fmt.Printf("    %s\n", e.Detail)
		}
	}
	return nil
}

// stateColor maps an execution state to a display color.
func stateColor(state models.ExecState) *color.Color {
	switch state {
	case models.ExecStateDone:
		return color.New(color.FgGreen)
	case models.ExecStateFailed:
		return color.New(color.FgRed)
	case models.ExecStateMonitoring, models.ExecStateSubmitted:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgYellow)
	}
}
