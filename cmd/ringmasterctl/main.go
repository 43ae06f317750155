// Command ringmasterctl is the operator CLI for Ringmaster. It talks
// directly to the Store (there is no HTTP API layer in this repo;
// ringmasterd is the only external collaborator and a future one would
// sit in front of the same Store), grounded on the teacher's
// cmd/loomctl noun/verb cobra structure and JSON-by-default output.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ringmaster-dev/ringmaster/internal/config"
	"github.com/ringmaster-dev/ringmaster/internal/models"
	"github.com/ringmaster-dev/ringmaster/internal/store"
)

var dsn string

func main() {
	rootCmd := &cobra.Command{
		Use:   "ringmasterctl",
		Short: "ringmasterctl is a command-line interface for operating a Ringmaster store",
	}
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "PostgreSQL DSN (defaults to RINGMASTER_PG_* env vars)")

	rootCmd.AddCommand(newProjectCommand())
	rootCmd.AddCommand(newBeadCommand())
	rootCmd.AddCommand(newWorkerCommand())
	rootCmd.AddCommand(newUndoCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openStore() (*store.Store, error) {
	d := dsn
	if d == "" {
		d = config.Default().Store.DSN
	}
	return store.Open(d)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// --- project commands ---

func newProjectCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "project", Short: "Manage projects"}
	cmd.AddCommand(newProjectListCommand())
	cmd.AddCommand(newProjectCreateCommand())
	return cmd
}

func newProjectListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			projects, err := db.Projects.List()
			if err != nil {
				return err
			}
			printJSON(projects)
			return nil
		},
	}
}

func newProjectCreateCommand() *cobra.Command {
	var name, repoURL, defaultBranch string
	var useWorktrees bool
	cmd := &cobra.Command{
		Use:     "create <id>",
		Short:   "Register a project",
		Args:    cobra.ExactArgs(1),
		Example: `  ringmasterctl project create demo --name="Demo" --repo-url=git@github.com:org/demo.git`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			p := &models.Project{
				ID:            args[0],
				Name:          name,
				RepoURL:       repoURL,
				DefaultBranch: defaultBranch,
				UseWorktrees:  useWorktrees,
			}
			if err := db.Projects.Create(p); err != nil {
				return err
			}
			printJSON(p)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&repoURL, "repo-url", "", "Git repository URL")
	cmd.Flags().StringVar(&defaultBranch, "default-branch", "main", "Default branch")
	cmd.Flags().BoolVar(&useWorktrees, "use-worktrees", true, "Isolate workers in per-task git worktrees")
	return cmd
}

// --- bead commands ---

func newBeadCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "bead", Short: "Manage beads (work items)"}
	cmd.AddCommand(newBeadListCommand())
	cmd.AddCommand(newBeadCreateCommand())
	cmd.AddCommand(newBeadShowCommand())
	cmd.AddCommand(newBeadDependCommand())
	return cmd
}

func newBeadListCommand() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List beads for a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			beads, err := db.Beads.ListByProject(projectID)
			if err != nil {
				return err
			}
			printJSON(beads)
			return nil
		},
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Project ID (required)")
	cmd.MarkFlagRequired("project")
	return cmd
}

func newBeadCreateCommand() *cobra.Command {
	var (
		projectID, title, description, beadType string
		priority                                 int
		maxAttempts                              int
		capabilities                             []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a bead",
		Example: `  ringmasterctl bead create --project=demo --title="Fix bug" \
    --type=task --priority=1 --capability=python`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			b := &models.Bead{
				ID:                   uuid.NewString(),
				ProjectID:            projectID,
				Type:                 models.BeadType(beadType),
				Title:                title,
				Description:          description,
				Status:               models.BeadStatusReady,
				Priority:             models.BeadPriority(priority),
				MaxAttempts:          maxAttempts,
				RequiredCapabilities: capabilities,
			}
			if err := db.Beads.Create(b); err != nil {
				return err
			}
			printJSON(b)
			return nil
		},
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Project ID (required)")
	cmd.Flags().StringVarP(&title, "title", "t", "", "Bead title (required)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Bead description")
	cmd.Flags().StringVar(&beadType, "type", "task", "Bead type")
	cmd.Flags().IntVar(&priority, "priority", int(models.PriorityP2), "Priority (0=P0 highest .. 4=P4 lowest)")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 3, "Maximum execution attempts before marking failed")
	cmd.Flags().StringArrayVar(&capabilities, "capability", nil, "Required worker capability (repeatable)")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("title")
	return cmd
}

func newBeadShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <bead-id>",
		Short: "Show bead details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			b, err := db.Beads.Get(args[0])
			if err != nil {
				return err
			}
			printJSON(b)
			return nil
		},
	}
}

func newBeadDependCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "depend <bead-id> <depends-on-id>",
		Short: "Add a dependency edge: bead-id cannot start until depends-on-id completes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			dep := &models.Dependency{BeadID: args[0], DependsOnID: args[1]}
			if err := db.Dependencies.Add(dep); err != nil {
				return err
			}
			printJSON(dep)
			return nil
		},
	}
}

// --- worker commands ---

func newWorkerCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "worker", Short: "Manage workers"}
	cmd.AddCommand(newWorkerListIdleCommand())
	return cmd
}

func newWorkerListIdleCommand() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "idle",
		Short: "List idle workers for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			workers, err := db.Workers.ListIdle(projectID)
			if err != nil {
				return err
			}
			printJSON(workers)
			return nil
		},
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Project ID (required)")
	cmd.MarkFlagRequired("project")
	return cmd
}

// --- undo commands ---

func newUndoCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "undo", Short: "View and reverse recorded actions"}
	cmd.AddCommand(newUndoRecentCommand())
	return cmd
}

func newUndoRecentCommand() *cobra.Command {
	var projectID string
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the most recent recorded actions for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			actions, err := db.Actions.RecentForProject(projectID, limit)
			if err != nil {
				return err
			}
			printJSON(actions)
			return nil
		},
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Project ID (required)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of actions to show")
	cmd.MarkFlagRequired("project")
	return cmd
}
