package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/example/projectcontrols/internal/domain"
)

func newBranchesCmd(opts *options) *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "branches",
		Short: "List change order branches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := opts.openLocal(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			infos, err := l.branches.ListBranches(contextFor(cmd), projectID)
			if err != nil {
				return err
			}

			p := opts.printer(cmd)
			if len(infos) == 0 {
				p.Info("No branches found")
				return nil
			}
			rows := make([][]string, 0, len(infos))
			for _, b := range infos {
				rows = append(rows, []string{b.Name, b.ChangeOrderID, b.ProjectID, b.CreatedAt.Format("2006-01-02 15:04:05")})
			}
			p.Table([]string{"BRANCH", "CHANGE ORDER", "PROJECT", "CREATED"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVarP(&projectID, "project", "p", "", "only branches of this project")
	return cmd
}

func newDiffCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <branch>",
		Short: "Show how a branch differs from main",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := opts.printer(cmd)
			ctx := contextFor(cmd)

			if opts.addr != "" {
				client, closeFn, err := opts.dialRemote()
				if err != nil {
					return err
				}
				defer closeFn()
				resp, err := client.Diff(ctx, args[0])
				if err != nil {
					return err
				}
				printRemote(p.Table, resp, "changes", []string{"entity_id", "entity_type", "kind"})
				return nil
			}

			l, err := opts.openLocal(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			changes, err := l.branches.Diff(ctx, args[0])
			if err != nil {
				return err
			}
			if len(changes) == 0 {
				p.Info(fmt.Sprintf("%s has no changes against main", args[0]))
				return nil
			}
			rows := make([][]string, 0, len(changes))
			for _, c := range changes {
				mainVersion := "-"
				if c.Main != nil {
					mainVersion = strconv.FormatInt(c.Main.Version, 10)
				}
				rows = append(rows, []string{c.EntityID, string(c.EntityType), string(c.Kind), mainVersion, strconv.FormatInt(c.Branch.Version, 10)})
			}
			p.Table([]string{"ENTITY", "TYPE", "CHANGE", "MAIN", "BRANCH"}, rows)
			return nil
		},
	}
}

func newMergeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "merge <branch>",
		Short: "Merge a branch into main (last write wins)",
		Long: `Merge every current row of a branch into main in one transaction.

The owning change order must be approved. The branch's rows are marked
merged afterwards. Prefer executing the change order, which also archives the
branch and records the workflow transition.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := opts.printer(cmd)
			ctx := contextFor(cmd)

			if opts.addr != "" {
				client, closeFn, err := opts.dialRemote()
				if err != nil {
					return err
				}
				defer closeFn()
				resp, err := client.Merge(ctx, args[0], opts.actor)
				if err != nil {
					return err
				}
				p.Success(fmt.Sprintf("Merged %s: %v entities applied", args[0], resp["applied"]))
				printRemote(p.Table, resp, "warnings", []string{"entity_id", "reason"})
				return nil
			}

			l, err := opts.openLocal(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			result, err := l.branches.Merge(ctx, args[0], opts.actor)
			if err != nil {
				return err
			}
			p.Success(fmt.Sprintf("Merged %s: %d entities applied", result.Branch, result.Applied))
			printWarnings(p.Warning, result.Warnings)
			return nil
		},
	}
}

func newArchiveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <branch>",
		Short: "Soft-delete every active row of a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := opts.printer(cmd)
			ctx := contextFor(cmd)

			if opts.addr != "" {
				client, closeFn, err := opts.dialRemote()
				if err != nil {
					return err
				}
				defer closeFn()
				resp, err := client.Archive(ctx, args[0], opts.actor)
				if err != nil {
					return err
				}
				p.Success(fmt.Sprintf("Archived %s: %v entities", args[0], resp["archived"]))
				return nil
			}

			l, err := opts.openLocal(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			result, err := l.branches.Archive(ctx, args[0], opts.actor)
			if err != nil {
				return err
			}
			p.Success(fmt.Sprintf("Archived %s: %d entities", result.Branch, result.Archived))
			return nil
		},
	}
}

func printWarnings(warn func(string), warnings []domain.MergeConflictWarning) {
	for _, w := range warnings {
		warn(fmt.Sprintf("%s %s: %s", w.EntityType, w.EntityID, w.Reason))
	}
}

// printRemote renders a list field of a gRPC response as a table.
func printRemote(table func([]string, [][]string), resp map[string]any, field string, columns []string) {
	items, _ := resp[field].([]any)
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		m, _ := item.(map[string]any)
		row := make([]string, 0, len(columns))
		for _, col := range columns {
			row = append(row, fmt.Sprint(m[col]))
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
	table(columns, rows)
}
