package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/example/projectcontrols/internal/domain"
	"github.com/example/projectcontrols/internal/service"
)

func newListCmd(opts *options) *cobra.Command {
	var (
		projectID      string
		branch         string
		parentID       string
		includeDeleted bool
		limit          int
	)

	cmd := &cobra.Command{
		Use:   "list <entity-type>",
		Short: "List the current version of every entity of a type",
		Long: `List the entities of one type visible in a branch.

EXAMPLES:
  # Active WBEs of a project in main
  evmctl list wbe --project 1b2c...

  # Cost elements of a change order branch, including deleted ones
  evmctl list cost_element --project 1b2c... --branch co-002 --include-deleted`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: entityTypeArgs(),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityType, err := domain.ParseEntityType(args[0])
			if err != nil {
				return err
			}

			l, err := opts.openLocal(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			recs, err := l.filter.Resolve(contextFor(cmd), &service.ResolveRequest{
				EntityType:     entityType,
				Scope:          domain.Scope{ProjectID: projectID, ParentID: parentID, Limit: limit},
				Branch:         branch,
				IncludeDeleted: includeDeleted,
			})
			if err != nil {
				return err
			}

			p := opts.printer(cmd)
			if len(recs) == 0 {
				p.Info("No entities found")
				return nil
			}
			p.Table([]string{"ENTITY", "BRANCH", "VERSION", "STATUS", "ACTOR", "CREATED"}, recordRows(recs))
			return nil
		},
	}

	cmd.Flags().StringVarP(&projectID, "project", "p", "", "project ID")
	cmd.Flags().StringVarP(&branch, "branch", "b", domain.BranchMain, "branch to read")
	cmd.Flags().StringVar(&parentID, "parent", "", "only children of this entity")
	cmd.Flags().BoolVar(&includeDeleted, "include-deleted", false, "include soft-deleted entities")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "limit number of entities shown (0 = all)")
	return cmd
}

func newHistoryCmd(opts *options) *cobra.Command {
	var branch string

	cmd := &cobra.Command{
		Use:               "history <entity-type> <entity-id>",
		Short:             "Show every version of an entity in a branch",
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completeEntityType,
		RunE: func(cmd *cobra.Command, args []string) error {
			entityType, err := domain.ParseEntityType(args[0])
			if err != nil {
				return err
			}

			l, err := opts.openLocal(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			recs, err := l.versions.History(contextFor(cmd), entityType, args[1], branch)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				return fmt.Errorf("%s %s has no versions in %s: %w", entityType, args[1], branch, domain.ErrNotFound)
			}

			p := opts.printer(cmd)
			p.Header(fmt.Sprintf("%s %s @ %s", entityType, args[1], branch))
			p.Table([]string{"ENTITY", "BRANCH", "VERSION", "STATUS", "ACTOR", "CREATED"}, recordRows(recs))
			return nil
		},
	}

	cmd.Flags().StringVarP(&branch, "branch", "b", domain.BranchMain, "branch to read")
	return cmd
}

func recordRows(recs []*domain.Record) [][]string {
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		version := strconv.FormatInt(r.Version, 10)
		if r.BaseVersion > 0 {
			version += fmt.Sprintf(" (from main v%d)", r.BaseVersion)
		}
		rows = append(rows, []string{
			r.EntityID,
			r.Branch,
			version,
			string(r.Status),
			r.Actor,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return rows
}

func entityTypeArgs() []string {
	types := domain.EntityTypes()
	args := make([]string, len(types))
	for i, et := range types {
		args[i] = string(et)
	}
	return args
}

// completeEntityType completes the first positional argument only.
func completeEntityType(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return entityTypeArgs(), cobra.ShellCompDirectiveNoFileComp
}
