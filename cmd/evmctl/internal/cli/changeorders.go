package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/projectcontrols/internal/domain"
	"github.com/example/projectcontrols/internal/service"
)

func newChangeOrdersCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "co",
		Aliases: []string{"change-order"},
		Short:   "Manage change orders",
		Long: `Drive change orders through their workflow.

  design  --approve-->  approve  --execute-->  execute
    ^                      |
    +-------reopen---------+
  design | approve  --cancel-->  cancelled

Approving locks the branch and prints its diff. Executing merges the branch
into main and archives it. Cancelling archives the branch without merging.`,
	}

	cmd.AddCommand(
		newCOListCmd(opts),
		newCOCreateCmd(opts),
		newCOApproveCmd(opts),
		newCOReopenCmd(opts),
		newCOExecuteCmd(opts),
		newCOCancelCmd(opts),
	)
	return cmd
}

func newCOListCmd(opts *options) *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List change orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := opts.openLocal(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			cos, err := l.workflow.List(contextFor(cmd), projectID)
			if err != nil {
				return err
			}
			p := opts.printer(cmd)
			if len(cos) == 0 {
				p.Info("No change orders found")
				return nil
			}
			rows := make([][]string, 0, len(cos))
			for _, co := range cos {
				rows = append(rows, []string{co.ID, co.Branch, string(co.State), co.Title})
			}
			p.Table([]string{"ID", "BRANCH", "STATE", "TITLE"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "only change orders of this project")
	return cmd
}

func newCOCreateCmd(opts *options) *cobra.Command {
	var title, description string

	cmd := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Open a change order and its branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := opts.openLocal(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			co, err := l.workflow.Create(contextFor(cmd), &service.CreateChangeOrderRequest{
				ProjectID:   args[0],
				Title:       title,
				Description: description,
				Actor:       opts.actor,
			})
			if err != nil {
				return err
			}
			p := opts.printer(cmd)
			p.Success(fmt.Sprintf("Created change order %s", co.ID))
			p.Info(fmt.Sprintf("Branch: %s", co.Branch))
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "change order title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "change order description")
	return cmd
}

func newCOApproveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <change-order-id>",
		Short: "Lock the branch for review and show its diff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := opts.openLocal(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			co, changes, err := l.workflow.Approve(contextFor(cmd), args[0], opts.actor)
			if err != nil {
				return err
			}
			p := opts.printer(cmd)
			p.Success(fmt.Sprintf("Change order %s is %s", co.ID, co.State))
			rows := make([][]string, 0, len(changes))
			for _, c := range changes {
				rows = append(rows, []string{c.EntityID, string(c.EntityType), string(c.Kind)})
			}
			p.Table([]string{"ENTITY", "TYPE", "CHANGE"}, rows)
			return nil
		},
	}
}

func newCOExecuteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "execute <change-order-id>",
		Short: "Merge the branch into main and archive it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := opts.openLocal(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			co, result, err := l.workflow.Execute(contextFor(cmd), args[0], opts.actor)
			if err != nil {
				return err
			}
			p := opts.printer(cmd)
			p.Success(fmt.Sprintf("Executed %s: %d entities merged from %s", co.ID, result.Applied, co.Branch))
			printWarnings(p.Warning, result.Warnings)
			return nil
		},
	}
}

func newCOCancelCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <change-order-id>",
		Short: "Archive the branch without merging",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := opts.openLocal(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			co, result, err := l.workflow.Cancel(contextFor(cmd), args[0], opts.actor)
			if err != nil {
				return err
			}
			opts.printer(cmd).Success(fmt.Sprintf("Cancelled %s: %d entities archived in %s", co.ID, result.Archived, co.Branch))
			return nil
		},
	}
}

func newCOReopenCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reopen <change-order-id>",
		Short: "Send an approved change order back to design",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := opts.openLocal(cmd)
			if err != nil {
				return err
			}
			defer l.Close()

			co, err := l.workflow.Reopen(contextFor(cmd), args[0], opts.actor)
			if err != nil {
				return err
			}
			opts.printer(cmd).Success(fmt.Sprintf("Change order %s is back in %s", co.ID, domain.WorkflowDesign))
			return nil
		},
	}
}
