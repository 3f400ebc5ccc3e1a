package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/projectcontrols/internal/domain"
	"github.com/example/projectcontrols/internal/service"
	"github.com/example/projectcontrols/internal/storage/sqlite"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--no-color"))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// seed creates a project with one WBE and a change order that updates it.
func seed(t *testing.T, dbPath string) (wbeID string, co *domain.ChangeOrder) {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(dbPath)
	require.NoError(t, err)
	defer store.Close()

	versions := service.NewVersionService(store)
	workflow := service.NewWorkflowService(store, service.NewBranchService(store, versions))

	project, err := versions.Create(ctx, &service.CreateRequest{
		EntityType: domain.EntityProject,
		Payload:    domain.Payload{"name": "Plant"},
	})
	require.NoError(t, err)
	wbe, err := versions.Create(ctx, &service.CreateRequest{
		EntityType: domain.EntityWBE,
		ProjectID:  project.EntityID,
		Payload:    domain.Payload{"name": "Civil"},
	})
	require.NoError(t, err)

	co, err = workflow.Create(ctx, &service.CreateChangeOrderRequest{ProjectID: project.EntityID, Title: "Rework"})
	require.NoError(t, err)
	_, err = versions.Update(ctx, &service.UpdateRequest{
		EntityType: domain.EntityWBE,
		EntityID:   wbe.EntityID,
		Branch:     co.Branch,
		Payload:    domain.Payload{"name": "Civil works"},
	})
	require.NoError(t, err)
	return wbe.EntityID, co
}

func TestMigrateDiffMerge(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	out, err := runCLI(t, "migrate", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Schema is up to date")

	wbeID, co := seed(t, dbPath)

	out, err = runCLI(t, "branches", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, co.Branch)

	out, err = runCLI(t, "diff", co.Branch, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, wbeID)
	assert.Contains(t, out, "updated")

	_, err = runCLI(t, "merge", co.Branch, "--db", dbPath, "--actor", "alice")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = runCLI(t, "co", "approve", co.ID, "--db", dbPath)
	require.NoError(t, err)

	out, err = runCLI(t, "merge", co.Branch, "--db", dbPath, "--actor", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "1 entities applied")

	out, err = runCLI(t, "history", "wbe", wbeID, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "alice")

	out, err = runCLI(t, "diff", co.Branch, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "has no changes against main")
}

func TestChangeOrderCommands(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")
	_, err := runCLI(t, "migrate", "--db", dbPath)
	require.NoError(t, err)

	_, co := seed(t, dbPath)

	out, err := runCLI(t, "co", "approve", co.ID, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "is approve")

	out, err = runCLI(t, "co", "reopen", co.ID, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "back in design")

	out, err = runCLI(t, "co", "cancel", co.ID, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "1 entities archived")

	_, err = runCLI(t, "co", "execute", co.ID, "--db", dbPath)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	out, err = runCLI(t, "co", "list", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "cancelled")
}

func TestUnknownEntityType(t *testing.T) {
	_, err := runCLI(t, "list", "invoice", "--db", filepath.Join(t.TempDir(), "cli.db"))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestEntityTypeCompletion(t *testing.T) {
	root := NewRootCmd()
	list, _, err := root.Find([]string{"list"})
	require.NoError(t, err)
	assert.Contains(t, list.ValidArgs, "wbe")
	assert.Contains(t, list.ValidArgs, "cost_element")

	history, _, err := root.Find([]string{"history"})
	require.NoError(t, err)
	require.NotNil(t, history.ValidArgsFunction)
	got, _ := history.ValidArgsFunction(history, nil, "")
	assert.Len(t, got, len(domain.EntityTypes()))
	got, _ = history.ValidArgsFunction(history, []string{"wbe"}, "")
	assert.Empty(t, got)
}
