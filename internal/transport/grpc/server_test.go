package grpc

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/example/projectcontrols/internal/domain"
	"github.com/example/projectcontrols/internal/endpoint"
	"github.com/example/projectcontrols/internal/service"
	"github.com/example/projectcontrols/internal/storage/sqlite"
)

type testEnv struct {
	versions *service.VersionService
	workflow *service.WorkflowService
	client   *Client
	conn     *grpc.ClientConn
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(func() { store.Close() })

	versions := service.NewVersionService(store)
	branches := service.NewBranchService(store, versions)
	workflow := service.NewWorkflowService(store, branches)

	srv := NewServer(endpoint.MakeEndpoints(endpoint.Services{
		Filter:   service.NewFilter(store),
		Branches: branches,
		Composer: service.NewViewComposer(store),
	}))

	lis := bufconn.Listen(1 << 20)
	go srv.ServeListener(lis)
	t.Cleanup(srv.GracefulStop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &testEnv{versions: versions, workflow: workflow, client: NewClient(conn), conn: conn}
}

func TestServer_DiffAndMerge(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	project, err := env.versions.Create(ctx, &service.CreateRequest{
		EntityType: domain.EntityProject,
		Payload:    domain.Payload{"name": "Plant"},
		Actor:      "alice",
	})
	require.NoError(t, err)

	wbe, err := env.versions.Create(ctx, &service.CreateRequest{
		EntityType: domain.EntityWBE,
		ProjectID:  project.EntityID,
		Payload:    domain.Payload{"name": "Civil", "budget": 100.0},
		Actor:      "alice",
	})
	require.NoError(t, err)

	co, err := env.workflow.Create(ctx, &service.CreateChangeOrderRequest{
		ProjectID: project.EntityID,
		Title:     "Rework civil",
		Actor:     "alice",
	})
	require.NoError(t, err)

	_, err = env.versions.Update(ctx, &service.UpdateRequest{
		EntityType: domain.EntityWBE,
		EntityID:   wbe.EntityID,
		Branch:     co.Branch,
		Payload:    domain.Payload{"name": "Civil", "budget": 150.0},
		Actor:      "bob",
	})
	require.NoError(t, err)

	diff, err := env.client.Diff(ctx, co.Branch)
	require.NoError(t, err)
	changes := diff["changes"].([]any)
	require.Len(t, changes, 1)
	change := changes[0].(map[string]any)
	assert.Equal(t, wbe.EntityID, change["entity_id"])
	assert.Equal(t, "updated", change["kind"])

	_, err = env.client.Merge(ctx, co.Branch, "carol")
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, _, err = env.workflow.Approve(ctx, co.ID, "carol")
	require.NoError(t, err)

	merged, err := env.client.Merge(ctx, co.Branch, "carol")
	require.NoError(t, err)
	assert.Equal(t, float64(1), merged["applied"])

	resolved, err := env.client.Call(ctx, "Resolve", map[string]any{
		"entity_type": "wbe",
		"project_id":  project.EntityID,
	})
	require.NoError(t, err)
	records := resolved["records"].([]any)
	require.Len(t, records, 1)
	rec := records[0].(map[string]any)
	assert.Equal(t, float64(2), rec["version"])
	assert.Equal(t, 150.0, rec["payload"].(map[string]any)["budget"])
}

func TestServer_Compose(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	project, err := env.versions.Create(ctx, &service.CreateRequest{
		EntityType: domain.EntityProject,
		Payload:    domain.Payload{"name": "Plant"},
	})
	require.NoError(t, err)

	co, err := env.workflow.Create(ctx, &service.CreateChangeOrderRequest{ProjectID: project.EntityID})
	require.NoError(t, err)

	_, err = env.versions.Create(ctx, &service.CreateRequest{
		EntityType: domain.EntityWBE,
		ProjectID:  project.EntityID,
		Branch:     co.Branch,
		Payload:    domain.Payload{"name": "Mechanical"},
	})
	require.NoError(t, err)

	resp, err := env.client.Call(ctx, "Compose", map[string]any{
		"entity_type": "wbe",
		"project_id":  project.EntityID,
		"branch":      co.Branch,
	})
	require.NoError(t, err)
	entries := resp["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "created", entries[0].(map[string]any)["status"])
}

func TestServer_ErrorCodes(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	_, err := env.client.Merge(ctx, "", "alice")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = env.client.Diff(ctx, "release")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = env.client.Call(ctx, "Resolve", map[string]any{"entity_type": "invoice"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_Health(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := healthpb.NewHealthClient(env.conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
