package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the branch lifecycle service.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Call invokes method with a request built from fields and returns the
// response fields.
func (c *Client) Call(ctx context.Context, method string, fields map[string]any) (map[string]any, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// Diff lists how branch differs from main.
func (c *Client) Diff(ctx context.Context, branch string) (map[string]any, error) {
	return c.Call(ctx, "Diff", map[string]any{"branch": branch})
}

// Merge merges branch into main.
func (c *Client) Merge(ctx context.Context, branch, actor string) (map[string]any, error) {
	return c.Call(ctx, "Merge", map[string]any{"branch": branch, "actor": actor})
}

// Archive archives branch.
func (c *Client) Archive(ctx context.Context, branch, actor string) (map[string]any, error) {
	return c.Call(ctx, "Archive", map[string]any{"branch": branch, "actor": actor})
}
