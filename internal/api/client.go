package api

import (
	"context"
	"fmt"

	"github.com/matheus3301/waconsole/internal/wa"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls the console service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection. Calls must use the JSON
// codec; Dial configures that.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial connects to the daemon's Unix socket.
func Dial(socketPath string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient("unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", socketPath, err)
	}
	return conn, nil
}

func invoke[Resp any](ctx context.Context, c *Client, method string, in any) (*Resp, error) {
	out := new(Resp)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetStatus(ctx context.Context) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c, "GetStatus", &Empty{})
}

func (c *Client) GetConfig(ctx context.Context) (*ConfigResponse, error) {
	return invoke[ConfigResponse](ctx, c, "GetConfig", &Empty{})
}

func (c *Client) SetMessagingConfig(ctx context.Context, in *SetMessagingConfigRequest) (*ConfigResponse, error) {
	return invoke[ConfigResponse](ctx, c, "SetMessagingConfig", in)
}

func (c *Client) SetDatabaseConfig(ctx context.Context, in *SetDatabaseConfigRequest) (*ConfigResponse, error) {
	return invoke[ConfigResponse](ctx, c, "SetDatabaseConfig", in)
}

func (c *Client) LoadContacts(ctx context.Context) (*ContactsResponse, error) {
	return invoke[ContactsResponse](ctx, c, "LoadContacts", &Empty{})
}

func (c *Client) ListContacts(ctx context.Context, in *ListContactsRequest) (*ContactsResponse, error) {
	return invoke[ContactsResponse](ctx, c, "ListContacts", in)
}

func (c *Client) OpenConversation(ctx context.Context, in *OpenConversationRequest) (*ConversationResponse, error) {
	return invoke[ConversationResponse](ctx, c, "OpenConversation", in)
}

func (c *Client) SendMessage(ctx context.Context, in *SendMessageRequest) (*SendMessageResponse, error) {
	return invoke[SendMessageResponse](ctx, c, "SendMessage", in)
}

func (c *Client) SyncDatabase(ctx context.Context) (*DatabaseStatusResponse, error) {
	return invoke[DatabaseStatusResponse](ctx, c, "SyncDatabase", &Empty{})
}

func (c *Client) GetDatabaseStatus(ctx context.Context) (*DatabaseStatusResponse, error) {
	return invoke[DatabaseStatusResponse](ctx, c, "GetDatabaseStatus", &Empty{})
}

func (c *Client) Logout(ctx context.Context) (*LogoutResponse, error) {
	return invoke[LogoutResponse](ctx, c, "Logout", &Empty{})
}

func serverStream[Req, Resp any](ctx context.Context, c *Client, idx int, in *Req) (grpc.ServerStreamingClient[Resp], error) {
	desc := &consoleServiceDesc.Streams[idx]
	stream, err := c.cc.NewStream(ctx, desc, "/"+ServiceName+"/"+desc.StreamName)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[Req, Resp]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// WatchEvents streams bus events until ctx is cancelled.
func (c *Client) WatchEvents(ctx context.Context, in *WatchEventsRequest) (grpc.ServerStreamingClient[EventEnvelope], error) {
	return serverStream[WatchEventsRequest, EventEnvelope](ctx, c, 0, in)
}

// StartAuth streams QR pairing events until the flow ends.
func (c *Client) StartAuth(ctx context.Context) (grpc.ServerStreamingClient[wa.AuthEvent], error) {
	return serverStream[Empty, wa.AuthEvent](ctx, c, 1, &Empty{})
}
