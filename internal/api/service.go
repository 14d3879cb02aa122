package api

import (
	"context"

	"github.com/matheus3301/waconsole/internal/wa"
	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "waconsole.v1.Console"

// ConsoleServer is the daemon's control surface.
type ConsoleServer interface {
	GetStatus(context.Context, *Empty) (*StatusResponse, error)
	GetConfig(context.Context, *Empty) (*ConfigResponse, error)
	SetMessagingConfig(context.Context, *SetMessagingConfigRequest) (*ConfigResponse, error)
	SetDatabaseConfig(context.Context, *SetDatabaseConfigRequest) (*ConfigResponse, error)
	LoadContacts(context.Context, *Empty) (*ContactsResponse, error)
	ListContacts(context.Context, *ListContactsRequest) (*ContactsResponse, error)
	OpenConversation(context.Context, *OpenConversationRequest) (*ConversationResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	SyncDatabase(context.Context, *Empty) (*DatabaseStatusResponse, error)
	GetDatabaseStatus(context.Context, *Empty) (*DatabaseStatusResponse, error)
	WatchEvents(*WatchEventsRequest, grpc.ServerStreamingServer[EventEnvelope]) error
	StartAuth(*Empty, grpc.ServerStreamingServer[wa.AuthEvent]) error
	Logout(context.Context, *Empty) (*LogoutResponse, error)
}

// RegisterConsoleServer registers srv on s.
func RegisterConsoleServer(s grpc.ServiceRegistrar, srv ConsoleServer) {
	s.RegisterService(&consoleServiceDesc, srv)
}

func unary[Req, Resp any](method string, call func(ConsoleServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ConsoleServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ConsoleServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var consoleServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ConsoleServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetStatus", ConsoleServer.GetStatus),
		unary("GetConfig", ConsoleServer.GetConfig),
		unary("SetMessagingConfig", ConsoleServer.SetMessagingConfig),
		unary("SetDatabaseConfig", ConsoleServer.SetDatabaseConfig),
		unary("LoadContacts", ConsoleServer.LoadContacts),
		unary("ListContacts", ConsoleServer.ListContacts),
		unary("OpenConversation", ConsoleServer.OpenConversation),
		unary("SendMessage", ConsoleServer.SendMessage),
		unary("SyncDatabase", ConsoleServer.SyncDatabase),
		unary("GetDatabaseStatus", ConsoleServer.GetDatabaseStatus),
		unary("Logout", ConsoleServer.Logout),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "WatchEvents",
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(WatchEventsRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(ConsoleServer).WatchEvents(in, &grpc.GenericServerStream[WatchEventsRequest, EventEnvelope]{ServerStream: stream})
			},
			ServerStreams: true,
		},
		{
			StreamName: "StartAuth",
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(Empty)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(ConsoleServer).StartAuth(in, &grpc.GenericServerStream[Empty, wa.AuthEvent]{ServerStream: stream})
			},
			ServerStreams: true,
		},
	},
	Metadata: "waconsole/v1/console",
}
