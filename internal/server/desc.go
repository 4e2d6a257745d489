package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "docreader.v1.PipelineService"

// FullMethod returns the wire name of a PipelineService method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// PipelineServer is what the service descriptor dispatches to.
type PipelineServer interface {
	RunPipeline(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reprocess(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Cancel(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Rechunk(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportChunks(context.Context, *structpb.Struct) (*structpb.Struct, error)
	IngestFile(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type structMethod func(PipelineServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call structMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(PipelineServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(PipelineServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes PipelineService without generated stubs; every
// message is a google.protobuf.Struct.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PipelineServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("RunPipeline", PipelineServer.RunPipeline),
		unaryHandler("Reprocess", PipelineServer.Reprocess),
		unaryHandler("Cancel", PipelineServer.Cancel),
		unaryHandler("Rechunk", PipelineServer.Rechunk),
		unaryHandler("GetStatus", PipelineServer.GetStatus),
		unaryHandler("ExportChunks", PipelineServer.ExportChunks),
		unaryHandler("IngestFile", PipelineServer.IngestFile),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "docreader/v1/pipeline.proto",
}

func RegisterPipelineServer(s grpc.ServiceRegistrar, srv PipelineServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls PipelineService over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

// Call invokes method with req, given as a plain map.
func (c *Client) Call(ctx context.Context, method string, req map[string]any, opts ...grpc.CallOption) (map[string]any, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
