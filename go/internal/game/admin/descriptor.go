package admin

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	GameAdminServiceName = "geoguess.admin.v1.GameAdminService"

	ListSessionsProcedure = "/geoguess.admin.v1.GameAdminService/ListSessions"
	GetSessionProcedure   = "/geoguess.admin.v1.GameAdminService/GetSession"
	AbortSessionProcedure = "/geoguess.admin.v1.GameAdminService/AbortSession"
)

// The service only exchanges well-known types, so its descriptor is built
// here and registered globally for reflection instead of being generated.
var serviceDescriptor = sync.OnceValues(func() (protoreflect.ServiceDescriptor, error) {
	if d, err := protoregistry.GlobalFiles.FindDescriptorByName(GameAdminServiceName); err == nil {
		return d.(protoreflect.ServiceDescriptor), nil
	}

	fd := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("geoguess/admin/v1/admin.proto"),
		Package: proto.String("geoguess.admin.v1"),
		Dependency: []string{
			emptypb.File_google_protobuf_empty_proto.Path(),
			structpb.File_google_protobuf_struct_proto.Path(),
			wrapperspb.File_google_protobuf_wrappers_proto.Path(),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("GameAdminService"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method("ListSessions", ".google.protobuf.Empty", ".google.protobuf.ListValue"),
				method("GetSession", ".google.protobuf.StringValue", ".google.protobuf.Struct"),
				method("AbortSession", ".google.protobuf.Struct", ".google.protobuf.Empty"),
			},
		}},
		Syntax: proto.String("proto3"),
	}

	file, err := protodesc.NewFile(fd, protoregistry.GlobalFiles)
	if err != nil {
		return nil, fmt.Errorf("build admin descriptor: %w", err)
	}
	if err := protoregistry.GlobalFiles.RegisterFile(file); err != nil {
		return nil, fmt.Errorf("register admin descriptor: %w", err)
	}
	return file.Services().ByName("GameAdminService"), nil
})

func method(name, in, out string) *descriptorpb.MethodDescriptorProto {
	return &descriptorpb.MethodDescriptorProto{
		Name:       proto.String(name),
		InputType:  proto.String(in),
		OutputType: proto.String(out),
	}
}
