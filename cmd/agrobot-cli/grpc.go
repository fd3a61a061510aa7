package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fullstorydev/grpcurl"
	"github.com/jhump/protoreflect/grpcreflect"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/joshp123/agrobot/internal/server"
)

func runGRPC(ctx context.Context, cmd string, args []string) error {
	addr := resolveGRPCAddr()
	conn, err := grpcurl.BlockingDial(ctx, "tcp", addr, insecure.NewCredentials())
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	switch cmd {
	case "health":
		return healthCmd(ctx, conn, args)
	case "services":
		return servicesCmd(ctx, conn)
	case "methods":
		return methodsCmd(ctx, conn, args)
	case "call":
		return callCmd(ctx, conn, args)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func healthCmd(ctx context.Context, conn *grpc.ClientConn, args []string) error {
	flags := pflag.NewFlagSet("health", pflag.ContinueOnError)
	asJSON := flags.Bool("json", false, "print the raw health response as JSON")
	if err := flags.Parse(args); err != nil {
		return err
	}
	service := server.RobotService
	if flags.NArg() > 0 {
		service = flags.Arg(0)
	}
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return err
	}
	if err := printHealth(os.Stdout, service, resp, *asJSON); err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%s is not serving", service)
	}
	return nil
}

func printHealth(w io.Writer, service string, resp *healthpb.HealthCheckResponse, asJSON bool) error {
	if !asJSON {
		_, err := fmt.Fprintf(w, "%s\t%s\n", service, resp.GetStatus())
		return err
	}
	data, err := protojson.MarshalOptions{EmitUnpopulated: true}.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode health: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func servicesCmd(ctx context.Context, conn *grpc.ClientConn) error {
	services, err := grpcurl.ListServices(reflectionSource(ctx, conn))
	if err != nil {
		return fmt.Errorf("list services: %w", err)
	}
	for _, service := range services {
		fmt.Println(service)
	}
	return nil
}

func methodsCmd(ctx context.Context, conn *grpc.ClientConn, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("missing service name")
	}
	methods, err := grpcurl.ListMethods(reflectionSource(ctx, conn), args[0])
	if err != nil {
		return fmt.Errorf("list methods: %w", err)
	}
	for _, method := range methods {
		fmt.Println(method)
	}
	return nil
}

func callCmd(ctx context.Context, conn *grpc.ClientConn, args []string) error {
	flags := pflag.NewFlagSet("call", pflag.ContinueOnError)
	data := flags.String("data", "", "JSON request body")
	if err := flags.Parse(args); err != nil {
		return err
	}
	remaining := flags.Args()
	if len(remaining) < 1 {
		return fmt.Errorf("missing method (service/method)")
	}

	descSource := reflectionSource(ctx, conn)
	var reader io.Reader
	switch {
	case *data != "":
		reader = strings.NewReader(*data)
	case isStdinTerminal():
		reader = strings.NewReader("{}")
	default:
		reader = os.Stdin
	}

	parser, formatter, err := grpcurl.RequestParserAndFormatter(grpcurl.FormatJSON, descSource, reader, grpcurl.FormatOptions{})
	if err != nil {
		return fmt.Errorf("parse request: %w", err)
	}
	handler := grpcurl.NewDefaultEventHandler(os.Stdout, descSource, formatter, false)
	if err := grpcurl.InvokeRPC(ctx, descSource, conn, remaining[0], nil, handler, parser.Next); err != nil {
		return fmt.Errorf("invoke: %w", err)
	}
	return nil
}

func reflectionSource(ctx context.Context, conn *grpc.ClientConn) grpcurl.DescriptorSource {
	client := grpcreflect.NewClientAuto(ctx, conn)
	return grpcurl.DescriptorSourceFromServer(ctx, client)
}

func isStdinTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return true
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
