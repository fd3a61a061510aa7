package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
)

const requestTimeout = 15 * time.Second

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "status", "command", "coords", "refresh", "dismiss":
		api := newAPIClient(resolveHTTPBase())
		if err := runAPI(ctx, api, cmd, args); err != nil {
			fatal(cmd, err)
		}
	case "watch":
		api := newAPIClient(resolveHTTPBase())
		if err := watchCmd(api, args); err != nil {
			fatal("watch", err)
		}
	case "services", "methods", "call", "health":
		if err := runGRPC(ctx, cmd, args); err != nil {
			fatal(cmd, err)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func runAPI(ctx context.Context, api *apiClient, cmd string, args []string) error {
	flags := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	format := flags.StringP("output", "o", "table", "output format: table, json or yaml")
	if err := flags.Parse(args); err != nil {
		return err
	}
	out := outputMode{format: *format, w: os.Stdout}
	rest := flags.Args()

	switch cmd {
	case "status":
		snap, err := api.status(ctx)
		if err != nil {
			return err
		}
		return out.snapshot(snap)
	case "refresh":
		snap, err := api.refresh(ctx)
		if err != nil {
			return err
		}
		return out.snapshot(snap)
	case "command":
		if len(rest) != 1 {
			return fmt.Errorf("usage: command <start|resume|pause|stop|charge>")
		}
		result, err := api.command(ctx, rest[0])
		if err != nil {
			return err
		}
		return out.commandResult(result)
	case "coords":
		coords, err := parseCoordinates(rest)
		if err != nil {
			return err
		}
		snap, err := api.coordinates(ctx, coords)
		if err != nil {
			return err
		}
		return out.snapshot(snap)
	case "dismiss":
		dismissed, err := api.dismiss(ctx)
		if err != nil {
			return err
		}
		if dismissed {
			fmt.Fprintln(out.w, "notice dismissed")
		} else {
			fmt.Fprintln(out.w, "no dismissible notice")
		}
		return nil
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func usage() {
	fmt.Println("agrobot-cli <command> [args]")
	fmt.Println("")
	fmt.Println("Robot (HTTP, $AGROBOT_URL, default http://localhost:8080):")
	fmt.Println("  status [-o table|json|yaml]")
	fmt.Println("  refresh [-o ...]")
	fmt.Println("  command <start|resume|pause|stop|charge>")
	fmt.Println("  coords <lat,lon[,label]>... [-o ...]")
	fmt.Println("  dismiss")
	fmt.Println("  watch")
	fmt.Println("")
	fmt.Println("gRPC ($AGROBOT_GRPC_ADDR, default localhost:9000):")
	fmt.Println("  health [--json] [service]")
	fmt.Println("  services")
	fmt.Println("  methods <service>")
	fmt.Println("  call <service/method> --data '{}' (or pipe JSON via stdin)")
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
