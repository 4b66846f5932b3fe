package main

import (
	"context"
	"fmt"
	"time"

	grpcserver "github.com/EternisAI/silo-sidecar/internal/grpc/server"
	grpctls "github.com/EternisAI/silo-sidecar/internal/grpc/tls"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type HealthCommand struct {
	Addr     string
	Service  string
	CAFile   string
	CertFile string
	KeyFile  string
	Timeout  time.Duration
}

func NewHealthCommand() *cobra.Command {
	healthCmd := &HealthCommand{}

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the gRPC health service of a running silo-sidecar-server",
		Args:  cobra.NoArgs,
		RunE:  healthCmd.run,
	}

	cmd.Flags().StringVar(&healthCmd.Addr, "addr", "localhost:9090", "gRPC server address")
	cmd.Flags().StringVar(&healthCmd.Service, "service", grpcserver.ProvisionerService, "health service name, empty for the whole server")
	cmd.Flags().StringVar(&healthCmd.CAFile, "ca", "", "CA certificate, enables TLS")
	cmd.Flags().StringVar(&healthCmd.CertFile, "cert", "", "client certificate for mutual TLS")
	cmd.Flags().StringVar(&healthCmd.KeyFile, "key", "", "client key for mutual TLS")
	cmd.Flags().DurationVar(&healthCmd.Timeout, "timeout", 5*time.Second, "probe timeout")

	return cmd
}

func (h *HealthCommand) run(cmd *cobra.Command, args []string) error {
	creds, err := grpctls.DialCredentials(h.CAFile, h.CertFile, h.KeyFile)
	if err != nil {
		return err
	}

	conn, err := grpc.NewClient(h.Addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return fmt.Errorf("failed to create client for %s: %w", h.Addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), h.Timeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: h.Service})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	name := h.Service
	if name == "" {
		name = "server"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, resp.GetStatus())
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%s is %s", name, resp.GetStatus())
	}
	return nil
}
