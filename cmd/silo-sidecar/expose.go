package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/EternisAI/silo-sidecar/internal/environment"
	"github.com/EternisAI/silo-sidecar/internal/jwtproxy"
	"github.com/EternisAI/silo-sidecar/internal/signature"
	"github.com/spf13/cobra"
)

type backend struct {
	name     string
	port     int
	protocol string
}

func parseBackend(value string) (backend, error) {
	hostPort, protocol, _ := strings.Cut(value, "/")
	name, portStr, ok := strings.Cut(hostPort, ":")
	if !ok || name == "" {
		return backend{}, fmt.Errorf("backend %q must look like name:port[/protocol]", value)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return backend{}, fmt.Errorf("backend %q has invalid port: %w", value, err)
	}
	protocol = strings.ToUpper(protocol)
	if protocol == "" {
		protocol = jwtproxy.DefaultProtocol
	}
	return backend{name: name, port: port, protocol: protocol}, nil
}

type ExposeCommand struct {
	WorkspaceID string
	EnvName     string
	OwnerID     string
	EnvFile     string
	KeyDir      string
	GenerateKey bool
	Backends    []string
}

func NewExposeCommand() *cobra.Command {
	exposeCmd := &ExposeCommand{}

	cmd := &cobra.Command{
		Use:   "expose",
		Short: "Route backend servers of an environment file through the jwtproxy sidecar",
		Args:  cobra.NoArgs,
		RunE:  exposeCmd.run,
	}

	cmd.Flags().StringVarP(&exposeCmd.WorkspaceID, "workspace", "w", "", "workspace ID")
	cmd.Flags().StringVar(&exposeCmd.EnvName, "env-name", "default", "environment name")
	cmd.Flags().StringVar(&exposeCmd.OwnerID, "owner", "", "workspace owner ID")
	cmd.Flags().StringVarP(&exposeCmd.EnvFile, "env", "e", "environment.yaml", "environment YAML file, created if missing")
	cmd.Flags().StringVar(&exposeCmd.KeyDir, "key-dir", "./keys", "directory holding the signature key pair")
	cmd.Flags().BoolVar(&exposeCmd.GenerateKey, "generate-key", false, "generate the key pair if it does not exist")
	cmd.Flags().StringArrayVarP(&exposeCmd.Backends, "backend", "b", nil, "backend to expose as name:port[/protocol], repeatable")
	_ = cmd.MarkFlagRequired("workspace")
	_ = cmd.MarkFlagRequired("backend")

	return cmd
}

func (e *ExposeCommand) run(cmd *cobra.Command, args []string) error {
	backends := make([]backend, 0, len(e.Backends))
	for _, value := range e.Backends {
		be, err := parseBackend(value)
		if err != nil {
			return err
		}
		backends = append(backends, be)
	}

	env, err := environment.LoadFile(e.EnvFile)
	if err != nil {
		return err
	}

	identity := environment.RuntimeIdentity{WorkspaceID: e.WorkspaceID, EnvName: e.EnvName, OwnerID: e.OwnerID}
	keys := signature.NewFileKeyManager(e.KeyDir, e.GenerateKey)

	p, err := jwtproxy.Recover(identity, keys, env)
	if err != nil {
		return fmt.Errorf("failed to read sidecar state from %s: %w", e.EnvFile, err)
	}

	// A failing backend must leave the file untouched.
	updated := env.Clone()
	exposed := make([]environment.ServicePort, 0, len(backends))
	for _, be := range backends {
		port, err := p.Expose(updated, be.name, be.port, be.protocol)
		if err != nil {
			return fmt.Errorf("failed to expose %s:%d: %w", be.name, be.port, err)
		}
		exposed = append(exposed, port)
	}

	if err := updated.SaveFile(e.EnvFile); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Updated %s (service %s)\n", e.EnvFile, p.ServiceName())
	for i, port := range exposed {
		fmt.Fprintf(out, "  %s:%d -> %s port %d/%s\n", backends[i].name, backends[i].port, port.Name, port.Port, port.Protocol)
	}
	return nil
}
