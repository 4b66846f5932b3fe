package jwtproxy

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/EternisAI/silo-sidecar/internal/environment"
	"github.com/EternisAI/silo-sidecar/internal/signature"
)

// Recover rebuilds a Provisioner from an environment that may already carry
// the sidecar, for example after a process restart. The sidecar service name,
// the verifier proxy mappings and the next listen port are read back from the
// environment. An environment whose sidecar resources disagree with each
// other is rejected with ErrInvariantViolation.
func Recover(identity environment.RuntimeIdentity, keys signature.KeyManager, env *environment.Environment) (*Provisioner, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: environment is nil", ErrInvalidArgument)
	}
	p := NewProvisioner(identity, keys)
	if _, present := env.Machine(MachineName); !present {
		return p, nil
	}

	serviceName, service, err := findSidecarService(env)
	if err != nil {
		return nil, err
	}
	configMap, ok := env.ConfigMap(p.ConfigMapName())
	if !ok || configMap == nil {
		return nil, fmt.Errorf("%w: config map %s is missing", ErrInvariantViolation, p.ConfigMapName())
	}
	if _, ok := env.Pod(MachineName); !ok {
		return nil, fmt.Errorf("%w: pod %s is missing", ErrInvariantViolation, MachineName)
	}

	mappings, err := ParseConfig(configMap.Data[ConfigFile])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvariantViolation, err)
	}
	if len(mappings) != len(service.Spec.Ports) {
		return nil, fmt.Errorf("%w: service %s has %d ports but config has %d mappings",
			ErrInvariantViolation, serviceName, len(service.Spec.Ports), len(mappings))
	}

	for i, m := range mappings {
		sp := service.Spec.Ports[i]
		if sp.Port != m.ListenPort || sp.TargetPort != m.ListenPort {
			return nil, fmt.Errorf("%w: service port %s does not match listen port %d",
				ErrInvariantViolation, sp.Name, m.ListenPort)
		}
		if err := p.builder.AddVerifierProxy(m.ListenPort, m.BackendURL); err != nil {
			return nil, err
		}
		p.ports.advanceTo(m.ListenPort + 1)
	}

	p.serviceName = serviceName
	p.injected = true

	slog.Info("Recovered jwtproxy provisioner",
		"workspace_id", identity.WorkspaceID,
		"service", serviceName,
		"mappings", len(mappings),
		"next_port", p.ports.Peek())
	return p, nil
}

// findSidecarService returns the single service selecting the sidecar machine.
func findSidecarService(env *environment.Environment) (string, *environment.Service, error) {
	var found []string
	for _, name := range env.ServiceNames() {
		svc := env.Services[name]
		if svc == nil {
			continue
		}
		if svc.Spec.Selector[OriginalNameLabel] == MachineName && strings.HasSuffix(name, serviceSuffix) {
			found = append(found, name)
		}
	}
	switch len(found) {
	case 0:
		return "", nil, fmt.Errorf("%w: no service exposes machine %s", ErrInvariantViolation, MachineName)
	case 1:
		return found[0], env.Services[found[0]], nil
	default:
		return "", nil, fmt.Errorf("%w: multiple services expose machine %s: %v", ErrInvariantViolation, MachineName, found)
	}
}
