// Package jwtproxy provisions the authenticating reverse proxy sidecar that
// fronts a workspace's secured servers. A Provisioner injects the sidecar into
// an environment once and then routes each exposed backend through it on a
// dedicated listen port.
package jwtproxy

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/EternisAI/silo-sidecar/internal/environment"
	"github.com/EternisAI/silo-sidecar/internal/signature"
	"github.com/google/uuid"
)

const (
	MemoryLimitBytes = 128 * 1024 * 1024

	// DefaultProtocol is what callers pass to Expose when a request names none.
	// Expose itself passes the protocol through unchanged.
	DefaultProtocol = "TCP"

	Image         = "ksmster/jwtproxy"
	MachineName   = "jwtproxy"
	ContainerName = "verifier"
	VolumeName    = "jwtproxy-config-volume"

	ConfigFolder  = "/config"
	ConfigFile    = "config.yaml"
	PublicKeyFile = "mykey.pub"

	// VerifierMachineAnnotation tells the runtime which machine the verifier
	// container belongs to.
	VerifierMachineAnnotation = "org.eclipse.che.container.verifier.machine_name"
	OriginalNameLabel         = "org.eclipse.che.original_name"
	MachineNameLabel          = "org.eclipse.che.machine.name"

	serverPrefix     = "server"
	uniquePartSize   = 8
	serviceSuffix    = "-jwtproxy"
	configMapPrefix  = "jwtproxy-config-"
	backendURLScheme = "http://"
)

// Provisioner exposes backend servers of one workspace through the jwtproxy
// sidecar. It holds no reference to the environment between calls. Calls for
// one workspace must be serialized by the caller.
type Provisioner struct {
	identity    environment.RuntimeIdentity
	keys        signature.KeyManager
	builder     *ConfigBuilder
	ports       *PortAllocator
	serviceName string
	injected    bool
}

func NewProvisioner(identity environment.RuntimeIdentity, keys signature.KeyManager) *Provisioner {
	ports, _ := NewPortAllocator(FirstAvailablePort)
	return &Provisioner{
		identity:    identity,
		keys:        keys,
		builder:     NewConfigBuilder(identity.WorkspaceID),
		ports:       ports,
		serviceName: generateServiceName(),
	}
}

func generateServiceName() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:uniquePartSize]
	return serverPrefix + suffix + serviceSuffix
}

// ServiceName returns the name of the service that exposes the sidecar.
func (p *Provisioner) ServiceName() string {
	return p.serviceName
}

// ConfigMapName returns the name of the config map mounted into the sidecar.
func (p *Provisioner) ConfigMapName() string {
	return ConfigMapName(p.identity.WorkspaceID)
}

// ConfigMapName returns the sidecar config map name of a workspace.
func ConfigMapName(workspaceID string) string {
	return configMapPrefix + workspaceID
}

func (p *Provisioner) Identity() environment.RuntimeIdentity {
	return p.identity
}

// Mappings returns the verifier proxy mappings registered so far.
func (p *Provisioner) Mappings() []ExposureMapping {
	return p.builder.Mappings()
}

// Expose routes backendServiceName:backendServicePort through the sidecar and
// returns the new sidecar service port. The sidecar is injected on first use.
// On error the environment is left as it was before the call, except when the
// error is an invariant violation caused by the environment itself.
func (p *Provisioner) Expose(env *environment.Environment, backendServiceName string, backendServicePort int, protocol string) (environment.ServicePort, error) {
	if env == nil {
		return environment.ServicePort{}, fmt.Errorf("%w: environment is nil", ErrInvalidArgument)
	}
	if backendServiceName == "" {
		return environment.ServicePort{}, fmt.Errorf("%w: backend service name is empty", ErrInvalidArgument)
	}
	if backendServicePort < 1 || backendServicePort > maxPort {
		return environment.ServicePort{}, fmt.Errorf("%w: backend service port %d out of range", ErrInvalidArgument, backendServicePort)
	}

	if err := p.ensureInjected(env); err != nil {
		return environment.ServicePort{}, err
	}

	configMap, ok := env.ConfigMap(p.ConfigMapName())
	if !ok || configMap == nil {
		return environment.ServicePort{}, fmt.Errorf("%w: config map %s is missing", ErrInvariantViolation, p.ConfigMapName())
	}
	service, ok := env.Service(p.serviceName)
	if !ok || service == nil {
		return environment.ServicePort{}, fmt.Errorf("%w: service %s is missing", ErrInvariantViolation, p.serviceName)
	}

	listenPort, err := p.ports.Next()
	if err != nil {
		return environment.ServicePort{}, err
	}

	backendURL := backendURLScheme + backendServiceName + ":" + strconv.Itoa(backendServicePort)
	if err := p.builder.AddVerifierProxy(listenPort, backendURL); err != nil {
		return environment.ServicePort{}, err
	}
	config, err := p.builder.Build()
	if err != nil {
		p.builder.removeLast()
		return environment.ServicePort{}, infraError("build config", err)
	}

	if configMap.Data == nil {
		configMap.Data = make(map[string]string)
	}
	configMap.Data[ConfigFile] = config

	exposed := environment.ServicePort{
		Name:       backendServiceName + "-" + strconv.Itoa(listenPort),
		Port:       listenPort,
		Protocol:   protocol,
		TargetPort: listenPort,
	}
	service.Spec.Ports = append(service.Spec.Ports, exposed)

	slog.Info("Server exposed through jwtproxy",
		"workspace_id", p.identity.WorkspaceID,
		"backend", backendURL,
		"listen_port", listenPort,
		"service", p.serviceName)

	return exposed, nil
}

func (p *Provisioner) ensureInjected(env *environment.Environment) error {
	if _, present := env.Machine(MachineName); present {
		return p.checkInjected(env)
	}
	if p.injected {
		return fmt.Errorf("%w: machine %s disappeared after injection", ErrInvariantViolation, MachineName)
	}

	pair, err := p.keys.GetKeyPair()
	if err != nil {
		if errors.Is(err, signature.ErrKeyPairNotFound) {
			return ErrKeyPairMissing
		}
		return infraError("get key pair", err)
	}
	if pair == nil || pair.Public == nil {
		return ErrKeyPairMissing
	}

	publicKey, err := signature.PublicKeyPEM(pair.Public)
	if err != nil {
		return infraError("encode public key", err)
	}
	config, err := p.builder.Build()
	if err != nil {
		return infraError("build config", err)
	}

	machine := newMachine()
	pod := p.newPod()
	configMap := &environment.ConfigMap{
		Metadata: environment.ObjectMeta{Name: p.ConfigMapName()},
		Data: map[string]string{
			PublicKeyFile: publicKey,
			ConfigFile:    config,
		},
	}
	service := &environment.Service{
		Metadata: environment.ObjectMeta{
			Name:   p.serviceName,
			Labels: map[string]string{MachineNameLabel: MachineName},
		},
		Spec: environment.ServiceSpec{
			Selector: map[string]string{OriginalNameLabel: MachineName},
			Ports:    []environment.ServicePort{},
		},
	}

	env.PutMachine(MachineName, machine)
	env.PutPod(pod.Metadata.Name, pod)
	env.PutConfigMap(configMap.Metadata.Name, configMap)
	env.PutService(service.Metadata.Name, service)
	p.injected = true

	slog.Info("Injected jwtproxy sidecar",
		"workspace_id", p.identity.WorkspaceID,
		"service", p.serviceName,
		"config_map", configMap.Metadata.Name)
	return nil
}

// checkInjected verifies that an environment which already has the sidecar
// machine also has the resources this provisioner relies on.
func (p *Provisioner) checkInjected(env *environment.Environment) error {
	if _, ok := env.Pod(MachineName); !ok {
		return fmt.Errorf("%w: pod %s is missing", ErrInvariantViolation, MachineName)
	}
	if _, ok := env.ConfigMap(p.ConfigMapName()); !ok {
		return fmt.Errorf("%w: config map %s is missing", ErrInvariantViolation, p.ConfigMapName())
	}
	if _, ok := env.Service(p.serviceName); !ok {
		return fmt.Errorf("%w: service %s is missing", ErrInvariantViolation, p.serviceName)
	}
	p.injected = true
	return nil
}

func newMachine() *environment.MachineConfig {
	return &environment.MachineConfig{
		Attributes: map[string]string{
			environment.MemoryLimitAttribute: strconv.Itoa(MemoryLimitBytes),
		},
	}
}

func (p *Provisioner) newPod() *environment.Pod {
	return &environment.Pod{
		Metadata: environment.ObjectMeta{
			Name:        MachineName,
			Annotations: map[string]string{VerifierMachineAnnotation: MachineName},
		},
		Spec: environment.PodSpec{
			Containers: []environment.Container{{
				Name:         ContainerName,
				Image:        Image,
				VolumeMounts: []environment.VolumeMount{{Name: VolumeName, MountPath: ConfigFolder + "/"}},
				Args:         []string{"-config", ConfigFolder + "/" + ConfigFile},
			}},
			Volumes: []environment.Volume{{
				Name:      VolumeName,
				ConfigMap: &environment.ConfigMapVolumeSource{Name: p.ConfigMapName()},
			}},
		},
	}
}
