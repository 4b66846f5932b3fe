package environment

// RuntimeIdentity identifies the workspace runtime an environment belongs to.
type RuntimeIdentity struct {
	WorkspaceID string `json:"workspace_id" yaml:"workspace_id"`
	EnvName     string `json:"env_name,omitempty" yaml:"env_name,omitempty"`
	OwnerID     string `json:"owner_id,omitempty" yaml:"owner_id,omitempty"`
}

type ObjectMeta struct {
	Name        string            `json:"name,omitempty" yaml:"name,omitempty"`
	Labels      map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty" yaml:"annotations,omitempty"`
}

// MachineConfig describes a workspace machine. Attributes carry limits such
// as MemoryLimitAttribute.
type MachineConfig struct {
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

const MemoryLimitAttribute = "memoryLimitBytes"

type VolumeMount struct {
	Name      string `json:"name" yaml:"name"`
	MountPath string `json:"mountPath" yaml:"mountPath"`
	ReadOnly  bool   `json:"readOnly,omitempty" yaml:"readOnly,omitempty"`
}

type Container struct {
	Name         string        `json:"name" yaml:"name"`
	Image        string        `json:"image" yaml:"image"`
	Args         []string      `json:"args,omitempty" yaml:"args,omitempty"`
	VolumeMounts []VolumeMount `json:"volumeMounts,omitempty" yaml:"volumeMounts,omitempty"`
}

type ConfigMapVolumeSource struct {
	Name string `json:"name" yaml:"name"`
}

type Volume struct {
	Name      string                 `json:"name" yaml:"name"`
	ConfigMap *ConfigMapVolumeSource `json:"configMap,omitempty" yaml:"configMap,omitempty"`
}

type PodSpec struct {
	Containers []Container `json:"containers" yaml:"containers"`
	Volumes    []Volume    `json:"volumes,omitempty" yaml:"volumes,omitempty"`
}

type Pod struct {
	Metadata ObjectMeta `json:"metadata" yaml:"metadata"`
	Spec     PodSpec    `json:"spec" yaml:"spec"`
}

type ConfigMap struct {
	Metadata ObjectMeta        `json:"metadata" yaml:"metadata"`
	Data     map[string]string `json:"data,omitempty" yaml:"data,omitempty"`
}

// ServicePort is a single exposed port of a Service. TargetPort is the
// container port traffic is forwarded to.
type ServicePort struct {
	Name       string `json:"name" yaml:"name"`
	Port       int    `json:"port" yaml:"port"`
	Protocol   string `json:"protocol" yaml:"protocol"`
	TargetPort int    `json:"targetPort" yaml:"targetPort"`
}

type ServiceSpec struct {
	Selector map[string]string `json:"selector,omitempty" yaml:"selector,omitempty"`
	Ports    []ServicePort     `json:"ports" yaml:"ports"`
}

type Service struct {
	Metadata ObjectMeta  `json:"metadata" yaml:"metadata"`
	Spec     ServiceSpec `json:"spec" yaml:"spec"`
}
