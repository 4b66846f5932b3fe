// Package environment models the in-memory description of the cluster
// resources that make up one workspace runtime. Provisioners mutate an
// Environment before it is applied to the cluster; the caller owns it and is
// responsible for persisting it.
package environment

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
)

// Environment holds the keyed resource collections of a workspace. Values are
// pointers so provisioners can update a resource in place after looking it up.
type Environment struct {
	Machines   map[string]*MachineConfig `json:"machines" yaml:"machines"`
	Pods       map[string]*Pod           `json:"pods" yaml:"pods"`
	ConfigMaps map[string]*ConfigMap     `json:"configMaps" yaml:"configMaps"`
	Services   map[string]*Service       `json:"services" yaml:"services"`
}

func New() *Environment {
	return &Environment{
		Machines:   make(map[string]*MachineConfig),
		Pods:       make(map[string]*Pod),
		ConfigMaps: make(map[string]*ConfigMap),
		Services:   make(map[string]*Service),
	}
}

// ensureMaps initializes nil collections, which happens after decoding a
// document that omits a section.
func (e *Environment) ensureMaps() {
	if e.Machines == nil {
		e.Machines = make(map[string]*MachineConfig)
	}
	if e.Pods == nil {
		e.Pods = make(map[string]*Pod)
	}
	if e.ConfigMaps == nil {
		e.ConfigMaps = make(map[string]*ConfigMap)
	}
	if e.Services == nil {
		e.Services = make(map[string]*Service)
	}
}

func (e *Environment) Machine(name string) (*MachineConfig, bool) {
	m, ok := e.Machines[name]
	return m, ok
}

func (e *Environment) Pod(name string) (*Pod, bool) {
	p, ok := e.Pods[name]
	return p, ok
}

func (e *Environment) ConfigMap(name string) (*ConfigMap, bool) {
	cm, ok := e.ConfigMaps[name]
	return cm, ok
}

func (e *Environment) Service(name string) (*Service, bool) {
	s, ok := e.Services[name]
	return s, ok
}

func (e *Environment) PutMachine(name string, m *MachineConfig) {
	e.ensureMaps()
	e.Machines[name] = m
}

func (e *Environment) PutPod(name string, p *Pod) {
	e.ensureMaps()
	e.Pods[name] = p
}

func (e *Environment) PutConfigMap(name string, cm *ConfigMap) {
	e.ensureMaps()
	e.ConfigMaps[name] = cm
}

func (e *Environment) PutService(name string, s *Service) {
	e.ensureMaps()
	e.Services[name] = s
}

// ServiceNames returns the service keys in sorted order.
func (e *Environment) ServiceNames() []string {
	names := make([]string, 0, len(e.Services))
	for name := range e.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy. Mutating the copy never affects the original.
func (e *Environment) Clone() *Environment {
	out := New()
	if e == nil {
		return out
	}
	for name, m := range e.Machines {
		if m == nil {
			out.Machines[name] = nil
			continue
		}
		out.Machines[name] = &MachineConfig{Attributes: maps.Clone(m.Attributes)}
	}
	for name, p := range e.Pods {
		out.Pods[name] = clonePod(p)
	}
	for name, cm := range e.ConfigMaps {
		if cm == nil {
			out.ConfigMaps[name] = nil
			continue
		}
		out.ConfigMaps[name] = &ConfigMap{Metadata: cloneMeta(cm.Metadata), Data: maps.Clone(cm.Data)}
	}
	for name, s := range e.Services {
		if s == nil {
			out.Services[name] = nil
			continue
		}
		out.Services[name] = &Service{
			Metadata: cloneMeta(s.Metadata),
			Spec: ServiceSpec{
				Selector: maps.Clone(s.Spec.Selector),
				Ports:    slices.Clone(s.Spec.Ports),
			},
		}
	}
	return out
}

func cloneMeta(m ObjectMeta) ObjectMeta {
	return ObjectMeta{
		Name:        m.Name,
		Labels:      maps.Clone(m.Labels),
		Annotations: maps.Clone(m.Annotations),
	}
}

func clonePod(p *Pod) *Pod {
	if p == nil {
		return nil
	}
	out := &Pod{Metadata: cloneMeta(p.Metadata)}
	for _, c := range p.Spec.Containers {
		out.Spec.Containers = append(out.Spec.Containers, Container{
			Name:         c.Name,
			Image:        c.Image,
			Args:         slices.Clone(c.Args),
			VolumeMounts: slices.Clone(c.VolumeMounts),
		})
	}
	for _, v := range p.Spec.Volumes {
		nv := Volume{Name: v.Name}
		if v.ConfigMap != nil {
			src := *v.ConfigMap
			nv.ConfigMap = &src
		}
		out.Spec.Volumes = append(out.Spec.Volumes, nv)
	}
	return out
}

// Encode serializes the environment as JSON.
func (e *Environment) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode environment: %w", err)
	}
	return data, nil
}

// Decode parses a JSON document produced by Encode.
func Decode(data []byte) (*Environment, error) {
	env := New()
	if len(data) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(data, env); err != nil {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}
	env.ensureMaps()
	return env, nil
}
