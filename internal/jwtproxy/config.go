package jwtproxy

import (
	"bytes"
	"fmt"
	"net"
	"strconv"

	"github.com/EternisAI/silo-sidecar/internal/signature"
	"gopkg.in/yaml.v3"
)

const (
	tokenIssuer   = signature.Issuer
	maxSkew       = "1m"
	maxTTL        = "8800h"
	publicKeyPath = ConfigFolder + "/" + PublicKeyFile
)

// ExposureMapping routes one sidecar listen port to a backend URL.
type ExposureMapping struct {
	ListenPort int
	BackendURL string
}

type configDocument struct {
	JWTProxy proxySection `yaml:"jwtproxy"`
}

type proxySection struct {
	VerifierProxies []verifierProxy `yaml:"verifier_proxies"`
	SignerProxy     signerProxy     `yaml:"signer_proxy"`
}

type verifierProxy struct {
	ListenAddr string   `yaml:"listen_addr"`
	Verifier   verifier `yaml:"verifier"`
}

type verifier struct {
	Upstream        string        `yaml:"upstream"`
	Audience        string        `yaml:"audience"`
	MaxSkew         string        `yaml:"max_skew"`
	MaxTTL          string        `yaml:"max_ttl"`
	KeyServer       registrable   `yaml:"key_server"`
	ClaimsVerifiers []registrable `yaml:"claims_verifiers"`
	NonceStorage    registrable   `yaml:"nonce_storage"`
}

// registrable is the {type, options} shape jwtproxy uses for its pluggable
// components.
type registrable struct {
	Type    string            `yaml:"type"`
	Options map[string]string `yaml:"options,omitempty"`
}

type signerProxy struct {
	Enabled bool `yaml:"enabled"`
}

// ConfigBuilder accumulates verifier proxy mappings for one workspace and
// renders the complete jwtproxy configuration document.
type ConfigBuilder struct {
	workspaceID string
	mappings    []ExposureMapping
	ports       map[int]struct{}
}

func NewConfigBuilder(workspaceID string) *ConfigBuilder {
	return &ConfigBuilder{
		workspaceID: workspaceID,
		ports:       make(map[int]struct{}),
	}
}

func (b *ConfigBuilder) AddVerifierProxy(listenPort int, backendURL string) error {
	if _, exists := b.ports[listenPort]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateListenPort, listenPort)
	}
	b.ports[listenPort] = struct{}{}
	b.mappings = append(b.mappings, ExposureMapping{ListenPort: listenPort, BackendURL: backendURL})
	return nil
}

// removeLast drops the most recent mapping. Expose uses it to undo a mapping
// whose document could not be rendered.
func (b *ConfigBuilder) removeLast() {
	if len(b.mappings) == 0 {
		return
	}
	last := b.mappings[len(b.mappings)-1]
	delete(b.ports, last.ListenPort)
	b.mappings = b.mappings[:len(b.mappings)-1]
}

// Mappings returns a copy of the registered mappings in insertion order.
func (b *ConfigBuilder) Mappings() []ExposureMapping {
	out := make([]ExposureMapping, len(b.mappings))
	copy(out, b.mappings)
	return out
}

// Build renders every mapping registered so far. The result is a complete
// document meant to replace the previous one.
func (b *ConfigBuilder) Build() (string, error) {
	doc := configDocument{}
	for _, m := range b.mappings {
		doc.JWTProxy.VerifierProxies = append(doc.JWTProxy.VerifierProxies, verifierProxy{
			ListenAddr: ":" + strconv.Itoa(m.ListenPort),
			Verifier: verifier{
				Upstream: m.BackendURL,
				Audience: b.workspaceID,
				MaxSkew:  maxSkew,
				MaxTTL:   maxTTL,
				KeyServer: registrable{
					Type: "preshared",
					Options: map[string]string{
						"issuer":          tokenIssuer,
						"key_id":          b.workspaceID,
						"public_key_path": publicKeyPath,
					},
				},
				ClaimsVerifiers: []registrable{{
					Type:    "static",
					Options: map[string]string{"iss": tokenIssuer},
				}},
				NonceStorage: registrable{Type: "void"},
			},
		})
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("failed to encode jwtproxy config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode jwtproxy config: %w", err)
	}
	return buf.String(), nil
}

// ParseConfig extracts the mappings from a document produced by Build.
func ParseConfig(data string) ([]ExposureMapping, error) {
	var doc configDocument
	if err := yaml.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse jwtproxy config: %w", err)
	}

	mappings := make([]ExposureMapping, 0, len(doc.JWTProxy.VerifierProxies))
	for _, vp := range doc.JWTProxy.VerifierProxies {
		_, portStr, err := net.SplitHostPort(vp.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("invalid listen address %q: %w", vp.ListenAddr, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port < 1 || port > maxPort {
			return nil, fmt.Errorf("invalid listen port in %q", vp.ListenAddr)
		}
		mappings = append(mappings, ExposureMapping{ListenPort: port, BackendURL: vp.Verifier.Upstream})
	}
	return mappings, nil
}
