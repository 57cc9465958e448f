// Package config loads the llar-glib configuration file.
package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
	k8syaml "sigs.k8s.io/yaml"

	"github.com/goplus/llar-glib/formula"
)

//go:embed schema.json
var schemaJSON string

var schema = jsonschema.MustCompileString("config.schema.json", schemaJSON)

// Config is the content of the configuration file.
type Config struct {
	// Settings override the detected host settings.
	Settings     formula.Settings `yaml:"settings,omitempty"`
	WorkspaceDir string           `yaml:"workspace_dir,omitempty"`
	Verbose      bool             `yaml:"verbose,omitempty"`
	SourceCache  SourceCache      `yaml:"source_cache,omitempty"`
	// Deps maps requirement names to installed packages.
	Deps map[string]Dep `yaml:"deps,omitempty"`
}

// SourceCache configures where downloaded archives are kept.
type SourceCache struct {
	Dir      string `yaml:"dir,omitempty"`
	Disabled bool   `yaml:"disabled,omitempty"`
	S3       *S3    `yaml:"s3,omitempty"`
}

// S3 locates a shared source cache in an S3 compatible store. Empty
// credentials are taken from LLAR_S3_ACCESS_KEY and LLAR_S3_SECRET_KEY.
type S3 struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region,omitempty"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix,omitempty"`
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	Secure    bool   `yaml:"secure,omitempty"`
}

// Dep is an installed package satisfying a requirement. In YAML it is
// either a bare path or a mapping with ref, path and info.
type Dep struct {
	// Ref is the reference of the installed package, e.g.
	// zlib/1.2.11@conan/stable. Empty means unknown.
	Ref  string               `yaml:"ref,omitempty"`
	Path string               `yaml:"path"`
	Info *formula.PackageInfo `yaml:"info,omitempty"`
}

func (d *Dep) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		d.Path = node.Value
		return nil
	}
	type plain Dep
	return node.Decode((*plain)(d))
}

// Load reads the configuration file at path. A missing or empty file yields
// the zero Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// Parse validates and decodes a configuration document.
func Parse(data []byte) (*Config, error) {
	doc, err := toJSON(data)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if doc == nil {
		return cfg, nil
	}
	if err := validate(doc); err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if s3 := cfg.SourceCache.S3; s3 != nil {
		if s3.AccessKey == "" {
			s3.AccessKey = os.Getenv("LLAR_S3_ACCESS_KEY")
		}
		if s3.SecretKey == "" {
			s3.SecretKey = os.Getenv("LLAR_S3_SECRET_KEY")
		}
	}
	return cfg, nil
}

// LoadDeps reads a dependency file: a YAML mapping shaped like the deps
// section of the configuration. Relative paths are resolved against the
// directory of the file.
func LoadDeps(path string) (map[string]Dep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := toJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg := &Config{}
	if doc != nil {
		if err := validate(map[string]any{"deps": doc}); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg.Deps); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg.Deps, nil
}

// ParseDepFlag parses "name=path" or "reference=path". The last '=' splits
// key and path, since version ranges such as [>=0.2.0] contain one.
func ParseDepFlag(s string) (string, Dep, error) {
	i := strings.LastIndex(s, "=")
	if i < 0 {
		return "", Dep{}, fmt.Errorf("invalid dependency %q: want name=path", s)
	}
	key, path := s[:i], s[i+1:]
	if key == "" || path == "" {
		return "", Dep{}, fmt.Errorf("invalid dependency %q: want name=path", s)
	}
	if !strings.Contains(key, "/") {
		return key, Dep{Path: path}, nil
	}
	ref, err := formula.ParseReference(key)
	if err != nil {
		return "", Dep{}, err
	}
	return ref.Name, Dep{Ref: ref.String(), Path: path}, nil
}

func (c *Config) resolvePaths(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.WorkspaceDir = abs(c.WorkspaceDir)
	c.SourceCache.Dir = abs(c.SourceCache.Dir)
	for name, dep := range c.Deps {
		dep.Path = abs(dep.Path)
		c.Deps[name] = dep
	}
}

// toJSON converts a YAML document to the generic JSON value the schema
// validator expects. An empty document is nil.
func toJSON(data []byte) (any, error) {
	doc, err := k8syaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return v, nil
}

func validate(doc any) error {
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
