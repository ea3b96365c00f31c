package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xizzxy/atlas/internal/limiter"
)

// PolicyFile is the YAML layout of a policy table:
//
//	policies:
//	  default:
//	    algorithm: fixed
//	    limit: 100
//	    window_seconds: 60
//	  premium:
//	    algorithm: token
//	    capacity: 50
//	    refill_rate_per_second: 10
type PolicyFile struct {
	Policies limiter.Policies `yaml:"policies"`
}

// LoadPolicies reads and validates the policy table at path.
func LoadPolicies(path string) (limiter.Policies, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	policies, err := ParsePolicies(data)
	if err != nil {
		return nil, fmt.Errorf("policy file %s: %w", path, err)
	}
	return policies, nil
}

// ParsePolicies decodes a YAML policy table. Unknown fields are rejected so a
// misspelt parameter cannot silently fall back to zero.
func ParsePolicies(data []byte) (limiter.Policies, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file PolicyFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: decode yaml: %v", limiter.ErrInvalidConfig, err)
	}
	if err := file.Policies.Validate(); err != nil {
		return nil, err
	}
	return file.Policies, nil
}
