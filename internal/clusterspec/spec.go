// Package clusterspec defines the persisted description of a cluster: its lifecycle state, global
// options, per-role configuration and where its configuration and data live.
package clusterspec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"

	"github.com/G-Research/flotilla/internal/common/flotillaerrors"
)

const Version = "1.0"

// Specification states.
const (
	StateIncomplete = "incomplete"
	StateSubmitted  = "submitted"
)

// Role option keys.
const (
	KeyInstances = "role.instances"
	KeyMemory    = "resource.memory"
	KeyVCores    = "resource.vcores"
	KeyHeap      = "app.heap"
	KeyInfoPort  = "app.infoport"
	// Role options with this prefix are exported to the environment of the role's processes.
	EnvPrefix = "env."
)

// Global option keys.
const (
	// OptionTestMode limits a submission to a single attempt.
	OptionTestMode = "flotilla.test"
)

var clusterNameRegexp = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

type ClusterSpecification struct {
	Version    string `json:"version" validate:"required,eq=1.0"`
	Name       string `json:"name" validate:"required"`
	Type       string `json:"type" validate:"required"`
	State      string `json:"state" validate:"oneof=incomplete submitted"`
	CreateTime int64  `json:"createTime" validate:"gte=0"`

	OriginConfigurationPath    string `json:"originConfigurationPath,omitempty"`
	GeneratedConfigurationPath string `json:"generatedConfigurationPath,omitempty"`
	DataPath                   string `json:"dataPath,omitempty"`
	ImagePath                  string `json:"imagePath,omitempty"`
	ApplicationHome            string `json:"applicationHome,omitempty"`

	ZkHosts string `json:"zkHosts,omitempty"`
	ZkPort  int    `json:"zkPort" validate:"gte=0,lte=65535"`
	ZkPath  string `json:"zkPath,omitempty"`

	Options          map[string]string            `json:"options"`
	Roles            map[string]map[string]string `json:"roles"`
	ClientProperties map[string]string            `json:"clientProperties,omitempty"`
}

func New(name string, clusterType string) *ClusterSpecification {
	return &ClusterSpecification{
		Version: Version,
		Name:    name,
		Type:    clusterType,
		State:   StateIncomplete,
		Options: map[string]string{},
		Roles:   map[string]map[string]string{},
	}
}

// ValidateClusterName checks that name can be used as a cluster name and as a path element.
func ValidateClusterName(name string) error {
	if !clusterNameRegexp.MatchString(name) {
		return &flotillaerrors.ErrInvalidArgument{
			Name:    "name",
			Value:   name,
			Message: "cluster names must start with a lower case letter and contain only lower case letters, digits, '-' and '_'",
		}
	}
	return nil
}

func (s *ClusterSpecification) Role(role string) map[string]string {
	return s.Roles[role]
}

// RoleNames returns the configured roles in lexical order.
func (s *ClusterSpecification) RoleNames() []string {
	names := maps.Keys(s.Roles)
	sort.Strings(names)
	return names
}

// DesiredInstanceCount returns the requested instance count of role, 0 if the role has none.
func (s *ClusterSpecification) DesiredInstanceCount(role string) (int, error) {
	value, ok := s.Roles[role][KeyInstances]
	if !ok || value == "" {
		return 0, nil
	}
	count, err := strconv.Atoi(value)
	if err != nil || count < 0 {
		return 0, &flotillaerrors.ErrInvalidSpecification{
			Path:    s.Name,
			Message: fmt.Sprintf("role %s has invalid %s %q", role, KeyInstances, value),
		}
	}
	return count, nil
}

func (s *ClusterSpecification) SetDesiredInstanceCount(role string, count int) {
	s.SetRoleOpt(role, KeyInstances, strconv.Itoa(count))
}

func (s *ClusterSpecification) SetRoleOpt(role string, key string, value string) {
	if s.Roles == nil {
		s.Roles = map[string]map[string]string{}
	}
	if s.Roles[role] == nil {
		s.Roles[role] = map[string]string{}
	}
	s.Roles[role][key] = value
}

// GetRoleOpt returns the role option key, or def if the role or the option is unset.
func (s *ClusterSpecification) GetRoleOpt(role string, key string, def string) string {
	if value, ok := s.Roles[role][key]; ok {
		return value
	}
	return def
}

func (s *ClusterSpecification) GetRoleOptInt(role string, key string, def int) (int, error) {
	value, ok := s.Roles[role][key]
	if !ok || value == "" {
		return def, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, &flotillaerrors.ErrInvalidSpecification{
			Path:    s.Name,
			Message: fmt.Sprintf("role %s option %s is not an integer: %q", role, key, value),
		}
	}
	return i, nil
}

// RoleEnv returns the role's env.* options with the prefix stripped.
func (s *ClusterSpecification) RoleEnv(role string) map[string]string {
	env := map[string]string{}
	for key, value := range s.Roles[role] {
		if len(key) > len(EnvPrefix) && key[:len(EnvPrefix)] == EnvPrefix {
			env[key[len(EnvPrefix):]] = value
		}
	}
	return env
}

func (s *ClusterSpecification) GetOptionBool(key string, def bool) bool {
	value, ok := s.Options[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return b
}

// Clone returns a deep copy.
func (s *ClusterSpecification) Clone() *ClusterSpecification {
	clone := *s
	clone.Options = maps.Clone(s.Options)
	clone.ClientProperties = maps.Clone(s.ClientProperties)
	clone.Roles = make(map[string]map[string]string, len(s.Roles))
	for role, opts := range s.Roles {
		clone.Roles[role] = maps.Clone(opts)
	}
	return &clone
}

func (s *ClusterSpecification) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, errors.Wrapf(err, "error marshalling specification of cluster %s", s.Name)
	}
	return data, nil
}

var validate = validator.New()

// Validate checks the fields of the specification, reporting problems as ErrInvalidSpecification.
func (s *ClusterSpecification) Validate(path string) error {
	if err := validate.Struct(s); err != nil {
		return &flotillaerrors.ErrInvalidSpecification{Path: path, Message: validationMessage(err)}
	}
	for _, role := range s.RoleNames() {
		if _, err := s.DesiredInstanceCount(role); err != nil {
			return &flotillaerrors.ErrInvalidSpecification{Path: path, Message: err.Error()}
		}
	}
	return nil
}

// Parse decodes a persisted specification. Malformed JSON, unknown fields, an unexpected version and
// invalid fields are all reported as ErrInvalidSpecification.
func Parse(data []byte, path string) (*ClusterSpecification, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	spec := &ClusterSpecification{}
	if err := decoder.Decode(spec); err != nil {
		return nil, &flotillaerrors.ErrInvalidSpecification{Path: path, Message: err.Error()}
	}
	if spec.Version != Version {
		return nil, &flotillaerrors.ErrInvalidSpecification{
			Path:    path,
			Message: fmt.Sprintf("unsupported version %q, expected %q", spec.Version, Version),
		}
	}
	if err := spec.Validate(path); err != nil {
		return nil, err
	}
	if spec.Options == nil {
		spec.Options = map[string]string{}
	}
	if spec.Roles == nil {
		spec.Roles = map[string]map[string]string{}
	}
	return spec, nil
}

func validationMessage(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}
	msg := ""
	for i, fieldErr := range validationErrors {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("field %s failed check %s", fieldErr.Field(), fieldErr.Tag())
	}
	return msg
}
