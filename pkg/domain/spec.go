package domain

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PolicyType describes how the device treats an imported policy.
type PolicyType string

const (
	// PolicyTypeSecurity imports an application security policy that can be
	// attached to a virtual server.
	PolicyTypeSecurity PolicyType = "security"
	// PolicyTypeParent imports a policy template that child policies inherit
	// attributes from. Parent policies cannot be attached to virtual servers.
	PolicyTypeParent PolicyType = "parent"
)

// DefaultPartition is used when a spec does not name a device partition.
const DefaultPartition = "Common"

// PartitionEnvVar overrides the default partition when set in the environment.
const PartitionEnvVar = "F5_PARTITION"

// ApplicationLanguages lists the application languages the import task
// endpoint accepts for the applicationLanguage attribute.
var ApplicationLanguages = []string{
	"windows-874", "utf-8", "koi8-r", "windows-1253", "iso-8859-10",
	"gbk", "windows-1256", "windows-1250", "iso-8859-13", "iso-8859-9",
	"windows-1251", "iso-8859-6", "big5", "gb2312", "iso-8859-1",
	"windows-1252", "iso-8859-4", "iso-8859-2", "iso-8859-3", "gb18030",
	"shift_jis", "iso-8859-8", "euc-kr", "iso-8859-5", "iso-8859-7",
	"windows-1255", "euc-jp", "iso-8859-15", "windows-1257",
	"iso-8859-16", "auto-detect",
}

var applicationLanguageSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(ApplicationLanguages))
	for _, lang := range ApplicationLanguages {
		set[lang] = struct{}{}
	}
	return set
}()

// PolicySpec is the desired state for a single ASM policy import. Construct
// it with NewPolicySpec, or populate the fields directly and call Validate
// before use. A validated spec is treated as immutable.
type PolicySpec struct {
	// Name of the policy to create or overwrite.
	Name string
	// Partition on the device; empty selects DefaultPartition, with the
	// F5_PARTITION environment variable taking precedence over the default.
	Partition string
	// PolicyType selects security or parent semantics. Only honored for
	// inline imports; empty means security.
	PolicyType PolicyType
	// RetainInheritanceSettings keeps inherited settings when the imported
	// policy attaches to a parent. Nil leaves the device default.
	RetainInheritanceSettings *bool
	// ParentPolicy names an existing parent the imported policy attaches to.
	// Must be empty when PolicyType is parent.
	ParentPolicy string
	// Base64 marks inline content as base64 encoded. Nil leaves the device
	// default.
	Base64 *bool
	// Encoding is the application language of the imported policy. Must be
	// one of ApplicationLanguages when set.
	Encoding string
	// Source is a local path to a policy file, XML or binary. Mutually
	// exclusive with Inline.
	Source string
	// Inline is policy content supplied directly as an XML string. Mutually
	// exclusive with Source.
	Inline string
	// Force overwrites an existing policy with the same name.
	Force bool
}

// NewPolicySpec builds a validated PolicySpec with defaults applied.
func NewPolicySpec(name string, opts ...SpecOption) (PolicySpec, error) {
	spec := PolicySpec{Name: name}
	for _, opt := range opts {
		opt(&spec)
	}
	spec.applyDefaults()
	if err := spec.Validate(); err != nil {
		return PolicySpec{}, err
	}
	return spec, nil
}

// SpecOption customizes a PolicySpec under construction.
type SpecOption func(*PolicySpec)

// WithSource imports the policy from a local file.
func WithSource(path string) SpecOption {
	return func(s *PolicySpec) { s.Source = path }
}

// WithInline imports the policy from an XML string.
func WithInline(content string) SpecOption {
	return func(s *PolicySpec) { s.Inline = content }
}

// WithPartition places the policy in the named partition.
func WithPartition(partition string) SpecOption {
	return func(s *PolicySpec) { s.Partition = partition }
}

// WithPolicyType sets the import policy type.
func WithPolicyType(t PolicyType) SpecOption {
	return func(s *PolicySpec) { s.PolicyType = t }
}

// WithParentPolicy attaches the imported policy to an existing parent.
func WithParentPolicy(name string) SpecOption {
	return func(s *PolicySpec) { s.ParentPolicy = name }
}

// WithRetainInheritanceSettings controls inherited-settings retention.
func WithRetainInheritanceSettings(retain bool) SpecOption {
	return func(s *PolicySpec) { s.RetainInheritanceSettings = &retain }
}

// WithBase64 marks inline content as base64 encoded.
func WithBase64(b bool) SpecOption {
	return func(s *PolicySpec) { s.Base64 = &b }
}

// WithEncoding sets the application language of the imported policy.
func WithEncoding(encoding string) SpecOption {
	return func(s *PolicySpec) { s.Encoding = encoding }
}

// WithForce overwrites an existing policy with the same name.
func WithForce(force bool) SpecOption {
	return func(s *PolicySpec) { s.Force = force }
}

func (s *PolicySpec) applyDefaults() {
	if s.Partition == "" {
		if env := os.Getenv(PartitionEnvVar); env != "" {
			s.Partition = env
		} else {
			s.Partition = DefaultPartition
		}
	}
	if s.PolicyType == "" {
		s.PolicyType = PolicyTypeSecurity
	}
}

// Validate checks the spec invariants. It never touches the network.
func (s PolicySpec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return &ValidationError{Field: "name", Reason: "policy name is required"}
	}
	switch s.PolicyType {
	case PolicyTypeSecurity, PolicyTypeParent, "":
	default:
		return &ValidationError{
			Field:  "policy_type",
			Reason: fmt.Sprintf("unknown policy type %q", s.PolicyType),
		}
	}
	if s.ParentPolicy != "" && s.PolicyType == PolicyTypeParent {
		return &ValidationError{
			Field:  "parent_policy",
			Reason: "the policy type cannot be parent if a parent policy is defined",
		}
	}
	if s.Source != "" && s.Inline != "" {
		return &ValidationError{
			Field:  "source",
			Reason: "source and inline are mutually exclusive",
		}
	}
	if s.Encoding != "" {
		if _, ok := applicationLanguageSet[s.Encoding]; !ok {
			return &ValidationError{
				Field:  "encoding",
				Reason: fmt.Sprintf("unsupported application language %q", s.Encoding),
			}
		}
	}
	return nil
}

// FullPath returns the fully qualified policy name, e.g. /Common/app1.
func (s PolicySpec) FullPath() string {
	return FQName(s.Partition, s.Name)
}

// ParentFullPath returns the fully qualified parent policy name, or empty
// when no parent is set. The parent shares the spec's partition.
func (s PolicySpec) ParentFullPath() string {
	if s.ParentPolicy == "" {
		return ""
	}
	return FQName(s.Partition, s.ParentPolicy)
}

// SourceFilename returns the base name of the source file, or empty for
// inline imports.
func (s PolicySpec) SourceFilename() string {
	if s.Source == "" {
		return ""
	}
	return filepath.Base(s.Source)
}

// FQName qualifies a device object name with its partition. Names that are
// already fully qualified pass through unchanged.
func FQName(partition, name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	if partition == "" {
		partition = DefaultPartition
	}
	return "/" + partition + "/" + name
}
