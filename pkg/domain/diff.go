package domain

// Action is the resolved operation for one import invocation.
type Action int

const (
	// ActionSkip leaves an existing policy untouched (force not set).
	ActionSkip Action = iota
	// ActionCreate imports a policy that does not exist yet.
	ActionCreate
	// ActionOverwrite replaces an existing policy in place.
	ActionOverwrite
)

func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionCreate:
		return "create"
	case ActionOverwrite:
		return "overwrite"
	default:
		return "unknown"
	}
}

// DiffResult is the read-only report of what an import changed. It is
// computed once from the spec and the resolved action and never mutated.
type DiffResult struct {
	Changed bool   `json:"changed"`
	Action  Action `json:"-"`

	Name                      string `json:"name,omitempty"`
	Source                    string `json:"source,omitempty"`
	Inline                    string `json:"inline,omitempty"`
	Force                     *bool  `json:"force,omitempty"`
	PolicyType                string `json:"policy_type,omitempty"`
	RetainInheritanceSettings *bool  `json:"retain_inheritance_settings,omitempty"`
	ParentPolicy              string `json:"parent_policy,omitempty"`
	Base64                    *bool  `json:"base64,omitempty"`
	Encoding                  string `json:"encoding,omitempty"`
}

// NewDiffResult derives the reportable diff for a spec and its resolved
// action. Skip reports no change. Create clears force since there was
// nothing to overwrite. File-based imports omit the attributes the device
// only honors on inline imports.
func NewDiffResult(spec PolicySpec, action Action) DiffResult {
	if action == ActionSkip {
		return DiffResult{Changed: false, Action: action}
	}

	diff := DiffResult{
		Changed: true,
		Action:  action,
		Name:    spec.Name,
		Source:  spec.Source,
		Inline:  spec.Inline,
	}
	if spec.Force && action == ActionOverwrite {
		force := true
		diff.Force = &force
	}
	if spec.Source == "" {
		diff.PolicyType = string(spec.PolicyType)
		diff.RetainInheritanceSettings = spec.RetainInheritanceSettings
		diff.ParentPolicy = spec.ParentFullPath()
		diff.Base64 = spec.Base64
		diff.Encoding = spec.Encoding
	}
	return diff
}
