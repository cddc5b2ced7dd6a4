package model

import "strings"

// Kind is the domain type of an entity.
type Kind string

const (
	KindOrganization Kind = "Organization"
	KindSolution     Kind = "Solution"
	KindDataset      Kind = "Dataset"
	KindWorkspace    Kind = "Workspace"
	KindScenario     Kind = "Scenario"
	KindScenarioRun  Kind = "ScenarioRun"
	KindConnector    Kind = "Connector"
	KindUser         Kind = "User"
	KindUnknown      Kind = "Unknown"
)

// MigrationOrder lists the migratable kinds parents first. An entity of a kind
// may only reference kinds that appear before it.
var MigrationOrder = []Kind{
	KindConnector,
	KindOrganization,
	KindSolution,
	KindDataset,
	KindWorkspace,
	KindScenario,
	KindScenarioRun,
}

// Rank returns the position of k in MigrationOrder, or -1 for kinds that are
// never migrated (User, Unknown).
func (k Kind) Rank() int {
	for i, candidate := range MigrationOrder {
		if candidate == k {
			return i
		}
	}
	return -1
}

// IsGlobal reports kinds that live outside any organization.
func (k Kind) IsGlobal() bool {
	return k == KindConnector || k == KindUser
}

// String implements fmt.Stringer.
func (k Kind) String() string { return string(k) }

// ParseKind maps a `type` field value to a Kind, case-insensitively.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "organization":
		return KindOrganization
	case "solution":
		return KindSolution
	case "dataset":
		return KindDataset
	case "workspace":
		return KindWorkspace
	case "scenario":
		return KindScenario
	case "scenariorun", "scenario_run", "scenario-run":
		return KindScenarioRun
	case "connector":
		return KindConnector
	case "user":
		return KindUser
	}
	return KindUnknown
}

type prefixRule struct {
	prefix string
	kind   Kind
}

// classificationRules is evaluated top to bottom. A rule whose prefix extends
// another rule's prefix must come first: "sol" and "sr" would otherwise be
// swallowed by "s".
var classificationRules = []prefixRule{
	{"sol", KindSolution},
	{"sr", KindScenarioRun},
	{"o", KindOrganization},
	{"d", KindDataset},
	{"w", KindWorkspace},
	{"c", KindConnector},
	{"u", KindUser},
	{"s", KindScenario},
}

// IDPrefix is the prefix used when minting identifiers of kind k.
func (k Kind) IDPrefix() string {
	for _, rule := range classificationRules {
		if rule.kind == k {
			return rule.prefix
		}
	}
	return "x"
}

// NormalizeID lowercases an identifier and replaces underscores with dashes.
func NormalizeID(id string) string {
	return strings.ToLower(strings.ReplaceAll(id, "_", "-"))
}

// Classify infers the kind of an entity from its identifier prefix.
func Classify(id string) Kind {
	normalized := NormalizeID(id)
	for _, rule := range classificationRules {
		if strings.HasPrefix(normalized, rule.prefix) {
			return rule.kind
		}
	}
	return KindUnknown
}
