package usecase

import "cosmo-migrator/internal/migration/domain/model"

// Reference describes one foreign key a record of some kind carries.
type Reference struct {
	// Field is a dot path into the record.
	Field string
	// Kind is the kind the field points at.
	Kind model.Kind
	// Required references make the entity unmigratable when absent or unmapped.
	// Optional ones are rewritten when mapped and kept verbatim otherwise.
	Required bool
	// List marks a field holding an array of identifiers.
	List bool
}

var referenceTable = map[model.Kind][]Reference{
	model.KindSolution: {
		{Field: "organizationId", Kind: model.KindOrganization, Required: true},
	},
	model.KindDataset: {
		{Field: "organizationId", Kind: model.KindOrganization, Required: true},
		{Field: "connector.id", Kind: model.KindConnector, Required: true},
	},
	model.KindWorkspace: {
		{Field: "organizationId", Kind: model.KindOrganization, Required: true},
		{Field: "solution.solutionId", Kind: model.KindSolution, Required: true},
	},
	model.KindScenario: {
		{Field: "organizationId", Kind: model.KindOrganization, Required: true},
		{Field: "workspaceId", Kind: model.KindWorkspace, Required: true},
		{Field: "solutionId", Kind: model.KindSolution, Required: true},
		{Field: "datasetList", Kind: model.KindDataset, List: true},
		{Field: "parentId", Kind: model.KindScenario},
		{Field: "rootId", Kind: model.KindScenario},
	},
	model.KindScenarioRun: {
		{Field: "organizationId", Kind: model.KindOrganization, Required: true},
		{Field: "workspaceId", Kind: model.KindWorkspace, Required: true},
		{Field: "scenarioId", Kind: model.KindScenario, Required: true},
		{Field: "solutionId", Kind: model.KindSolution, Required: true},
	},
}

// ReferencesFor returns the foreign keys of kind; nil for kinds without any.
func ReferencesFor(kind model.Kind) []Reference {
	return referenceTable[kind]
}
