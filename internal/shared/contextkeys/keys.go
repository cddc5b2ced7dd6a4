package contextkeys

// contextKey is an unexported type to prevent collisions with context keys defined in
// other packages.
type contextKey string

// String makes contextKey satisfy the Stringer interface to assist with debugging.
func (c contextKey) String() string {
	return "cosmo-migrator context key " + string(c)
}

// RunIDKey identifies one migration invocation.
const RunIDKey = contextKey("runID")

// KindKey is the entity kind currently being migrated.
const KindKey = contextKey("kind")

// OrganizationIDKey is the source organization id of the current scope.
const OrganizationIDKey = contextKey("organizationID")

// WorkspaceIDKey is the source workspace id of the current scope.
const WorkspaceIDKey = contextKey("workspaceID")

// ScenarioIDKey is the source scenario id of the current scope.
const ScenarioIDKey = contextKey("scenarioID")

// ComponentKey names the component emitting a log line.
const ComponentKey = contextKey("component")

// OperationKey names the operation in progress (export, import, migrate).
const OperationKey = contextKey("operation")
