package model

import "strings"

// Collection is the plural container suffix for kind, e.g. "scenarioruns".
func Collection(kind Kind) string {
	return strings.ToLower(string(kind)) + "s"
}

// ContainerName names the document container holding entities of kind. Global
// kinds and organizations live in shared containers; everything else lives in
// one container per organization named "<organizationId>_<collection>".
func ContainerName(kind Kind, organizationID string) string {
	if kind.IsGlobal() || kind == KindOrganization {
		return Collection(kind)
	}
	return organizationID + "_" + Collection(kind)
}
