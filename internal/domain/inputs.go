package domain

// Inputs is everything a reconciliation run reads before talking to Kubera.
type Inputs struct {
	Accounts []Account
	Mapping  MappingTable
	Groups   GroupDefinitions
}
