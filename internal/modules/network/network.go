// Package network analyzes the customer-supplier relationship graph.
package network

import (
	"github.com/aristath/tenderwatch/internal/domain"
)

// NodeType is the role an organization plays in the corpus
type NodeType string

// Node roles
const (
	NodeCustomer NodeType = "customer"
	NodeSupplier NodeType = "supplier"
	NodeBoth     NodeType = "both"
)

// Node is one organization keyed by BIN
type Node struct {
	BIN            string   `json:"bin"`
	Name           string   `json:"name,omitempty"`
	Type           NodeType `json:"type"`
	Degree         int      `json:"degree"`
	Centrality     float64  `json:"centrality"`
	CommunityID    int      `json:"community_id"`
	TotalContracts int      `json:"total_contracts"`
	TotalSum       float64  `json:"total_sum"`
}

// Edge aggregates the lots between one customer and one supplier
type Edge struct {
	CustomerBIN   string   `json:"customer_bin"`
	SupplierBIN   string   `json:"supplier_bin"`
	ContractCount int      `json:"contract_count"`
	TotalSum      float64  `json:"total_sum"`
	LotIDs        []string `json:"lot_ids"`
}

// Other returns the counterpart of bin on this edge
func (e Edge) Other(bin string) string {
	if e.CustomerBIN == bin {
		return e.SupplierBIN
	}
	return e.CustomerBIN
}

// Result is the network view of one organization
type Result struct {
	BIN              string   `json:"bin"`
	Found            bool     `json:"found"`
	Node             *Node    `json:"node"`
	Connections      []Node   `json:"connections"`
	Edges            []Edge   `json:"edges"`
	Flags            []string `json:"flags"`
	CommunityMembers []string `json:"community_members"`
	CommunitySize    int      `json:"community_size"`
}

// Stats summarizes the whole graph
type Stats struct {
	Nodes       int     `json:"nodes"`
	Edges       int     `json:"edges"`
	Communities int     `json:"communities"`
	Density     float64 `json:"density"`
	TopNodes    []Node  `json:"top_nodes"`
}

// Analyzer answers relationship queries over a corpus. Build replaces the
// graph; queries are read-only.
type Analyzer interface {
	Build(lots []domain.Lot)
	AnalyzeBIN(bin string) Result
	RepeatPairs(minContracts int) []Edge
	Stats() Stats
}

func emptyResult(bin string) Result {
	return Result{
		BIN:              bin,
		Connections:      []Node{},
		Edges:            []Edge{},
		Flags:            []string{},
		CommunityMembers: []string{},
	}
}

// NoopAnalyzer is used when graph analysis is disabled
type NoopAnalyzer struct{}

// Build does nothing
func (NoopAnalyzer) Build([]domain.Lot) {}

// AnalyzeBIN returns an empty result
func (NoopAnalyzer) AnalyzeBIN(bin string) Result { return emptyResult(bin) }

// RepeatPairs returns nothing
func (NoopAnalyzer) RepeatPairs(int) []Edge { return nil }

// Stats returns zero stats
func (NoopAnalyzer) Stats() Stats { return Stats{TopNodes: []Node{}} }
