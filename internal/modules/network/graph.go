package network

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/iterator"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/aristath/tenderwatch/internal/config"
	"github.com/aristath/tenderwatch/internal/domain"
)

type pair struct {
	customer, supplier string
}

// graphState is immutable once built
type graphState struct {
	nodes       map[string]*Node
	edges       map[pair]*Edge
	edgeKeys    []pair              // sorted
	adjacency   map[string][]string // sorted neighbour BINs
	communities map[int][]string    // sorted members
	g           *simple.WeightedUndirectedGraph
	ids         map[string]int64
	bins        []string // indexed by gonum node id
}

// GraphAnalyzer builds a weighted undirected graph with gonum and
// partitions it by modularity.
type GraphAnalyzer struct {
	cal config.GraphCalibration
	log zerolog.Logger

	mu    sync.RWMutex
	state *graphState
}

// NewGraphAnalyzer creates an analyzer with an empty graph
func NewGraphAnalyzer(cal config.GraphCalibration, log zerolog.Logger) *GraphAnalyzer {
	return &GraphAnalyzer{
		cal:   cal,
		log:   log.With().Str("component", "network").Logger(),
		state: newGraphState(),
	}
}

func newGraphState() *graphState {
	return &graphState{
		nodes:       map[string]*Node{},
		edges:       map[pair]*Edge{},
		adjacency:   map[string][]string{},
		communities: map[int][]string{},
		g:           simple.NewWeightedUndirectedGraph(0, 0),
	}
}

// Build constructs the graph from lots that name both a customer and a
// winner. Edge weight is the contract count.
func (a *GraphAnalyzer) Build(lots []domain.Lot) {
	start := time.Now()
	st := newGraphState()

	for _, lot := range lots {
		customer, supplier := lot.CustomerBIN, lot.WinnerBIN
		if customer == "" || supplier == "" {
			continue
		}

		c := st.node(customer, NodeCustomer)
		if c.Name == "" {
			c.Name = lot.CustomerName
		}
		s := st.node(supplier, NodeSupplier)
		if s.Name == "" {
			s.Name = lot.WinnerName
		}

		key := pair{customer, supplier}
		e, ok := st.edges[key]
		if !ok {
			e = &Edge{CustomerBIN: customer, SupplierBIN: supplier}
			st.edges[key] = e
		}
		e.ContractCount++
		e.TotalSum += lot.ContractSum
		e.LotIDs = append(e.LotIDs, lot.LotID)

		c.TotalContracts++
		c.TotalSum += lot.Budget
		s.TotalContracts++
		s.TotalSum += lot.ContractSum
	}

	st.index()
	st.computeCentrality()
	st.detectCommunities(a.cal.Seed)

	a.mu.Lock()
	a.state = st
	a.mu.Unlock()

	a.log.Info().
		Int("nodes", len(st.nodes)).
		Int("edges", len(st.adjacencyEdges())).
		Int("communities", len(st.communities)).
		Dur("duration", time.Since(start)).
		Msg("Relationship graph built")
}

func (st *graphState) node(bin string, role NodeType) *Node {
	n, ok := st.nodes[bin]
	if !ok {
		n = &Node{BIN: bin, Type: role, CommunityID: -1}
		st.nodes[bin] = n
		return n
	}
	if n.Type != role {
		n.Type = NodeBoth
	}
	return n
}

// index assigns gonum ids in BIN order and builds the undirected adjacency.
// A customer buying from itself has no graph edge.
func (st *graphState) index() {
	bins := make([]string, 0, len(st.nodes))
	for bin := range st.nodes {
		bins = append(bins, bin)
	}
	sort.Strings(bins)

	ids := make(map[string]int64, len(bins))
	for i, bin := range bins {
		ids[bin] = int64(i)
		st.g.AddNode(simple.Node(int64(i)))
	}

	weights := map[pair]float64{}
	for key, e := range st.edges {
		st.edgeKeys = append(st.edgeKeys, key)
		if key.customer == key.supplier {
			continue
		}
		// customer->supplier and supplier->customer lots share one undirected edge
		u, v := key.customer, key.supplier
		if v < u {
			u, v = v, u
		}
		weights[pair{u, v}] += float64(e.ContractCount)
	}
	sort.Slice(st.edgeKeys, func(i, j int) bool {
		if st.edgeKeys[i].customer != st.edgeKeys[j].customer {
			return st.edgeKeys[i].customer < st.edgeKeys[j].customer
		}
		return st.edgeKeys[i].supplier < st.edgeKeys[j].supplier
	})

	for key, w := range weights {
		st.g.SetWeightedEdge(st.g.NewWeightedEdge(simple.Node(ids[key.customer]), simple.Node(ids[key.supplier]), w))
		st.adjacency[key.customer] = append(st.adjacency[key.customer], key.supplier)
		st.adjacency[key.supplier] = append(st.adjacency[key.supplier], key.customer)
	}
	for bin := range st.adjacency {
		sort.Strings(st.adjacency[bin])
	}

	st.ids = ids
	st.bins = bins
}

// adjacencyEdges lists each undirected edge once
func (st *graphState) adjacencyEdges() []pair {
	var out []pair
	for u, ns := range st.adjacency {
		for _, v := range ns {
			if u < v {
				out = append(out, pair{u, v})
			}
		}
	}
	return out
}

// computeCentrality sets degree and degree centrality, degree/(n-1)
func (st *graphState) computeCentrality() {
	n := len(st.nodes)
	for bin, node := range st.nodes {
		node.Degree = st.g.From(st.ids[bin]).Len()
		if n > 1 {
			node.Centrality = math.Round(float64(node.Degree)/float64(n-1)*10000) / 10000
		}
	}
}

// orderedGraph yields nodes and neighbours in id order. simple graphs
// iterate maps, which would make Louvain's move order vary between builds.
type orderedGraph struct {
	*simple.WeightedUndirectedGraph
}

func sortedNodes(it graph.Nodes) graph.Nodes {
	nodes := graph.NodesOf(it)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })
	return iterator.NewOrderedNodes(nodes)
}

func (g orderedGraph) Nodes() graph.Nodes {
	return sortedNodes(g.WeightedUndirectedGraph.Nodes())
}

func (g orderedGraph) From(id int64) graph.Nodes {
	return sortedNodes(g.WeightedUndirectedGraph.From(id))
}

// detectCommunities runs Louvain modularity optimization over a fixed node
// order with a seeded source, so one corpus always yields one partition.
// Community ids are renumbered by each community's smallest BIN.
func (st *graphState) detectCommunities(seed uint64) {
	if len(st.nodes) == 0 {
		return
	}

	var groups [][]string
	if len(st.adjacency) == 0 {
		// modularity is undefined without edges; every node is its own community
		for _, bin := range st.bins {
			groups = append(groups, []string{bin})
		}
	} else {
		reduced := community.Modularize(orderedGraph{st.g}, 1, rand.NewPCG(seed, seed))
		for _, comm := range reduced.Communities() {
			members := make([]string, 0, len(comm))
			for _, n := range comm {
				members = append(members, st.bins[n.ID()])
			}
			sort.Strings(members)
			groups = append(groups, members)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })

	for id, members := range groups {
		st.communities[id] = members
		for _, bin := range members {
			st.nodes[bin].CommunityID = id
		}
	}
}

// AnalyzeBIN returns the node, its connections and edges, and the
// suspicious-pattern flags. Unknown BINs yield an empty result.
func (a *GraphAnalyzer) AnalyzeBIN(bin string) Result {
	a.mu.RLock()
	st := a.state
	a.mu.RUnlock()

	res := emptyResult(bin)
	node, ok := st.nodes[bin]
	if !ok {
		return res
	}

	nodeCopy := *node
	res.Found = true
	res.Node = &nodeCopy

	for _, other := range st.adjacency[bin] {
		res.Connections = append(res.Connections, *st.nodes[other])
	}
	for _, key := range st.edgeKeys {
		if key.customer == bin || key.supplier == bin {
			res.Edges = append(res.Edges, copyEdge(st.edges[key]))
		}
	}
	if node.CommunityID >= 0 {
		for _, m := range st.communities[node.CommunityID] {
			if m != bin {
				res.CommunityMembers = append(res.CommunityMembers, m)
			}
		}
		res.CommunitySize = len(st.communities[node.CommunityID])
	}

	res.Flags = a.flags(bin, res)
	return res
}

func (a *GraphAnalyzer) flags(bin string, res Result) []string {
	flags := []string{}
	node := res.Node

	if node.Centrality > a.cal.CentralityThreshold {
		flags = append(flags, fmt.Sprintf("Высокая центральность в сети (%.2f): связан с большим числом участников", node.Centrality))
	}
	for _, e := range res.Edges {
		if e.ContractCount >= a.cal.RepeatedPairing {
			flags = append(flags, fmt.Sprintf("Повторяющееся сотрудничество (%d контрактов) с БИН ...%s", e.ContractCount, lastDigits(e.Other(bin), 4)))
		}
	}
	if res.CommunitySize >= a.cal.CommunitySize {
		flags = append(flags, fmt.Sprintf("Входит в крупную группу связанных организаций (%d участников)", res.CommunitySize))
	}
	if node.Type == NodeBoth {
		flags = append(flags, "Организация выступает и как заказчик, и как поставщик")
	}
	return flags
}

// RepeatPairs returns customer-supplier pairs with at least minContracts lots
func (a *GraphAnalyzer) RepeatPairs(minContracts int) []Edge {
	a.mu.RLock()
	st := a.state
	a.mu.RUnlock()

	var out []Edge
	for _, key := range st.edgeKeys {
		if e := st.edges[key]; e.ContractCount >= minContracts {
			out = append(out, copyEdge(e))
		}
	}
	return out
}

// Stats returns graph totals and the ten best-connected nodes
func (a *GraphAnalyzer) Stats() Stats {
	a.mu.RLock()
	st := a.state
	a.mu.RUnlock()

	n := len(st.nodes)
	edges := len(st.adjacencyEdges())
	stats := Stats{
		Nodes:       n,
		Edges:       edges,
		Communities: len(st.communities),
		TopNodes:    []Node{},
	}
	if n > 1 {
		stats.Density = 2 * float64(edges) / float64(n*(n-1))
	}

	all := make([]Node, 0, n)
	for _, node := range st.nodes {
		all = append(all, *node)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Degree != all[j].Degree {
			return all[i].Degree > all[j].Degree
		}
		return all[i].BIN < all[j].BIN
	})
	if len(all) > 10 {
		all = all[:10]
	}
	stats.TopNodes = append(stats.TopNodes, all...)
	return stats
}

func copyEdge(e *Edge) Edge {
	out := *e
	out.LotIDs = append([]string(nil), e.LotIDs...)
	return out
}

func lastDigits(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
