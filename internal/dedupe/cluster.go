package dedupe

import (
	"sort"

	"qero/api/internal/identity"
	"qero/api/internal/store"
)

// Group is one cluster of contacts that identify the same company.
type Group struct {
	PrimaryID    string          `json:"primaryId"`
	DuplicateIDs []string        `json:"duplicateIds"`
	MatchReason  identity.Reason `json:"matchReason"`
}

// reasonRank orders the signals that may unite a cluster; higher wins.
var reasonRank = map[identity.Reason]int{
	identity.ReasonName:        1,
	identity.ReasonEmailDomain: 2,
	identity.ReasonPhone:       3,
}

type disjointSet struct {
	parent []int
	rank   []int
}

func newDisjointSet(n int) *disjointSet {
	ds := &disjointSet{parent: make([]int, n), rank: make([]int, n)}
	for i := range ds.parent {
		ds.parent[i] = i
	}
	return ds
}

func (ds *disjointSet) find(i int) int {
	root := i
	for ds.parent[root] != root {
		root = ds.parent[root]
	}
	for ds.parent[i] != root {
		next := ds.parent[i]
		ds.parent[i] = root
		i = next
	}
	return root
}

func (ds *disjointSet) union(a, b int) {
	ra, rb := ds.find(a), ds.find(b)
	if ra == rb {
		return
	}
	switch {
	case ds.rank[ra] < ds.rank[rb]:
		ds.parent[ra] = rb
	case ds.rank[ra] > ds.rank[rb]:
		ds.parent[rb] = ra
	default:
		ds.parent[rb] = ra
		ds.rank[ra]++
	}
}

// BuildGroups clusters contacts that share a phone number, a normalized
// company name or a company email domain, transitively. Contacts of
// different teams never share a group. The result depends only on the set of
// contacts, not on their order.
func BuildGroups(contacts []store.Contact) []Group {
	records := make([]store.Contact, len(contacts))
	copy(records, contacts)
	sort.SliceStable(records, func(i, j int) bool {
		return earlier(records[i], records[j])
	})

	byKey := map[identity.Reason]map[string][]int{
		identity.ReasonPhone:       {},
		identity.ReasonName:        {},
		identity.ReasonEmailDomain: {},
	}
	add := func(reason identity.Reason, record store.Contact, value string, i int) {
		if value == "" {
			return
		}
		key := record.TeamID + "\x00" + value
		byKey[reason][key] = append(byKey[reason][key], i)
	}
	for i, record := range records {
		add(identity.ReasonPhone, record, identity.PhoneDigits(record.Phone), i)
		add(identity.ReasonName, record, identity.NormalizedName(record.CompanyName), i)
		add(identity.ReasonEmailDomain, record, identity.MatchableDomain(record.Email), i)
	}

	ds := newDisjointSet(len(records))
	for _, keys := range byKey {
		for _, indices := range keys {
			for _, idx := range indices[1:] {
				ds.union(indices[0], idx)
			}
		}
	}

	strongest := make(map[int]identity.Reason)
	for reason, keys := range byKey {
		for _, indices := range keys {
			if len(indices) < 2 {
				continue
			}
			root := ds.find(indices[0])
			if reasonRank[reason] > reasonRank[strongest[root]] {
				strongest[root] = reason
			}
		}
	}

	members := make(map[int][]int)
	var roots []int
	for i := range records {
		root := ds.find(i)
		if _, seen := members[root]; !seen {
			roots = append(roots, root)
		}
		members[root] = append(members[root], i)
	}

	type ranked struct {
		primary int
		group   Group
	}
	var found []ranked
	for _, root := range roots {
		indices := members[root]
		if len(indices) < 2 {
			continue
		}
		primary := indices[0]
		for _, idx := range indices[1:] {
			if filledFieldCount(records[idx]) > filledFieldCount(records[primary]) {
				primary = idx
			}
		}
		group := Group{PrimaryID: records[primary].ID, MatchReason: strongest[root]}
		for _, idx := range indices {
			if idx != primary {
				group.DuplicateIDs = append(group.DuplicateIDs, records[idx].ID)
			}
		}
		found = append(found, ranked{primary: primary, group: group})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].primary < found[j].primary })
	groups := make([]Group, 0, len(found))
	for _, item := range found {
		groups = append(groups, item.group)
	}
	return groups
}

func earlier(a, b store.Contact) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
