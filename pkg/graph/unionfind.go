package graph

// unionFind is a disjoint set over string keys with path compression and
// union by rank. Rank ties make the lexicographically smaller root the
// parent, so roots do not depend on union order for equal ranks.
type unionFind struct {
	parent map[string]string
	rank   map[string]int
}

func newUnionFind(keys []string) *unionFind {
	uf := &unionFind{
		parent: make(map[string]string, len(keys)),
		rank:   make(map[string]int, len(keys)),
	}
	for _, k := range keys {
		uf.add(k)
	}
	return uf
}

func (uf *unionFind) add(key string) {
	if _, ok := uf.parent[key]; !ok {
		uf.parent[key] = key
	}
}

func (uf *unionFind) find(key string) string {
	root := key
	for {
		p, ok := uf.parent[root]
		if !ok || p == root {
			break
		}
		root = p
	}
	for key != root {
		next := uf.parent[key]
		uf.parent[key] = root
		key = next
	}
	return root
}

func (uf *unionFind) union(a, b string) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	switch {
	case uf.rank[ra] > uf.rank[rb]:
		uf.parent[rb] = ra
	case uf.rank[ra] < uf.rank[rb]:
		uf.parent[ra] = rb
	default:
		if rb < ra {
			ra, rb = rb, ra
		}
		uf.parent[rb] = ra
		uf.rank[ra]++
	}
}

// groups returns the members of every set keyed by root.
func (uf *unionFind) groups() map[string][]string {
	out := make(map[string][]string)
	for k := range uf.parent {
		r := uf.find(k)
		out[r] = append(out[r], k)
	}
	return out
}
