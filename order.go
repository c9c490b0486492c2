package docdb

import (
	"sort"

	"github.com/hupe1980/docdb/document"
)

// sortResults applies order clauses as a multi-key stable sort. Field
// ordering sorts null values (missing field or explicit nil) last when
// ascending and first when descending; similarity ordering is always
// descending.
func sortResults(results []Result, orders []orderClause) {
	sort.SliceStable(results, func(i, j int) bool {
		for _, clause := range orders {
			switch compareClause(results[i], results[j], clause) {
			case -1:
				return true
			case 1:
				return false
			}
		}
		return false
	})
}

func compareClause(a, b Result, clause orderClause) int {
	if clause.bySimilarity {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		default:
			return 0
		}
	}

	av, aok := a.Document.Lookup(clause.field)
	bv, bok := b.Document.Lookup(clause.field)
	aNull := !aok || av == nil
	bNull := !bok || bv == nil

	switch {
	case aNull && bNull:
		return 0
	case aNull:
		if clause.desc {
			return -1
		}
		return 1
	case bNull:
		if clause.desc {
			return 1
		}
		return -1
	}

	if less, comparable := document.Less(av, bv); comparable {
		if less {
			if clause.desc {
				return 1
			}
			return -1
		}
		if greater, _ := document.Less(bv, av); greater {
			if clause.desc {
				return -1
			}
			return 1
		}
	}
	return 0
}
