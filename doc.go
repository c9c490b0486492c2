// Package docdb provides an embedded document store with automatic
// secondary indexing and vector similarity search.
//
// Documents are schemaless maps persisted under a table and a numeric id.
// Every scalar field gets an equality index entry, every array field a
// membership entry per element, maintained transparently on each write.
// Vector collections hold one embedding per document and answer cosine
// similarity queries through a pluggable strategy (exact brute force,
// normalized flat, or an approximate cover tree).
//
// # Quick Start
//
//	store, _ := docdb.Open(docdb.WithPath("./data"))
//	defer store.Close()
//
//	doc, _ := store.Save("users", document.Document{
//		"name":   "Alice",
//		"age":    25,
//		"skills": []string{"ruby", "python"},
//	}, nil)
//	id, _ := doc.ID()
//
//	store.AddVector("users", "embedding", id, []float32{0.1, 0.9, 0.3}, nil)
//
// # Queries
//
// The query builder mixes field conditions with similarity requests:
//
//	results, _ := store.Query("users").
//		Where(docdb.Conditions{"skills": docdb.Op{"includes": "ruby"}}).
//		SimilarTo(queryVec, func(o *docdb.SimilarOptions) {
//			o.Field = "embedding"
//			o.Limit = 10
//		}).
//		ToList()
//
// Equality and membership conditions are served by the secondary indexes;
// range conditions (gt, gte, lt, lte) fall back to a full table scan.
// Hybrid queries route through a selectivity heuristic: mostly-selective
// clauses filter documents first and restrict the vector search to the
// survivors, otherwise the vector search runs first and conditions filter
// its results.
//
// # Backends
//
// Two storage backends share one contract: a file backend keeping one JSON
// file per document, and an embedded BadgerDB backend keeping documents,
// index entries and metadata in a single key-value store. Both maintain
// indexes synchronously with every write.
package docdb
