// Package pathweave builds deduplicated concept graphs from extracted
// learning material and plans personalized learning journeys over them.
//
// The engine ingests documents of concept and relation candidates, merges
// them into a typed graph with fuzzy label dedup, annotates edge strength,
// concept importance, and complexity depth, and partitions the graph into
// topical clusters. Journeys are planned against immutable graph snapshots:
// scope selection around a focal concept, greedy personalized candidate
// expansion, re-sequencing per journey type, and content binding through an
// external collaborator with placeholder degradation.
//
// The Client is the main entry point:
//
//	persist, err := store.Open("./pathweave_db", nil)
//	if err != nil { ... }
//	client, err := pathweave.NewClient(persist, nil, nil, nil)
//	if err != nil { ... }
//	g, err := client.Ingest(ctx, docs)
//	journey, err := client.GenerateJourney(ctx, "user-1", focalID, types.SpiralJourney)
//
// All graph versions are immutable once published; readers holding a
// snapshot are never affected by concurrent ingestion.
package pathweave
