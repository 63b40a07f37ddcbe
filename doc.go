// Package recall is a local-first, multi-tenant memory engine for AI agents.
//
// Every project is a fully isolated tenant identified by a "name-shortUUID"
// ID. Within a project, knowledge lives in three complementary substrates:
//
//   - semantic: chunked documents with dense vectors (vector search),
//   - symbolic: scoped key/value facts with confidence and audit history,
//   - episodic: situation/action/outcome/lesson records with deduplication.
//
// The Engine type wires the three stores together with a query result cache,
// a conversation analyzer, and the authority-weighted Reader that merges the
// substrates into a single ranked answer. The mcp package exposes the engine
// as tools over JSON-RPC 2.0 on stdio.
//
// Storage backends live in store/sqlite (pure-Go SQLite, zero CGO) and
// store/postgres (pgvector). Embedding and completion models are external:
// implement EmbeddingProvider and Provider, or use provider/openaicompat and
// provider/gemini.
package recall
