// Package domain contains the core types of the knowledge-base RAG
// pipeline: parsed articles, embedded chunks, the persisted vector index
// and the retrieval result handed to the answer layer.
//
// The package depends on nothing outside the standard library. Business
// errors live here so that every layer can classify failures with
// errors.Is and errors.As.
package domain
