//go:build !neo4j

package main

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/elevend0g/vicw/internal/store"
)

// buildGraph returns the in-memory Graph fake for default builds. Building with -tags neo4j
// links against the real driver adapter in graph_neo4j.go instead.
func buildGraph(logger zerolog.Logger) store.Graph {
	if os.Getenv("NEO4J_URI") != "" {
		logger.Warn().Msg("NEO4J_URI set but binary was built without -tags neo4j; using in-memory graph")
	}
	return store.NewInMemoryGraph()
}
