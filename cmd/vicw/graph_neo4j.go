//go:build neo4j

package main

import (
	"context"
	"os"

	neo4j "github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"

	"github.com/elevend0g/vicw/internal/store"
)

// buildGraph connects to a real Neo4j instance when built with -tags neo4j.
func buildGraph(logger zerolog.Logger) store.Graph {
	uri := os.Getenv("NEO4J_URI")
	if uri == "" {
		uri = "neo4j://localhost:7687"
	}
	user := envOr("NEO4J_USER", "neo4j")
	pass := os.Getenv("NEO4J_PASSWORD")

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, pass, ""))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct neo4j driver")
	}

	graph, err := store.NewNeo4jGraph(store.WrapNeo4jDriver(driver), envOr("NEO4J_DATABASE", "neo4j"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct neo4j graph store")
	}
	if err := graph.EnsureConstraints(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("failed to ensure neo4j constraints")
	}
	return graph
}
