package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"turnrouter/pkg/api"
	"turnrouter/pkg/routing"
	"turnrouter/pkg/turngraph"
)

func main() {
	// .env is optional; the environment wins when both are present.
	_ = godotenv.Load()

	cfg, err := api.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	graphPath := flag.String("graph", "graph.bin", "Path to preprocessed turn graph binary")
	addr := flag.String("listen", cfg.Addr, "Address to listen on")
	metricsAddr := flag.String("metrics", cfg.MetricsAddr, "Address to listen on for Prometheus metrics")
	corsOrigin := flag.String("cors-origin", cfg.CORSOrigin, "CORS allowed origin (empty = same-origin)")
	flag.Parse()
	cfg.Addr = *addr
	cfg.MetricsAddr = *metricsAddr
	cfg.CORSOrigin = *corsOrigin

	start := time.Now()

	log.Printf("Loading graph from %s...", *graphPath)
	g, err := turngraph.ReadBinary(*graphPath)
	if err != nil {
		log.Fatalf("Failed to load graph: %v", err)
	}
	log.Printf("Loaded: %d nodes, %d edges, %d original-edge slots",
		g.NumNodes, g.NumEdges, g.GetNumberOfOriginalEdges())
	if g.NodeLat == nil {
		log.Fatal("Graph carries no coordinates; rebuild with preprocess")
	}

	engine := routing.NewEngine(g)
	log.Printf("Ready in %s", time.Since(start).Round(time.Millisecond))

	// Metrics listener.
	go func() {
		log.Printf("Metrics listening on %s", cfg.MetricsAddr)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			log.Printf("Metrics server stopped: %v", err)
		}
	}()

	numNodes, numEdges, numOrig := engine.Stats()
	handlers := api.NewHandlers(engine, api.StatsResponse{
		NumNodes:         numNodes,
		NumEdges:         numEdges,
		NumOriginalEdges: numOrig,
	})

	srv := api.NewServer(cfg, handlers)
	if err := api.ListenAndServe(srv); err != nil {
		log.Printf("Server stopped: %v", err)
		os.Exit(1)
	}
}
