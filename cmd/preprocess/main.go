package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	osmparser "turnrouter/pkg/osm"
	"turnrouter/pkg/turngraph"
)

func main() {
	input := flag.String("input", "", "Path to .osm.pbf file")
	output := flag.String("output", "graph.bin", "Output binary graph file path")
	bbox := flag.String("bbox", "", "Bounding box filter: minLat,minLng,maxLat,maxLng")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "Usage: preprocess --input <file.osm.pbf> [--output graph.bin] [--bbox minLat,minLng,maxLat,maxLng]")
		os.Exit(1)
	}

	var opts osmparser.ParseOptions
	if *bbox != "" {
		var minLat, minLng, maxLat, maxLng float64
		if _, err := fmt.Sscanf(*bbox, "%f,%f,%f,%f", &minLat, &minLng, &maxLat, &maxLng); err != nil {
			log.Fatalf("Invalid bbox format (expected minLat,minLng,maxLat,maxLng): %v", err)
		}
		opts.BBox = osmparser.BBox{MinLat: minLat, MaxLat: maxLat, MinLng: minLng, MaxLng: maxLng}
		log.Printf("Using bounding box filter: lat [%.4f, %.4f], lng [%.4f, %.4f]", minLat, maxLat, minLng, maxLng)
	}

	start := time.Now()

	log.Println("Opening OSM file...")
	f, err := os.Open(*input)
	if err != nil {
		log.Fatalf("Failed to open input file: %v", err)
	}
	defer f.Close()

	log.Println("Parsing OSM data...")
	parseResult, err := osmparser.Parse(context.Background(), f, opts)
	if err != nil {
		log.Fatalf("Failed to parse OSM data: %v", err)
	}
	log.Printf("Parsed %d edges, %d restrictions", len(parseResult.Edges), len(parseResult.Restrictions))

	log.Println("Building turn graph...")
	g, err := turngraph.BuildFromParse(parseResult)
	if err != nil {
		log.Fatalf("Failed to build graph: %v", err)
	}
	log.Printf("Built: %d nodes, %d edges, %d original-edge slots",
		g.NumNodes, g.NumEdges, g.GetNumberOfOriginalEdges())

	log.Printf("Writing %s...", *output)
	if err := turngraph.WriteBinary(*output, g); err != nil {
		log.Fatalf("Failed to write graph: %v", err)
	}

	log.Printf("Done in %s", time.Since(start).Round(time.Millisecond))
}
