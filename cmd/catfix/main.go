package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"truth-pipeline/core/instcat"
)

func main() {
	workers := flag.Int("workers", 24, "number of visits processed concurrently")
	flag.Parse()
	if flag.NArg() != 2 {
		log.Fatalf("usage: catfix [-workers N] <input-cat-list> <output-path>")
	}
	listPath, outputPath := flag.Arg(0), flag.Arg(1)

	inputCats, err := readCatalogList(listPath)
	if err != nil {
		log.Fatalf("Failed to read catalog list: %v", err)
	}
	log.Printf("Processing %d visit catalogs", len(inputCats))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	crawler := instcat.NewCrawler(outputPath, *workers)
	if err := crawler.Run(ctx, inputCats); err != nil {
		log.Fatalf("Catalog fixing failed: %v", err)
	}
	log.Println("All visits done")
}

// readCatalogList reads the newline-separated list of top-level visit
// catalog files, skipping blank lines.
func readCatalogList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cats []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			cats = append(cats, line)
		}
	}
	return cats, scanner.Err()
}
