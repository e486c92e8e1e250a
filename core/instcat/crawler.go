package instcat

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Crawler applies the post-processing corrections to a set of visit
// catalogs, writing corrected copies under the output directory. Each
// visit gets its own subdirectory named by the zero-padded visit id.
type Crawler struct {
	OutputPath string
	Workers    int
}

// NewCrawler creates a crawler writing under outputPath with the given
// per-visit concurrency.
func NewCrawler(outputPath string, workers int) *Crawler {
	if workers < 1 {
		workers = 1
	}
	return &Crawler{OutputPath: outputPath, Workers: workers}
}

// Run processes every listed top-level catalog file. Any visit failing
// fails the whole run.
func (c *Crawler) Run(ctx context.Context, inputCats []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.Workers)
	for _, cat := range inputCats {
		cat := cat
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := c.ProcessVisit(cat); err != nil {
				return fmt.Errorf("visit catalog %s: %w", cat, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// ProcessVisit copies one visit's catalog directory into the output
// tree, corrects the galaxy component catalogs in place and gzips the
// results.
func (c *Crawler) ProcessVisit(inputCat string) error {
	meta, err := ReadMetadata(inputCat)
	if err != nil {
		return err
	}
	visitID, err := meta.VisitID()
	if err != nil {
		return err
	}

	inputPath := filepath.Dir(inputCat)
	outputPath := filepath.Join(c.OutputPath, fmt.Sprintf("%08d", visitID))
	log.Printf("copying catalog from %s", inputPath)
	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return err
	}
	if err := copyDir(inputPath, outputPath); err != nil {
		return err
	}

	// Non-galaxy component files are gzipped up front; the galaxy
	// catalogs get gzipped after correction.
	for _, f := range meta.CatalogFiles {
		basename := strings.TrimSuffix(f, ".gz")
		if isGalaxyCatalog(basename) {
			continue
		}
		name := filepath.Join(outputPath, basename)
		if _, err := os.Stat(name); err == nil {
			log.Printf("gzipping %s", name)
			if err := gzipFile(name); err != nil {
				return err
			}
		}
	}

	inDisk := preferPlain(filepath.Join(outputPath, fmt.Sprintf("disk_gal_cat_%d.txt", visitID)))
	inBulge := preferPlain(filepath.Join(outputPath, fmt.Sprintf("bulge_gal_cat_%d.txt", visitID)))
	inKnots := preferPlain(filepath.Join(outputPath, fmt.Sprintf("knots_cat_%d.txt", visitID)))

	outDisk := filepath.Join(outputPath, fmt.Sprintf("disk_gal_cat_%d.txt", visitID))
	outBulge := filepath.Join(outputPath, fmt.Sprintf("bulge_gal_cat_%d.txt", visitID))
	outKnots := filepath.Join(outputPath, fmt.Sprintf("knots_cat_%d.txt", visitID))

	tmpDisk := filepath.Join(outputPath, fmt.Sprintf("tmp_disk_gal_cat_%d.txt", visitID))
	tmpBulge := filepath.Join(outputPath, fmt.Sprintf("tmp_bulge_gal_cat_%d.txt", visitID))
	tmpKnots := filepath.Join(outputPath, fmt.Sprintf("tmp_knots_cat_%d.txt", visitID))

	log.Printf("processing disks and knots for %d", visitID)
	if _, err := FixDiskKnots(inDisk, inKnots, tmpDisk, tmpKnots); err != nil {
		return err
	}
	if err := os.Rename(tmpDisk, outDisk); err != nil {
		return err
	}
	if err := os.Rename(tmpKnots, outKnots); err != nil {
		return err
	}

	log.Printf("processing bulges for %d", visitID)
	if _, err := FixBulge(inBulge, tmpBulge); err != nil {
		return err
	}
	if err := os.Rename(tmpBulge, outBulge); err != nil {
		return err
	}

	// The corrected catalogs ship gzipped; leftover gzipped inputs
	// would shadow them.
	for _, out := range []string{outDisk, outBulge, outKnots} {
		if err := gzipFile(out); err != nil {
			return err
		}
	}
	log.Printf("visit %d done", visitID)
	return nil
}

func isGalaxyCatalog(basename string) bool {
	return strings.Contains(basename, "disk") ||
		strings.Contains(basename, "bulge") ||
		strings.Contains(basename, "knots")
}

// preferPlain returns path if it exists, otherwise path.gz.
func preferPlain(path string) string {
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return path + ".gz"
}

func copyDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		from := filepath.Join(src, e.Name())
		to := filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := os.MkdirAll(to, 0o755); err != nil {
				return err
			}
			if err := copyDir(from, to); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(from, to); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// gzipFile compresses path into path.gz and removes the original,
// replacing any existing compressed copy.
func gzipFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		out.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}
