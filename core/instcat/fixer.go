package instcat

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"math"
	"os"
)

// knotsDamping is the smooth flux-fraction damping applied to the knots
// component: 0.5*(1 - tanh(ln(size/1.5))). It is monotonically
// non-increasing in the size parameter, so larger hosts keep a smaller
// knots fraction.
func knotsDamping(size float64) float64 {
	return 0.5 * (1.0 - math.Tanh(math.Log(size/1.5)))
}

// SplitFlux recomputes the disk/knots magnitude pair so that total flux
// is conserved while the knots share is damped by the host size.
func SplitFlux(magDisk, magKnots, size float64) (newDisk, newKnots float64) {
	totalFlux := math.Pow(10, -magDisk/2.5) + math.Pow(10, -magKnots/2.5)
	ratio := math.Pow(10, -magKnots/2.5) / totalFlux
	ratio *= knotsDamping(size)

	newDisk = -2.5 * math.Log10((1-ratio)*totalFlux)
	newKnots = -2.5 * math.Log10(ratio*totalFlux)
	return newDisk, newKnots
}

// FixResult reports what a fixing pass did.
type FixResult struct {
	Lines     int // catalog lines read from the larger stream
	Corrected int // lines whose extinction parameters were clamped
	Matched   int // knots/disk pairs recombined
}

// FixDiskKnots streams the knots catalog against the disk catalog and
// writes both corrected outputs. Both catalogs must be sorted by the
// shared identity key; faint knots may be missing, so disk entries are
// skipped past (with extinction correction) until the identity key
// matches. Exhausting the disk stream without a match means the
// catalogs were generated from inconsistent data and is fatal.
func FixDiskKnots(inDisk, inKnots, outDisk, outKnots string) (FixResult, error) {
	var res FixResult

	disk, err := Open(inDisk)
	if err != nil {
		return res, err
	}
	defer disk.Close()
	knots, err := Open(inKnots)
	if err != nil {
		return res, err
	}
	defer knots.Close()

	diskOut, err := os.Create(outDisk)
	if err != nil {
		return res, err
	}
	defer diskOut.Close()
	knotsOut, err := os.Create(outKnots)
	if err != nil {
		return res, err
	}
	defer knotsOut.Close()

	diskW := bufio.NewWriter(diskOut)
	knotsW := bufio.NewWriter(knotsOut)

	for {
		lineKnots, err := knots.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, err
		}
		knotsLine := ParseLine(lineKnots)
		knotsID, err := knotsLine.HostID()
		if err != nil {
			return res, err
		}

		diskLine, err := scanDiskTo(disk, knotsID, diskW, &res)
		if err != nil {
			return res, err
		}

		if err := recombinePair(diskLine, &knotsLine); err != nil {
			return res, err
		}
		res.Matched++

		if _, err := fmt.Fprintln(diskW, diskLine.String()); err != nil {
			return res, err
		}
		if _, err := fmt.Fprintln(knotsW, knotsLine.String()); err != nil {
			return res, err
		}
	}

	// Disk entries past the last knots entry pass through with
	// extinction correction only.
	if err := drainDisk(disk, diskW, &res); err != nil {
		return res, err
	}

	if err := diskW.Flush(); err != nil {
		return res, err
	}
	if err := knotsW.Flush(); err != nil {
		return res, err
	}

	log.Printf("fixed extinction for %d of %d disk entries", res.Corrected, res.Lines)
	return res, nil
}

// scanDiskTo advances the disk stream until the entry whose identity
// key equals wantID, passing skipped entries through after extinction
// correction. Stream exhaustion is the fatal identity-mismatch
// condition.
func scanDiskTo(disk *Reader, wantID int64, w *bufio.Writer, res *FixResult) (*ObjectLine, error) {
	for {
		line, err := disk.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("object ids do not match between input knots and disk catalogs (host %d not found)", wantID)
		}
		if err != nil {
			return nil, err
		}

		diskLine := ParseLine(line)
		diskID, err := diskLine.HostID()
		if err != nil {
			return nil, err
		}

		corrected, err := CorrectExtinction(&diskLine)
		if err != nil {
			return nil, err
		}
		if corrected {
			res.Corrected++
		}
		res.Lines++

		if diskID == wantID {
			return &diskLine, nil
		}
		if _, err := fmt.Fprintln(w, diskLine.String()); err != nil {
			return nil, err
		}
	}
}

func drainDisk(disk *Reader, w *bufio.Writer, res *FixResult) error {
	for {
		line, err := disk.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		diskLine := ParseLine(line)
		corrected, err := CorrectExtinction(&diskLine)
		if err != nil {
			return err
		}
		if corrected {
			res.Corrected++
		}
		res.Lines++
		if _, err := fmt.Fprintln(w, diskLine.String()); err != nil {
			return err
		}
	}
}

// recombinePair applies the flux-conserving magnitude split to one
// matched disk/knots pair and keeps the extinction parameters
// consistent between the two components.
func recombinePair(diskLine *ObjectLine, knotsLine *ObjectLine) error {
	magDisk, err := diskLine.MagNorm()
	if err != nil {
		return err
	}
	magKnots, err := knotsLine.MagNorm()
	if err != nil {
		return err
	}
	size, err := diskLine.Size()
	if err != nil {
		return err
	}

	newDisk, newKnots := SplitFlux(magDisk, magKnots, size)
	diskLine.SetMagNorm(newDisk)
	knotsLine.SetMagNorm(newKnots)

	// The knots component inherits the disk's corrected extinction.
	knotsLine.Tokens[colAv] = diskLine.Tokens[colAv]
	knotsLine.Tokens[colRv] = diskLine.Tokens[colRv]
	return nil
}

// FixBulge passes the bulge catalog through with extinction correction
// only.
func FixBulge(inBulge, outBulge string) (FixResult, error) {
	var res FixResult

	bulge, err := Open(inBulge)
	if err != nil {
		return res, err
	}
	defer bulge.Close()

	out, err := os.Create(outBulge)
	if err != nil {
		return res, err
	}
	defer out.Close()
	w := bufio.NewWriter(out)

	for {
		line, err := bulge.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, err
		}
		bulgeLine := ParseLine(line)
		corrected, err := CorrectExtinction(&bulgeLine)
		if err != nil {
			return res, err
		}
		if corrected {
			res.Corrected++
		}
		res.Lines++
		if _, err := fmt.Fprintln(w, bulgeLine.String()); err != nil {
			return res, err
		}
	}
	if err := w.Flush(); err != nil {
		return res, err
	}

	log.Printf("fixed extinction for %d of %d bulge entries", res.Corrected, res.Lines)
	return res, nil
}
