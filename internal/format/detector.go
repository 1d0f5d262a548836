// Package format classifies a package's file set into a platform format:
// a fast marker-based tier for the common case (a plugin manifest or other
// unambiguous marker file is present), falling back to scoring each file's
// frontmatter against every registered schema when no marker settles it.
package format

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/openpackage/openpackage/internal/model"
)

// Marker is a path whose presence identifies a platform format outright.
// Neutral markers (e.g. a generic package.yml) identify the universal
// format rather than a specific vendor.
type Marker struct {
	FormatID string
	Path     string
	Neutral  bool
}

// SchemaField is one frontmatter field a schema scores on.
type SchemaField struct {
	Name      string
	Weight    float64
	Exclusive bool // x-exclusive: present only in this format, worth a bonus
}

// Schema describes one per-file format for tier-2 scoring.
type Schema struct {
	FormatID string
	FlowGlob string // path glob that boosts confidence when it matches
	Fields   []SchemaField
}

func (s Schema) totalWeight() float64 {
	var total float64
	for _, f := range s.Fields {
		total += f.Weight
	}
	return total
}

// FileObservation is one file under consideration, with its parsed
// frontmatter (nil if the file has none).
type FileObservation struct {
	Path        string
	Frontmatter model.Frontmatter
}

// Detector classifies a package's files using the registered markers and
// schemas.
type Detector struct {
	Markers []Marker
	Schemas []Schema
}

// NewDetector creates a Detector from the given markers and schemas.
func NewDetector(markers []Marker, schemas []Schema) *Detector {
	return &Detector{Markers: markers, Schemas: schemas}
}

// Detect classifies files, trying the marker fast path before falling back
// to per-file frontmatter scoring.
func (d *Detector) Detect(files []FileObservation) model.EnhancedPackageFormat {
	if result, ok := d.detectByMarker(files); ok {
		return result
	}
	return d.detectByFrontmatter(files)
}

func (d *Detector) detectByMarker(files []FileObservation) (model.EnhancedPackageFormat, bool) {
	vendorMatches := map[string]bool{}
	neutralMatched := false

	for _, m := range d.Markers {
		for _, f := range files {
			if f.Path != m.Path && !strings.HasSuffix(f.Path, "/"+m.Path) {
				continue
			}
			if m.Neutral {
				neutralMatched = true
			} else {
				vendorMatches[m.FormatID] = true
			}
		}
	}

	allPaths := make([]string, 0, len(files))
	for _, f := range files {
		allPaths = append(allPaths, f.Path)
	}
	sort.Strings(allPaths)

	switch {
	case len(vendorMatches) == 1:
		var id string
		for k := range vendorMatches {
			id = k
		}
		return model.EnhancedPackageFormat{
			PackageFormat:   id,
			DetectionMethod: model.DetectionPackageMarker,
			Confidence:      1.0,
			FormatGroups:    map[string][]string{id: allPaths},
			FormatOrder:     []string{id},
			Markers:         []string{id},
		}, true
	case len(vendorMatches) == 0 && neutralMatched:
		return model.EnhancedPackageFormat{
			PackageFormat:   string(model.FormatUniversal),
			DetectionMethod: model.DetectionPackageMarker,
			Confidence:      1.0,
			FormatGroups:    map[string][]string{string(model.FormatUniversal): allPaths},
			FormatOrder:     []string{string(model.FormatUniversal)},
		}, true
	default:
		return model.EnhancedPackageFormat{}, false
	}
}

type fileScore struct {
	path       string
	format     string
	confidence float64
}

func (d *Detector) detectByFrontmatter(files []FileObservation) model.EnhancedPackageFormat {
	var scored []fileScore
	fileFormats := make(map[string]string)
	formatGroups := make(map[string][]string)
	var formatOrder []string
	seenFormat := make(map[string]bool)

	for _, f := range files {
		if f.Frontmatter == nil {
			continue
		}
		best, ok := d.scoreFile(f)
		if !ok {
			continue
		}
		scored = append(scored, best)
		fileFormats[f.Path] = best.format
		formatGroups[best.format] = append(formatGroups[best.format], f.Path)
		if !seenFormat[best.format] {
			seenFormat[best.format] = true
			formatOrder = append(formatOrder, best.format)
		}
	}

	if len(scored) == 0 {
		return model.EnhancedPackageFormat{
			PackageFormat:   string(model.FormatUnknown),
			DetectionMethod: model.DetectionPerFile,
			Confidence:      0,
			FileFormats:     fileFormats,
			FormatGroups:    formatGroups,
		}
	}

	counts := make(map[string]int, len(scored))
	for _, s := range scored {
		counts[s.format]++
	}

	dominant, dominantCount := "", 0
	for format, count := range counts {
		if count > dominantCount || (count == dominantCount && format < dominant) {
			dominant, dominantCount = format, count
		}
	}
	ratio := float64(dominantCount) / float64(len(scored))

	packageFormat := string(model.FormatMixed)
	if len(counts) == 1 || ratio > 0.7 {
		packageFormat = dominant
	}

	var sumConfidence float64
	var matchingConfidenceCount int
	for _, s := range scored {
		if s.format == dominant {
			sumConfidence += s.confidence
			matchingConfidenceCount++
		}
	}
	avgConfidence := 0.0
	if matchingConfidenceCount > 0 {
		avgConfidence = sumConfidence / float64(matchingConfidenceCount)
	}

	consistencyAdjustment := (ratio - 0.5) * 0.2 // bonus when consistent, penalty when split
	confidence := clamp01(avgConfidence + consistencyAdjustment)

	return model.EnhancedPackageFormat{
		PackageFormat:   packageFormat,
		DetectionMethod: model.DetectionPerFile,
		Confidence:      confidence,
		FileFormats:     fileFormats,
		FormatGroups:    formatGroups,
		FormatOrder:     formatOrder,
	}
}

// scoreFile finds the highest-scoring schema for one file's frontmatter.
func (d *Detector) scoreFile(f FileObservation) (fileScore, bool) {
	var best fileScore
	haveBest := false

	for _, schema := range d.Schemas {
		total := schema.totalWeight()
		if total == 0 {
			continue
		}
		var matched float64
		for _, field := range schema.Fields {
			if _, present := f.Frontmatter[field.Name]; !present {
				continue
			}
			w := field.Weight
			if field.Exclusive {
				w *= 1.5
			}
			matched += w
		}
		if matched == 0 {
			continue
		}
		confidence := matched / total
		if schema.FlowGlob != "" {
			if ok, _ := filepath.Match(schema.FlowGlob, f.Path); ok {
				confidence *= 1.2
			}
		}
		if !haveBest || confidence > best.confidence {
			best = fileScore{path: f.Path, format: schema.FormatID, confidence: confidence}
			haveBest = true
		}
	}

	return best, haveBest
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
