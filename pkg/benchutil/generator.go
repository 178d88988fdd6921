// Package benchutil provides synthetic entry trees for benchmarks and testing.
package benchutil

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/eunmann/tarsplit/pkg/entry"
)

// BenchmarkSeed is the default seed for reproducible benchmark data generation.
const BenchmarkSeed = 42

// BenchmarkSizes are the file counts used for quick runs.
var BenchmarkSizes = []int{100, 1000, 10000}

// GeneratorConfig configures synthetic tree generation.
type GeneratorConfig struct {
	// NumFiles is the number of regular files to generate.
	NumFiles int
	// PrefixFanout is the number of distinct names per directory level.
	PrefixFanout int
	// MaxDepth is the maximum directory depth of a file.
	MaxDepth int
	// MaxFileSize caps the generated file sizes.
	MaxFileSize int64
	// Seed for reproducible generation. 0 = use BenchmarkSeed.
	Seed int64
}

// DefaultConfig returns a tree of mostly small files with a few large ones.
func DefaultConfig(numFiles int) GeneratorConfig {
	return GeneratorConfig{
		NumFiles:     numFiles,
		PrefixFanout: 8,
		MaxDepth:     4,
		MaxFileSize:  4 << 20,
		Seed:         BenchmarkSeed,
	}
}

// Generator generates synthetic entry trees.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
}

// NewGenerator creates a new tree generator.
func NewGenerator(cfg GeneratorConfig) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = BenchmarkSeed
	}
	if cfg.PrefixFanout <= 0 {
		cfg.PrefixFanout = 1
	}
	if cfg.MaxDepth < 0 {
		cfg.MaxDepth = 0
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Generate returns the tree sorted by path, with every directory emitted
// just before its first descendant. File bodies are zero-filled to their size.
func (g *Generator) Generate() []entry.Spec {
	sizes := make(map[string]int64, g.cfg.NumFiles)
	for len(sizes) < g.cfg.NumFiles {
		sizes[g.generatePath()] = g.generateSize()
	}

	paths := make([]string, 0, len(sizes))
	for p := range sizes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	specs := make([]entry.Spec, 0, len(paths)*2)
	seenDirs := make(map[string]bool)
	for _, p := range paths {
		parts := strings.Split(p, "/")
		dir := ""
		for _, part := range parts[:len(parts)-1] {
			dir += part + "/"
			if !seenDirs[dir] {
				seenDirs[dir] = true
				specs = append(specs, entry.Spec{Name: dir, Kind: entry.KindDir})
			}
		}
		specs = append(specs, entry.Spec{Name: p, Kind: entry.KindFile, Size: sizes[p]})
	}
	return specs
}

func (g *Generator) generatePath() string {
	depth := 0
	if g.cfg.MaxDepth > 0 {
		depth = g.rng.Intn(g.cfg.MaxDepth + 1)
	}

	var b strings.Builder
	for d := 0; d < depth; d++ {
		b.WriteString(g.generateSegment())
		b.WriteByte('/')
	}
	b.WriteString(g.generateFilename())
	return b.String()
}

func (g *Generator) generateSegment() string {
	n := g.rng.Intn(g.cfg.PrefixFanout)
	switch g.rng.Intn(3) {
	case 0:
		return fmt.Sprintf("%d", 2020+n%5)
	case 1:
		categories := []string{"logs", "data", "exports", "backups", "raw", "processed", "archive", "tmp"}
		return categories[n%len(categories)]
	default:
		return fmt.Sprintf("part_%03d", n)
	}
}

func (g *Generator) generateFilename() string {
	extensions := []string{".json", ".csv", ".parquet", ".txt", ".log", ".dat"}
	ext := extensions[g.rng.Intn(len(extensions))]
	return fmt.Sprintf("file_%08x%s", g.rng.Uint32(), ext)
}

// generateSize draws from a skewed distribution: mostly small files, a few
// near MaxFileSize, and some empty ones.
func (g *Generator) generateSize() int64 {
	limit := g.cfg.MaxFileSize
	if limit <= 0 {
		return 0
	}
	switch g.rng.Intn(10) {
	case 0:
		return 0
	case 1, 2, 3, 4:
		return g.rng.Int63n(min(limit, 1024))
	case 5, 6, 7, 8:
		return g.rng.Int63n(min(limit, 64*1024))
	default:
		return g.rng.Int63n(limit)
	}
}
