package duplicates

import (
	"cmp"
	"context"
	"encoding/binary"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"

	"github.com/panbanda/strata/pkg/analyzer"
	"github.com/panbanda/strata/pkg/project"
	"github.com/panbanda/strata/pkg/stats"
	"github.com/panbanda/strata/pkg/uast"
)

// Ensure Analyzer implements analyzer.ProjectAnalyzer.
var _ analyzer.ProjectAnalyzer[*Analysis] = (*Analyzer)(nil)

// Analyzer detects code clones by comparing shingle sets of callable bodies.
type Analyzer struct {
	config Config
}

// Option is a functional option for configuring Analyzer.
type Option func(*Analyzer)

// WithMinTokens sets the minimum number of tokens for a block.
func WithMinTokens(minTokens int) Option {
	return func(a *Analyzer) {
		a.config.MinTokens = minTokens
	}
}

// WithSimilarityThreshold sets the Jaccard similarity a pair must exceed.
func WithSimilarityThreshold(threshold float64) Option {
	return func(a *Analyzer) {
		a.config.SimilarityThreshold = threshold
	}
}

// WithShingleSize sets k, the number of tokens per shingle.
func WithShingleSize(k int) Option {
	return func(a *Analyzer) {
		if k > 0 {
			a.config.ShingleSize = k
		}
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(a *Analyzer) {
		a.config = cfg
		if a.config.ShingleSize <= 0 {
			a.config.ShingleSize = DefaultConfig().ShingleSize
		}
		if a.config.MinGroupSize < 2 {
			a.config.MinGroupSize = 2
		}
	}
}

// New creates a new duplicate analyzer with default config.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// block is one callable body prepared for comparison.
type block struct {
	node           *uast.Node
	tokens         int
	exactHash      uint64
	normalizedHash uint64
	shingles       *roaring64.Bitmap
}

type clonePair struct {
	idxA       int
	idxB       int
	similarity float64
}

// Analyze groups callable bodies whose shingle sets are near-identical.
func (a *Analyzer) Analyze(ctx context.Context, proj *project.Context) (*Analysis, error) {
	analysis := &Analysis{
		Groups:     make([]Group, 0),
		FileRatios: make(map[string]float64),
		Summary:    NewSummary(),
		Threshold:  a.config.SimilarityThreshold,
	}

	var blocks []block
	oversize := 0
	for _, i := range proj.Callables() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := proj.Nodes[i]
		if n.Body.Empty() || len(n.Body.Tokens) < a.config.MinTokens {
			continue
		}
		if a.config.MaxTokens > 0 && len(n.Body.Tokens) > a.config.MaxTokens {
			oversize++
			continue
		}
		blocks = append(blocks, a.newBlock(n))
	}
	analysis.Summary.TotalBlocks = len(blocks)
	analysis.Summary.SkippedBlocks = oversize
	if oversize > 0 {
		analysis.Degraded = append(analysis.Degraded, *analyzer.Degraded("duplicates", "blocks above max_tokens skipped", oversize))
	}

	pairs, saturated, err := a.findClonePairs(ctx, blocks)
	if err != nil {
		return nil, err
	}
	if saturated > 0 {
		analysis.Degraded = append(analysis.Degraded, *analyzer.Degraded("duplicates", "shingle buckets above max_bucket_size skipped", saturated))
	}

	analysis.Groups = a.groupClones(blocks, pairs)
	for _, g := range analysis.Groups {
		analysis.Summary.AddGroup(g)
	}

	a.computeRatios(proj, analysis)
	analysis.Summary.Hotspots = computeHotspots(analysis.Groups)

	if len(analysis.Groups) > 0 {
		similarities := make([]float64, 0, len(pairs))
		for _, p := range pairs {
			similarities = append(similarities, p.similarity)
		}
		analysis.Summary.AvgSimilarity = stats.Mean(similarities)
		sort.Float64s(similarities)
		analysis.Summary.P50Similarity = stats.Percentile(similarities, 50)
		analysis.Summary.P95Similarity = stats.Percentile(similarities, 95)
	}
	return analysis, nil
}

func (a *Analyzer) newBlock(n *uast.Node) block {
	tokens, exact := normalizeTokens(n.Body.Tokens)
	return block{
		node:           n,
		tokens:         len(tokens),
		exactHash:      exact,
		normalizedHash: computeNormalizedHash(tokens),
		shingles:       generateKShingles(tokens, a.config.ShingleSize),
	}
}

// normalizeTokens canonicalizes identifiers to positional placeholders and
// literals to their type. It also returns a hash of the raw token text.
func normalizeTokens(tokens []uast.Token) ([]string, uint64) {
	out := make([]string, 0, len(tokens))
	ids := make(map[string]int)
	exact := xxhash.New()
	for _, t := range tokens {
		_, _ = exact.WriteString(t.Text)
		_, _ = exact.Write([]byte{0})
		switch t.Kind {
		case uast.TokenIdent:
			n, ok := ids[t.Text]
			if !ok {
				n = len(ids) + 1
				ids[t.Text] = n
			}
			out = append(out, "$"+strconv.Itoa(n))
		case uast.TokenLiteral:
			out = append(out, "<"+t.Type+">")
		default:
			out = append(out, t.Text)
		}
	}
	return out, exact.Sum64()
}

// computeNormalizedHash computes a hash of the normalized token sequence.
func computeNormalizedHash(tokens []string) uint64 {
	return xxhash.Sum64String(strings.Join(tokens, " "))
}

// generateKShingles hashes every window of k tokens with BLAKE3. A block
// shorter than k yields a single shingle of all its tokens.
func generateKShingles(tokens []string, k int) *roaring64.Bitmap {
	set := roaring64.New()
	if len(tokens) == 0 {
		return set
	}
	k = min(k, len(tokens))

	h := blake3.New()
	for i := 0; i+k <= len(tokens); i++ {
		h.Reset()
		for _, t := range tokens[i : i+k] {
			_, _ = h.Write([]byte(t))
			_, _ = h.Write([]byte{0})
		}
		sum := h.Sum(nil)
		set.Add(binary.LittleEndian.Uint64(sum[:8]))
	}
	return set
}

// findClonePairs buckets blocks by shingle and verifies every candidate pair
// with exact Jaccard similarity. Buckets larger than MaxBucketSize are skipped.
func (a *Analyzer) findClonePairs(ctx context.Context, blocks []block) ([]clonePair, int, error) {
	buckets := make(map[uint64][]int32)
	for bi, b := range blocks {
		for _, h := range b.shingles.ToArray() {
			buckets[h] = append(buckets[h], int32(bi))
		}
	}

	saturated := 0
	candidates := make(map[uint64]struct{})
	for _, bucket := range buckets {
		if len(bucket) < 2 {
			continue
		}
		if a.config.MaxBucketSize > 0 && len(bucket) > a.config.MaxBucketSize {
			saturated++
			continue
		}
		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				candidates[uint64(bucket[i])<<32|uint64(bucket[j])] = struct{}{}
			}
		}
	}

	keys := make([]uint64, 0, len(candidates))
	for k := range candidates {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var pairs []clonePair
	for n, key := range keys {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
		}
		idxA, idxB := int(key>>32), int(key&0xFFFFFFFF)
		ba, bb := blocks[idxA], blocks[idxB]

		// Skip if same file and overlapping
		la, lb := ba.node.Location, bb.node.Location
		if la.Path == lb.Path && la.StartLine <= lb.EndLine && lb.StartLine <= la.EndLine {
			continue
		}

		similarity := jaccard(ba.shingles, bb.shingles)
		if similarity > a.config.SimilarityThreshold {
			pairs = append(pairs, clonePair{idxA: idxA, idxB: idxB, similarity: similarity})
		}
	}
	return pairs, saturated, nil
}

func jaccard(a, b *roaring64.Bitmap) float64 {
	inter := a.AndCardinality(b)
	union := a.GetCardinality() + b.GetCardinality() - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// groupClones merges clone pairs transitively using Union-Find. Groups are
// ordered by their representative, the earliest member in project order.
func (a *Analyzer) groupClones(blocks []block, pairs []clonePair) []Group {
	if len(pairs) == 0 {
		return make([]Group, 0)
	}

	parent := make([]int, len(blocks))
	for i := range parent {
		parent[i] = i
	}

	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}

	// The smaller index always becomes the root.
	union := func(x, y int) {
		px, py := find(x), find(y)
		if px == py {
			return
		}
		if py < px {
			px, py = py, px
		}
		parent[py] = px
	}

	for _, pair := range pairs {
		union(pair.idxA, pair.idxB)
	}

	members := make(map[int][]int)
	for i := range blocks {
		root := find(i)
		members[root] = append(members[root], i)
	}
	pairsOf := make(map[int][]clonePair)
	for _, p := range pairs {
		root := find(p.idxA)
		pairsOf[root] = append(pairsOf[root], p)
	}

	roots := make([]int, 0, len(members))
	for root, m := range members {
		if len(m) >= a.config.MinGroupSize {
			roots = append(roots, root)
		}
	}
	slices.Sort(roots)

	groups := make([]Group, 0, len(roots))
	for _, root := range roots {
		g := Group{ID: uint64(len(groups) + 1), MinSimilarity: 1.0}
		exact, normalized := true, true
		first := blocks[members[root][0]]
		for _, idx := range members[root] {
			b := blocks[idx]
			inst := Instance{
				ID:             b.node.ID,
				Name:           b.node.ShortName(),
				File:           b.node.Location.Path,
				StartLine:      b.node.Location.StartLine,
				EndLine:        b.node.Location.EndLine,
				Lines:          b.node.Location.Lines(),
				Tokens:         b.tokens,
				NormalizedHash: b.normalizedHash,
			}
			g.Instances = append(g.Instances, inst)
			g.TotalLines += inst.Lines
			g.TotalTokens += inst.Tokens
			exact = exact && b.exactHash == first.exactHash
			normalized = normalized && b.normalizedHash == first.normalizedHash
		}
		g.Representative = g.Instances[0]

		var sum float64
		for _, p := range pairsOf[root] {
			sum += p.similarity
			g.MinSimilarity = math.Min(g.MinSimilarity, p.similarity)
		}
		g.AverageSimilarity = sum / float64(len(pairsOf[root]))

		switch {
		case exact:
			g.Type = Type1
		case normalized:
			g.Type = Type2
		default:
			g.Type = Type3
		}
		groups = append(groups, g)
	}
	return groups
}

// computeRatios sets per-file duplication ratios. Overlapping spans in one
// file are counted once.
func (a *Analyzer) computeRatios(proj *project.Context, analysis *Analysis) {
	lines := make(map[string]*roaring.Bitmap)
	for _, g := range analysis.Groups {
		for _, inst := range g.Instances {
			bm, ok := lines[inst.File]
			if !ok {
				bm = roaring.New()
				lines[inst.File] = bm
			}
			bm.AddRange(uint64(inst.StartLine), uint64(inst.EndLine)+1)
		}
	}

	for _, fc := range proj.Files {
		analysis.Summary.TotalLines += fc.Lines
		bm, ok := lines[fc.Path]
		if !ok || fc.Lines == 0 {
			continue
		}
		dup := int(bm.GetCardinality())
		analysis.Summary.DuplicatedLines += dup
		analysis.FileRatios[fc.Path] = math.Min(1.0, float64(dup)/float64(fc.Lines))
	}
	if analysis.Summary.TotalLines > 0 {
		ratio := float64(analysis.Summary.DuplicatedLines) / float64(analysis.Summary.TotalLines)
		analysis.Summary.DuplicationRatio = math.Min(1.0, ratio)
	}
}

// computeHotspots identifies files with high duplication.
func computeHotspots(groups []Group) []Hotspot {
	type fileStat struct {
		lines  int
		groups map[uint64]bool
	}
	fileStats := make(map[string]*fileStat)

	for _, group := range groups {
		for _, inst := range group.Instances {
			st, ok := fileStats[inst.File]
			if !ok {
				st = &fileStat{groups: make(map[uint64]bool)}
				fileStats[inst.File] = st
			}
			st.lines += inst.Lines
			st.groups[group.ID] = true
		}
	}

	var hotspots []Hotspot
	for file, st := range fileStats {
		severity := math.Log(float64(st.lines)+1) * math.Sqrt(float64(len(st.groups)))
		hotspots = append(hotspots, Hotspot{
			File:            file,
			DuplicateLines:  st.lines,
			CloneGroupCount: len(st.groups),
			Severity:        severity,
		})
	}

	slices.SortFunc(hotspots, func(a, b Hotspot) int {
		if c := cmp.Compare(b.Severity, a.Severity); c != 0 {
			return c
		}
		return cmp.Compare(a.File, b.File)
	})

	if len(hotspots) > 10 {
		hotspots = hotspots[:10]
	}
	return hotspots
}
