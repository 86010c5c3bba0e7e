package graph

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Constants for label-merge heuristics
const (
	MinHashPermutations = 32
	MinHashBandSize     = 4
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	nonAlnumRe   = regexp.MustCompile(`[^a-z0-9' ]`)

	// Cache for shingles to avoid recomputation across merge runs
	shingleCache sync.Map
)

// NormalizeLabel lowercases a label and collapses whitespace and punctuation
// separators so equal concepts map to the same key ("machine-learning" and
// "Machine Learning" both normalize to "machine learning").
func NormalizeLabel(label string) string {
	normalized := strings.ToLower(label)
	normalized = strings.NewReplacer("-", " ", "_", " ", "/", " ").Replace(normalized)
	normalized = nonAlnumRe.ReplaceAllString(normalized, " ")
	normalized = whitespaceRe.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

// shingles creates 3-gram shingles from the normalized label.
func shingles(normalized string) []string {
	cleaned := strings.ReplaceAll(normalized, " ", "")
	if len(cleaned) < 3 {
		if cleaned == "" {
			return []string{}
		}
		return []string{cleaned}
	}

	out := make([]string, 0, len(cleaned)-2)
	for i := 0; i < len(cleaned)-2; i++ {
		out = append(out, cleaned[i:i+3])
	}
	return out
}

// CachedShingles caches shingle sets per normalized label.
func CachedShingles(normalized string) []string {
	if cached, ok := shingleCache.Load(normalized); ok {
		return cached.([]string)
	}
	result := shingles(normalized)
	shingleCache.Store(normalized, result)
	return result
}

// hashShingle generates a deterministic 64-bit hash for a shingle given the
// permutation seed.
func hashShingle(shingle string, seed int) uint64 {
	h := sha256.New()
	h.Write([]byte(fmt.Sprintf("%d:%s", seed, shingle)))
	hash := h.Sum(nil)
	return binary.BigEndian.Uint64(hash[:8])
}

// MinHashSignature computes the MinHash signature for a shingle set across
// the fixed permutations.
func MinHashSignature(shingleSet []string) []uint64 {
	if len(shingleSet) == 0 {
		return []uint64{}
	}

	signature := make([]uint64, MinHashPermutations)
	for seed := 0; seed < MinHashPermutations; seed++ {
		minHash := ^uint64(0)
		for _, shingle := range shingleSet {
			if h := hashShingle(shingle, seed); h < minHash {
				minHash = h
			}
		}
		signature[seed] = minHash
	}
	return signature
}

// LSHBandKeys splits the signature into fixed-size bands and returns one
// bucket key per band.
func LSHBandKeys(signature []uint64) []string {
	if len(signature) == 0 {
		return nil
	}

	keys := make([]string, 0, len(signature)/MinHashBandSize)
	for start := 0; start+MinHashBandSize <= len(signature); start += MinHashBandSize {
		keys = append(keys, fmt.Sprintf("%d:%v", start/MinHashBandSize, signature[start:start+MinHashBandSize]))
	}
	return keys
}

// JaccardSimilarity returns the Jaccard similarity between two shingle sets.
func JaccardSimilarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	setA := make(map[string]bool, len(a))
	for _, s := range a {
		setA[s] = true
	}
	setB := make(map[string]bool, len(b))
	for _, s := range b {
		setB[s] = true
	}

	intersection := 0
	for s := range setA {
		if setB[s] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}
