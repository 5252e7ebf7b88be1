package ollama

import (
	"context"
	"errors"
	"testing"
)

// countingEncoder records every batch it receives and returns one-element
// vectors derived from the text length.
type countingEncoder struct {
	batches [][]string
	err     error
	short   bool
}

func (c *countingEncoder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	c.batches = append(c.batches, texts)
	if c.err != nil {
		return nil, c.err
	}
	n := len(texts)
	if c.short {
		n--
	}
	vecs := make([][]float32, n)
	for i := 0; i < n; i++ {
		vecs[i] = []float32{float32(len(texts[i]))}
	}
	return vecs, nil
}

func (c *countingEncoder) Version() string { return "counting-v1" }

func TestCachingEncoder_RepeatTextsServeFromCache(t *testing.T) {
	inner := &countingEncoder{}
	enc, err := NewCachingEncoder(inner, 16)
	if err != nil {
		t.Fatalf("NewCachingEncoder failed: %v", err)
	}

	first, err := enc.Encode(context.Background(), []string{"pmegp", "mudra loan"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	second, err := enc.Encode(context.Background(), []string{"pmegp", "mudra loan"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if len(inner.batches) != 1 {
		t.Fatalf("expected 1 inner call, got %d", len(inner.batches))
	}
	if second[0][0] != first[0][0] || second[1][0] != first[1][0] {
		t.Fatalf("cached vectors differ: %v vs %v", second, first)
	}
}

func TestCachingEncoder_PartialMissForwardsOnlyMisses(t *testing.T) {
	inner := &countingEncoder{}
	enc, err := NewCachingEncoder(inner, 16)
	if err != nil {
		t.Fatalf("NewCachingEncoder failed: %v", err)
	}

	if _, err := enc.Encode(context.Background(), []string{"pmegp"}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	out, err := enc.Encode(context.Background(), []string{"pmegp", "svanidhi"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if len(inner.batches) != 2 {
		t.Fatalf("expected 2 inner calls, got %d", len(inner.batches))
	}
	miss := inner.batches[1]
	if len(miss) != 1 || miss[0] != "svanidhi" {
		t.Fatalf("expected only the miss to be forwarded, got %v", miss)
	}
	if out[0][0] != float32(len("pmegp")) || out[1][0] != float32(len("svanidhi")) {
		t.Fatalf("result order broken: %v", out)
	}
}

func TestCachingEncoder_InnerErrorPropagates(t *testing.T) {
	innerErr := errors.New("encoder down")
	enc, err := NewCachingEncoder(&countingEncoder{err: innerErr}, 16)
	if err != nil {
		t.Fatalf("NewCachingEncoder failed: %v", err)
	}

	if _, err := enc.Encode(context.Background(), []string{"pmegp"}); !errors.Is(err, innerErr) {
		t.Fatalf("expected inner error, got %v", err)
	}
}

func TestCachingEncoder_CountMismatchFails(t *testing.T) {
	enc, err := NewCachingEncoder(&countingEncoder{short: true}, 16)
	if err != nil {
		t.Fatalf("NewCachingEncoder failed: %v", err)
	}

	if _, err := enc.Encode(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected mismatch error")
	}
}
