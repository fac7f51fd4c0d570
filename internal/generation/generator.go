package generation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Generator produces an image for an enhanced prompt and returns its URL.
type Generator interface {
	Generate(ctx context.Context, prompt, resolution string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt, resolution string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt, resolution string) (string, error) {
	return f(ctx, prompt, resolution)
}

// PlaceholderGenerator returns stock images of the requested size instead of
// synthesizing one.
type PlaceholderGenerator struct {
	baseURL string
	now     func() time.Time
}

// NewPlaceholderGenerator serves images from baseURL/<width>/<height>.
func NewPlaceholderGenerator(baseURL string) *PlaceholderGenerator {
	return &PlaceholderGenerator{baseURL: strings.TrimRight(baseURL, "/"), now: time.Now}
}

// Generate returns a stock image URL sized to resolution. The prompt is
// ignored.
func (g *PlaceholderGenerator) Generate(ctx context.Context, _ string, resolution string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	w, h, ok := strings.Cut(resolution, "x")
	if !ok {
		return "", fmt.Errorf("malformed resolution %q", resolution)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return "", fmt.Errorf("malformed width in %q", resolution)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return "", fmt.Errorf("malformed height in %q", resolution)
	}
	return fmt.Sprintf("%s/%d/%d?random=%d", g.baseURL, width, height, g.now().UnixNano()), nil
}
