package classifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rakudev/auction-seller-scraper/internal/models"
)

// ClassificationError reports a failed title check. These are per-title and
// never abort a run.
type ClassificationError struct {
	Title string
	Err   error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("failed to classify %q: %v", e.Title, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// Runner executes an external command and returns its stdout. Factored out
// so tests can substitute a fake CLI.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("command timed out: %w", ctx.Err())
		}
		return "", fmt.Errorf("command failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

const (
	defaultTimeout = 30 * time.Second
	cacheSize      = 512
	titleWordCount = 2
)

// Classifier decides whether a product title belongs to an anime franchise
// by asking the Gemini CLI. Results are cached per shortened title.
type Classifier struct {
	model   string
	runner  Runner
	timeout time.Duration
	cache   *lru.Cache[string, bool]
	logger  *slog.Logger
}

type Option func(*Classifier)

// WithRunner replaces the CLI runner, for tests.
func WithRunner(r Runner) Option {
	return func(c *Classifier) { c.runner = r }
}

// WithTimeout sets the per-invocation CLI timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) { c.timeout = d }
}

func New(model string, opts ...Option) *Classifier {
	cache, _ := lru.New[string, bool](cacheSize)
	c := &Classifier{
		model:   model,
		runner:  execRunner{},
		timeout: defaultTimeout,
		cache:   cache,
		logger:  slog.Default().With("component", "classifier"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// extractTitleWords shortens a noisy listing title to its first words, which
// is usually the franchise name.
func extractTitleWords(title string, n int) string {
	fields := strings.Fields(title)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

// ClassifyTitle reports whether a single product title is an anime work.
// Empty titles are false without invoking the CLI.
func (c *Classifier) ClassifyTitle(ctx context.Context, title string) (bool, error) {
	shortened := extractTitleWords(title, titleWordCount)
	if shortened == "" {
		return false, nil
	}

	if cached, ok := c.cache.Get(shortened); ok {
		c.logger.Debug("cache hit", "title", shortened, "anime", cached)
		return cached, nil
	}

	prompt := fmt.Sprintf("このタイトルはアニメ作品ですか?(タイトル: %s)", shortened)

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := c.runner.Run(runCtx, "gemini", "-m", c.model, "-p", prompt)
	if err != nil {
		return false, &ClassificationError{Title: shortened, Err: err}
	}

	isAnime := parseResponse(output)
	c.cache.Add(shortened, isAnime)
	return isAnime, nil
}

// parseResponse interprets the model's Japanese answer. Negations win over
// a bare keyword match.
func parseResponse(response string) bool {
	text := strings.TrimSpace(response)
	negative := strings.Contains(text, "いいえ") ||
		strings.Contains(text, "ではありません") ||
		strings.Contains(text, "ではない")
	if negative {
		return false
	}
	if strings.Contains(text, "はい") {
		return true
	}
	return strings.Contains(text, "アニメ")
}

// ClassifySellers classifies every seller in place. Per-title failures are
// logged and skipped; a seller is anime as soon as one title matches.
func (c *Classifier) ClassifySellers(ctx context.Context, sellers []models.Seller) []models.Seller {
	for i := range sellers {
		if err := ctx.Err(); err != nil {
			c.logger.Warn("classification cancelled", "remaining", len(sellers)-i)
			break
		}
		c.classifySeller(ctx, &sellers[i])
	}
	return sellers
}

func (c *Classifier) classifySeller(ctx context.Context, seller *models.Seller) {
	if len(seller.ProductTitles) == 0 {
		seller.Classification = models.ClassificationNotAnime
		return
	}

	failures := 0
	for i, title := range seller.ProductTitles {
		isAnime, err := c.ClassifyTitle(ctx, title)
		if err != nil {
			failures++
			c.logger.Warn("title classification failed", "seller", seller.Name, "title", truncate(title, 40), "error", err)
			continue
		}
		if isAnime {
			seller.Classification = models.ClassificationAnime
			c.logger.Info("anime seller detected", "seller", seller.Name, "title_position", i+1)
			return
		}
	}

	if failures == len(seller.ProductTitles) {
		// Every check errored: leave the seller undecided rather than
		// reporting a false negative.
		seller.Classification = models.ClassificationUnknown
		c.logger.Warn("seller left unclassified, all title checks failed", "seller", seller.Name)
		return
	}

	seller.Classification = models.ClassificationNotAnime
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
