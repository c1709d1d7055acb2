package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/playwright-community/playwright-go"

	"github.com/rakudev/auction-seller-scraper/internal/browser"
	"github.com/rakudev/auction-seller-scraper/internal/models"
	"github.com/rakudev/auction-seller-scraper/internal/retry"
	"github.com/rakudev/auction-seller-scraper/internal/session"
)

const raprasService = "rapras"

// RaprasScraper logs into the Rapras auction aggregator and scrapes the
// per-seller sales summary table.
type RaprasScraper struct {
	sessions *session.Store
	baseURL  string
	headless bool
	timeout  time.Duration
	policy   retry.Policy

	browser *browser.Browser
	page    playwright.Page
	logger  *slog.Logger
}

type RaprasOptions struct {
	BaseURL  string
	Headless bool
	Timeout  time.Duration
	Policy   retry.Policy
}

func NewRaprasScraper(sessions *session.Store, opts *RaprasOptions) *RaprasScraper {
	if opts == nil {
		opts = &RaprasOptions{}
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://www.rapras.jp/"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = retry.DefaultPolicy()
	}
	return &RaprasScraper{
		sessions: sessions,
		baseURL:  opts.BaseURL,
		headless: opts.Headless,
		timeout:  opts.Timeout,
		policy:   opts.Policy,
		logger:   slog.Default().With("component", "rapras"),
	}
}

// Login establishes an authenticated session. A saved session is restored
// and validated first; on failure a fresh credential login is attempted.
// Attempts follow the retry schedule, and exhaustion yields a LoginError
// (or LoginTimeoutError when the last failure was a timeout).
func (s *RaprasScraper) Login(ctx context.Context, username, password string) error {
	var lastErr error
	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			s.logger.Info("retrying login", "attempt", attempt)
			if err := retry.Sleep(ctx, s.policy.Delay(attempt-1)); err != nil {
				return err
			}
		}

		if err := s.attemptLogin(ctx, username, password); err != nil {
			lastErr = err
			s.logger.Warn("login attempt failed", "attempt", attempt, "error", err)
			s.teardown()
			continue
		}

		s.logger.Info("login successful", "attempt", attempt)
		return nil
	}

	if isTimeout(lastErr) {
		return &LoginTimeoutError{Service: raprasService, Attempts: s.policy.MaxAttempts, Err: lastErr}
	}
	return &LoginError{Service: raprasService, Attempts: s.policy.MaxAttempts, Err: lastErr}
}

func (s *RaprasScraper) attemptLogin(ctx context.Context, username, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.ensureBrowser(); err != nil {
		return err
	}

	if cookies := s.sessions.Load(raprasService); cookies != nil {
		if err := s.browser.AddCookies(cookies); err != nil {
			s.logger.Warn("failed to restore session cookies", "error", err)
		} else {
			if _, err := s.page.Goto(s.baseURL, playwright.PageGotoOptions{
				WaitUntil: playwright.WaitUntilStateNetworkidle,
			}); err == nil && s.IsLoggedIn() {
				s.logger.Info("restored saved session")
				return nil
			}
			s.logger.Info("saved session is stale, logging in fresh")
			s.sessions.Delete(raprasService)
		}
	}

	loginURL := s.baseURL + "login"
	if _, err := s.page.Goto(loginURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}

	if err := s.page.Fill(`input[name="username"]`, username); err != nil {
		return fmt.Errorf("failed to fill username: %w", err)
	}
	if err := s.page.Fill(`input[name="password"]`, password); err != nil {
		return fmt.Errorf("failed to fill password: %w", err)
	}

	loginButton := s.page.GetByRole(*playwright.AriaRoleButton, playwright.PageGetByRoleOptions{Name: "ログイン"})
	if err := loginButton.Click(); err != nil {
		return fmt.Errorf("failed to click login button: %w", err)
	}

	if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateNetworkidle,
	}); err != nil {
		return fmt.Errorf("failed waiting for login to settle: %w", err)
	}

	if !s.IsLoggedIn() {
		return fmt.Errorf("login form submitted but no authenticated session detected")
	}

	if cookies, err := s.browser.Cookies(); err != nil {
		s.logger.Warn("failed to read cookies for saving", "error", err)
	} else {
		s.sessions.Save(raprasService, cookies)
	}

	return nil
}

func (s *RaprasScraper) ensureBrowser() error {
	if s.browser != nil && s.page != nil {
		return nil
	}

	opts := browser.DefaultOptions()
	opts.Headless = s.headless
	opts.Timeout = s.timeout

	b, err := browser.New(opts)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}

	page, err := b.NewPage()
	if err != nil {
		b.Close()
		return fmt.Errorf("failed to open page: %w", err)
	}

	s.browser = b
	s.page = page
	return nil
}

// IsLoggedIn reports whether the current page shows an authenticated state.
func (s *RaprasScraper) IsLoggedIn() bool {
	if s.page == nil {
		return false
	}
	count, err := s.page.Locator(`a[href*="logout"]`).Count()
	if err != nil {
		return false
	}
	return count > 0
}

// FetchSellerLinks scrapes the sales summary for the date window and returns
// sellers whose aggregate price meets the floor. The floor is inclusive.
func (s *RaprasScraper) FetchSellerLinks(ctx context.Context, startDate, endDate string, minPrice int) ([]models.SellerLink, error) {
	if err := ValidateDateRange(startDate, endDate); err != nil {
		return nil, err
	}
	if err := ValidateMinPrice(minPrice); err != nil {
		return nil, err
	}
	if s.page == nil {
		return nil, ErrNotLoggedIn
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summaryURL := fmt.Sprintf("%ssum_analyse?target=epsum&updown=down&genre=all&sdate=%s&edate=%s",
		s.baseURL, url.QueryEscape(startDate), url.QueryEscape(endDate))

	s.logger.Info("fetching seller summary", "start", startDate, "end", endDate, "min_price", minPrice)

	if _, err := s.page.Goto(summaryURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		return nil, fmt.Errorf("failed to open seller summary: %w", err)
	}

	html, err := s.page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}

	links, err := parseSellerTable(html, s.baseURL, minPrice)
	if err != nil {
		return nil, err
	}

	s.logger.Info("seller summary fetched", "sellers", len(links))
	return links, nil
}

// parseSellerTable extracts seller name, aggregate price and seller page
// link from the rendered summary table. Rows with unparseable prices are
// skipped; rows below minPrice are filtered out.
func parseSellerTable(html, baseURL string, minPrice int) ([]models.SellerLink, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse seller summary: %w", err)
	}

	var links []models.SellerLink
	doc.Find("table tbody tr").Each(func(_ int, row *goquery.Selection) {
		nameCell := row.Find("td:nth-child(2)")
		name := strings.TrimSpace(nameCell.Text())
		if name == "" {
			return
		}

		price, ok := parsePrice(row.Find("td:nth-child(5)").Text())
		if !ok {
			return
		}
		if price < minPrice {
			return
		}

		href, exists := nameCell.Find("a").Attr("href")
		if !exists {
			return
		}

		links = append(links, models.SellerLink{
			Name:       name,
			TotalPrice: price,
			URL:        resolveURL(baseURL, href),
		})
	})

	return links, nil
}

func parsePrice(text string) (int, bool) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSuffix(cleaned, "円")
	price, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, false
	}
	return price, true
}

func resolveURL(baseURL, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// Close shuts the browser down. Failures are logged, not returned.
func (s *RaprasScraper) Close() {
	s.teardown()
}

func (s *RaprasScraper) teardown() {
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			s.logger.Warn("failed to close browser", "error", err)
		}
	}
	s.browser = nil
	s.page = nil
}
