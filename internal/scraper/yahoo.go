package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/playwright-community/playwright-go"

	"github.com/rakudev/auction-seller-scraper/internal/browser"
	"github.com/rakudev/auction-seller-scraper/internal/models"
	"github.com/rakudev/auction-seller-scraper/internal/retry"
	"github.com/rakudev/auction-seller-scraper/internal/session"
)

const yahooService = "yahoo"

// unknownSellerName is used when no seller name can be extracted from a
// seller page.
const unknownSellerName = "不明なセラー"

// YahooScraper logs into Yahoo Auctions through an authenticated proxy
// (phone number + SMS verification) and fetches per-seller product listings.
// It owns a single page; concurrent fetches are serialized by a mutex.
type YahooScraper struct {
	sessions    *session.Store
	loginURL    string
	auctionsURL string
	proxy       browser.ProxyOptions
	expectedIP  string
	headless    bool
	timeout     time.Duration
	smsTimeout  time.Duration
	maxProducts int
	policy      retry.Policy
	prompter    SMSPrompter

	browser *browser.Browser
	page    playwright.Page
	mu      sync.Mutex
	logger  *slog.Logger
}

type YahooOptions struct {
	LoginURL    string
	AuctionsURL string
	Proxy       browser.ProxyOptions
	ExpectedIP  string
	Headless    bool
	Timeout     time.Duration
	SMSTimeout  time.Duration
	MaxProducts int
	Policy      retry.Policy
	Prompter    SMSPrompter
}

func NewYahooScraper(sessions *session.Store, opts *YahooOptions) *YahooScraper {
	if opts == nil {
		opts = &YahooOptions{}
	}
	if opts.LoginURL == "" {
		opts.LoginURL = "https://login.yahoo.co.jp/config/login"
	}
	if opts.AuctionsURL == "" {
		opts.AuctionsURL = "https://auctions.yahoo.co.jp/"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.SMSTimeout == 0 {
		opts.SMSTimeout = 3 * time.Minute
	}
	if opts.MaxProducts == 0 {
		opts.MaxProducts = 12
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = retry.DefaultPolicy()
	}
	if opts.Prompter == nil {
		opts.Prompter = NewStdinPrompter(opts.SMSTimeout)
	}
	return &YahooScraper{
		sessions:    sessions,
		loginURL:    opts.LoginURL,
		auctionsURL: opts.AuctionsURL,
		proxy:       opts.Proxy,
		expectedIP:  opts.ExpectedIP,
		headless:    opts.Headless,
		timeout:     opts.Timeout,
		smsTimeout:  opts.SMSTimeout,
		maxProducts: opts.MaxProducts,
		policy:      opts.Policy,
		prompter:    opts.Prompter,
		logger:      slog.Default().With("component", "yahoo"),
	}
}

// VerifyProxy opens a throwaway browser through the proxy and confirms it
// can reach the outside world. When an expected external IP is configured,
// the observed IP must match exactly. Failures are ProxyAuthError and are
// never retried.
func (s *YahooScraper) VerifyProxy(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := browser.DefaultOptions()
	opts.Headless = s.headless
	opts.Timeout = s.timeout
	opts.Proxy = &s.proxy

	b, err := browser.New(opts)
	if err != nil {
		return &ProxyAuthError{Err: err}
	}
	defer func() {
		if err := b.Close(); err != nil {
			s.logger.Warn("failed to close proxy check browser", "error", err)
		}
	}()

	page, err := b.NewPage()
	if err != nil {
		return &ProxyAuthError{Err: err}
	}

	if _, err := page.Goto("https://www.google.com", playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(10000),
	}); err != nil {
		return &ProxyAuthError{Err: fmt.Errorf("connectivity check failed: %w", err)}
	}

	s.logger.Info("proxy connectivity confirmed")

	if s.expectedIP == "" {
		return nil
	}

	if _, err := page.Goto("https://inet-ip.info/ip", playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(10000),
	}); err != nil {
		s.logger.Warn("could not fetch external IP, skipping pin check", "error", err)
		return nil
	}

	body, err := page.Locator("body").TextContent()
	if err != nil {
		s.logger.Warn("could not read external IP, skipping pin check", "error", err)
		return nil
	}

	observed := strings.TrimSpace(body)
	if observed != s.expectedIP {
		return &ProxyAuthError{Err: fmt.Errorf("external IP %s does not match expected %s", observed, s.expectedIP)}
	}

	s.logger.Info("proxy external IP verified", "ip", observed)
	return nil
}

// Login verifies the proxy, then establishes an authenticated session. A
// saved session is restored and validated first; otherwise the phone + SMS
// verification flow runs, which blocks on the prompter for the code.
func (s *YahooScraper) Login(ctx context.Context, phoneNumber string) error {
	if err := s.VerifyProxy(ctx); err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			s.logger.Info("retrying login", "attempt", attempt)
			if err := retry.Sleep(ctx, s.policy.Delay(attempt-1)); err != nil {
				return err
			}
		}

		if err := s.attemptLogin(ctx, phoneNumber); err != nil {
			lastErr = err
			s.logger.Warn("login attempt failed", "attempt", attempt, "error", err)
			s.teardown()
			continue
		}

		s.logger.Info("login successful", "attempt", attempt)
		return nil
	}

	if isTimeout(lastErr) {
		return &LoginTimeoutError{Service: yahooService, Attempts: s.policy.MaxAttempts, Err: lastErr}
	}
	return &LoginError{Service: yahooService, Attempts: s.policy.MaxAttempts, Err: lastErr}
}

func (s *YahooScraper) attemptLogin(ctx context.Context, phoneNumber string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.ensureBrowser(); err != nil {
		return err
	}

	if cookies := s.sessions.Load(yahooService); cookies != nil {
		if err := s.browser.AddCookies(cookies); err != nil {
			s.logger.Warn("failed to restore session cookies", "error", err)
		} else {
			if _, err := s.page.Goto(s.auctionsURL, playwright.PageGotoOptions{
				WaitUntil: playwright.WaitUntilStateNetworkidle,
			}); err == nil && s.isLoggedIn() {
				s.logger.Info("restored saved session")
				return nil
			}
			s.logger.Info("saved session is stale, logging in fresh")
			s.sessions.Delete(yahooService)
		}
	}

	if _, err := s.page.Goto(s.loginURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}

	phoneBox := s.page.GetByRole(*playwright.AriaRoleTextbox, playwright.PageGetByRoleOptions{
		Name: "携帯電話番号/メールアドレス/ID",
	})
	if err := phoneBox.Fill(phoneNumber); err != nil {
		return fmt.Errorf("failed to fill phone number: %w", err)
	}

	next := s.page.GetByRole(*playwright.AriaRoleButton, playwright.PageGetByRoleOptions{Name: "次へ"})
	if err := next.Click(); err != nil {
		return fmt.Errorf("failed to click next: %w", err)
	}
	if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateNetworkidle,
	}); err != nil {
		s.logger.Debug("load state wait after next", "error", err)
	}

	// Yahoo sometimes offers a passkey screen first; fall back to SMS.
	s.clickOptionalButton("他の方法でログイン")
	s.clickOptionalButton("認証コードを送信")

	code, err := s.prompter.Prompt(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain SMS code: %w", err)
	}

	if err := s.fillSMSCode(code); err != nil {
		return err
	}

	if _, err := s.page.Goto(s.auctionsURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		s.logger.Debug("auctions page navigation after login", "error", err)
	}

	if !s.isLoggedIn() {
		return fmt.Errorf("SMS verification submitted but no authenticated session detected")
	}

	if cookies, err := s.browser.Cookies(); err != nil {
		s.logger.Warn("failed to read cookies for saving", "error", err)
	} else {
		s.sessions.Save(yahooService, cookies)
	}

	return nil
}

// clickOptionalButton clicks a button if it shows up within a short wait.
// Absence is normal: the login flow varies between accounts.
func (s *YahooScraper) clickOptionalButton(name string) {
	button := s.page.GetByRole(*playwright.AriaRoleButton, playwright.PageGetByRoleOptions{Name: name})
	if err := button.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(5000),
	}); err != nil {
		s.logger.Debug("optional button not shown", "button", name)
		return
	}
	if err := button.Click(); err != nil {
		s.logger.Warn("failed to click button", "button", name, "error", err)
		return
	}
	if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateNetworkidle,
	}); err != nil {
		s.logger.Debug("load state wait after optional button", "button", name, "error", err)
	}
}

// fillSMSCode locates the verification input among known candidates, fills
// the code and submits.
func (s *YahooScraper) fillSMSCode(code string) error {
	selectors := []string{
		`input[name="code"]`,
		`input[type="text"]`,
		`input[placeholder*="認証"]`,
		`input[placeholder*="コード"]`,
	}

	var filled bool
	for _, selector := range selectors {
		input := s.page.Locator(selector).First()
		if err := input.WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(3000),
		}); err != nil {
			continue
		}
		if err := input.Fill(code); err != nil {
			s.logger.Warn("failed to fill verification code", "selector", selector, "error", err)
			continue
		}
		filled = true
		break
	}
	if !filled {
		return fmt.Errorf("no SMS verification input found")
	}

	login := s.page.GetByRole(*playwright.AriaRoleButton, playwright.PageGetByRoleOptions{Name: "ログイン"})
	if count, err := login.Count(); err == nil && count > 0 {
		if err := login.First().Click(); err == nil {
			return s.waitForSettle()
		}
	}

	submit := s.page.Locator(`button[type="submit"]`).First()
	if count, err := submit.Count(); err == nil && count > 0 {
		if err := submit.Click(); err == nil {
			return s.waitForSettle()
		}
	}

	if err := s.page.Keyboard().Press("Enter"); err != nil {
		return fmt.Errorf("failed to submit verification code: %w", err)
	}
	return s.waitForSettle()
}

func (s *YahooScraper) waitForSettle() error {
	if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateNetworkidle,
	}); err != nil {
		s.logger.Debug("load state wait after submit", "error", err)
	}
	return nil
}

// isLoggedIn applies a set of heuristics: being off the login host, a
// logout link, an account menu, or the auctions host without a login form.
func (s *YahooScraper) isLoggedIn() bool {
	if s.page == nil {
		return false
	}

	current := s.page.URL()
	if strings.Contains(current, "login.yahoo.co.jp") {
		return false
	}

	for _, selector := range []string{
		`a[href*="logout"]`,
		`a[href*="myauctions"]`,
		`[class*="user"]`,
		`[class*="account"]`,
	} {
		if count, err := s.page.Locator(selector).Count(); err == nil && count > 0 {
			return true
		}
	}

	if strings.Contains(current, "yahoo.co.jp") {
		if count, err := s.page.Locator(`input[name="login"]`).Count(); err == nil && count == 0 {
			return true
		}
	}

	return false
}

func (s *YahooScraper) ensureBrowser() error {
	if s.browser != nil && s.page != nil {
		return nil
	}

	opts := browser.DefaultOptions()
	opts.Headless = s.headless
	opts.Timeout = s.timeout
	opts.Proxy = &s.proxy

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

// FetchSellerProducts fetches a seller page and extracts the seller name
// and up to MaxProducts product titles. Each call runs its own retry loop;
// exhaustion wraps the last cause in a ConnectionError.
func (s *YahooScraper) FetchSellerProducts(ctx context.Context, sellerURL string) (models.Seller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page == nil {
		return models.Seller{}, ErrNotLoggedIn
	}

	var lastErr error
	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			s.logger.Debug("retrying seller fetch", "url", sellerURL, "attempt", attempt)
			if err := retry.Sleep(ctx, s.policy.Delay(attempt-1)); err != nil {
				return models.Seller{}, err
			}
		}

		seller, err := s.fetchOnce(ctx, sellerURL)
		if err != nil {
			lastErr = err
			s.logger.Warn("seller fetch attempt failed", "url", sellerURL, "attempt", attempt, "error", err)
			continue
		}
		return seller, nil
	}

	return models.Seller{}, &ConnectionError{URL: sellerURL, Attempts: s.policy.MaxAttempts, Err: lastErr}
}

func (s *YahooScraper) fetchOnce(ctx context.Context, sellerURL string) (models.Seller, error) {
	if err := ctx.Err(); err != nil {
		return models.Seller{}, err
	}

	if _, err := s.page.Goto(sellerURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		return models.Seller{}, fmt.Errorf("failed to open seller page: %w", err)
	}

	html, err := s.page.Content()
	if err != nil {
		return models.Seller{}, fmt.Errorf("failed to read seller page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return models.Seller{}, fmt.Errorf("failed to parse seller page: %w", err)
	}

	name := extractSellerName(doc)
	titles := extractProductTitles(doc, s.maxProducts)
	if len(titles) < s.maxProducts {
		s.logger.Warn("fewer products than expected", "seller", name, "found", len(titles), "cap", s.maxProducts)
	}

	return models.Seller{
		Name:          name,
		URL:           sellerURL,
		ProductTitles: titles,
	}, nil
}

func extractSellerName(doc *goquery.Document) string {
	for _, selector := range []string{`h1[class*="seller"]`, "h1"} {
		name := strings.TrimSpace(doc.Find(selector).First().Text())
		if name != "" {
			return name
		}
	}
	return unknownSellerName
}

func extractProductTitles(doc *goquery.Document, max int) []string {
	var titles []string
	doc.Find(`a[class*="product-title"], div[class*="title"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		title := strings.TrimSpace(sel.Text())
		if title == "" {
			return true
		}
		titles = append(titles, title)
		return len(titles) < max
	})
	return titles
}

// Close shuts the browser down. Failures are logged, not returned.
func (s *YahooScraper) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardown()
}

func (s *YahooScraper) teardown() {
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			s.logger.Warn("failed to close browser", "error", err)
		}
	}
	s.browser = nil
	s.page = nil
}
