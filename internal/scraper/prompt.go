package scraper

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// SMSPrompter obtains the one-time SMS verification code during login.
type SMSPrompter interface {
	Prompt(ctx context.Context) (string, error)
}

// StdinPrompter reads the verification code interactively from standard
// input, giving up after Timeout.
type StdinPrompter struct {
	In      io.Reader
	Timeout time.Duration
}

func NewStdinPrompter(timeout time.Duration) *StdinPrompter {
	return &StdinPrompter{In: os.Stdin, Timeout: timeout}
}

func (p *StdinPrompter) Prompt(ctx context.Context) (string, error) {
	fmt.Println("============================================")
	fmt.Println("SMS認証コードを入力してください:")
	fmt.Println("============================================")

	type result struct {
		code string
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		reader := bufio.NewReader(p.In)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			ch <- result{err: fmt.Errorf("failed to read verification code: %w", err)}
			return
		}
		ch <- result{code: strings.TrimSpace(line)}
	}()

	timer := time.NewTimer(p.Timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", fmt.Errorf("timed out waiting for SMS verification code after %s", p.Timeout)
	case res := <-ch:
		if res.err != nil {
			return "", res.err
		}
		if res.code == "" {
			return "", fmt.Errorf("empty verification code entered")
		}
		return res.code, nil
	}
}
