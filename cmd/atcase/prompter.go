package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/atcase/atcase-go/internal/testharness/runner"
)

// readlinePrompter asks operator questions on the terminal.
type readlinePrompter struct {
	rl *readline.Instance

	mu sync.Mutex
	// pending holds a read that outlived a cancelled prompt. The next
	// prompt consumes it instead of starting a second concurrent read.
	pending chan readResult
}

type readResult struct {
	line string
	err  error
}

func newReadlinePrompter() (*readlinePrompter, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "no",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &readlinePrompter{rl: rl}, nil
}

// Stdout returns a writer that keeps output clear of the prompt line.
func (p *readlinePrompter) Stdout() io.Writer {
	return p.rl.Stdout()
}

// Confirm implements runner.Prompter. Interrupt and EOF answer no.
func (p *readlinePrompter) Confirm(ctx context.Context, prompt string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	read := p.pending
	if read == nil {
		p.rl.SetPrompt(prompt + " [y/N] ")
		read = make(chan readResult, 1)
		go func(out chan<- readResult) {
			line, err := p.rl.Readline()
			out <- readResult{line: line, err: err}
		}(read)
	}

	select {
	case res := <-read:
		p.pending = nil
		if res.err != nil {
			if errors.Is(res.err, readline.ErrInterrupt) || errors.Is(res.err, io.EOF) {
				return false, nil
			}
			return false, res.err
		}
		return isYes(res.line), nil
	case <-ctx.Done():
		p.pending = read
		return false, ctx.Err()
	}
}

func (p *readlinePrompter) Close() error {
	return p.rl.Close()
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

var _ runner.Prompter = (*readlinePrompter)(nil)
