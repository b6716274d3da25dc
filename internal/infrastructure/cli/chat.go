// Package cli provides the terminal chat shell.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/0xcro3dile/policyrag-go/internal/domain/entities"
	"github.com/0xcro3dile/policyrag-go/internal/domain/ports"
	"github.com/0xcro3dile/policyrag-go/internal/domain/retrieval"
	"github.com/0xcro3dile/policyrag-go/internal/domain/usecases"
	"github.com/0xcro3dile/policyrag-go/internal/infrastructure/log"
)

// Options configures the banner and session of a Chat.
type Options struct {
	Title     string
	Subtitle  string
	Model     string
	SessionID string
}

// Chat is a read-eval-print loop over the answer use case.
type Chat struct {
	answers *usecases.AnswerUseCase
	history ports.ConversationStore
	opts    Options
	in      io.Reader
	out     io.Writer

	you       func(a ...any) string
	assistant func(a ...any) string
	dim       func(a ...any) string
}

// NewChat creates a chat reading lines from in and writing to out.
func NewChat(answers *usecases.AnswerUseCase, history ports.ConversationStore, in io.Reader, out io.Writer, opts Options) *Chat {
	if opts.SessionID == "" {
		opts.SessionID = "cli"
	}
	return &Chat{
		answers:   answers,
		history:   history,
		opts:      opts,
		in:        in,
		out:       out,
		you:       color.New(color.FgGreen, color.Bold).SprintFunc(),
		assistant: color.New(color.FgCyan, color.Bold).SprintFunc(),
		dim:       color.New(color.FgHiBlack).SprintFunc(),
	}
}

// Run loops until "exit", end of input or ctx cancellation.
func (c *Chat) Run(ctx context.Context) error {
	c.banner()

	scanner := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, c.you("You: "))
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.EqualFold(line, "exit"), strings.EqualFold(line, "quit"):
			fmt.Fprintln(c.out, "Goodbye!")
			return nil
		case line == "/help":
			c.help()
		case line == "/clear":
			c.clear(ctx)
		case strings.HasPrefix(line, "/context"):
			c.showContext(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/context")))
		default:
			c.ask(ctx, line)
		}
	}
	return scanner.Err()
}

func (c *Chat) banner() {
	fmt.Fprintln(c.out, c.you(c.opts.Title))
	if c.opts.Subtitle != "" {
		fmt.Fprintln(c.out, c.opts.Subtitle)
	}
	if c.opts.Model != "" {
		fmt.Fprintf(c.out, "Using model: %s\n", c.assistant(c.opts.Model))
	}
	fmt.Fprintln(c.out, "Type your question and press Enter. Type 'exit' to quit, '/help' for commands.")
	fmt.Fprintln(c.out)
}

func (c *Chat) help() {
	fmt.Fprintln(c.out, c.dim("  /clear        forget the conversation"))
	fmt.Fprintln(c.out, c.dim("  /context <q>  show the policy excerpts retrieved for <q>"))
	fmt.Fprintln(c.out, c.dim("  exit          quit"))
}

func (c *Chat) clear(ctx context.Context) {
	if err := c.history.Clear(ctx, c.opts.SessionID); err != nil {
		log.Errorf("clearing history: %v", err)
		return
	}
	fmt.Fprintln(c.out, c.dim("Conversation cleared."))
}

func (c *Chat) showContext(ctx context.Context, query string) {
	if query == "" {
		fmt.Fprintln(c.out, c.dim("usage: /context <question>"))
		return
	}
	chunks, _ := c.answers.Retrieve(ctx, query)
	if len(chunks) == 0 {
		fmt.Fprintln(c.out, c.dim("No matching policy excerpts."))
		return
	}
	for i, ch := range chunks {
		if i > 0 {
			fmt.Fprint(c.out, c.dim(retrieval.Separator))
		}
		fmt.Fprintf(c.out, "%s\n%s\n", c.dim(fmt.Sprintf("[score %d, chunk %d]", ch.Score, ch.Position)), ch.Content)
	}
	fmt.Fprintln(c.out)
}

func (c *Chat) ask(ctx context.Context, query string) {
	history, err := c.history.History(ctx, c.opts.SessionID)
	if err != nil {
		log.Warnf("loading history: %v", err)
	}

	fmt.Fprint(c.out, c.assistant("Assistant: "))
	_, tokens := c.answers.AskStream(ctx, entities.ChatRequest{Query: query, History: history})

	var answer strings.Builder
	for tok := range tokens {
		fmt.Fprint(c.out, tok.Content)
		answer.WriteString(tok.Content)
	}
	fmt.Fprint(c.out, "\n\n")

	err = c.history.Append(ctx, c.opts.SessionID,
		entities.ChatMessage{Role: entities.RoleUser, Content: query},
		entities.ChatMessage{Role: entities.RoleAssistant, Content: answer.String()},
	)
	if err != nil {
		log.Warnf("saving history: %v", err)
	}
}
