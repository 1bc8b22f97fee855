package chat

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/fatih/color"
)

type Source int

const (
	SourceTyped Source = iota
	SourceVoice
)

func (s Source) String() string {
	if s == SourceVoice {
		return "voice"
	}
	return "typed"
}

type Input struct {
	Text   string
	Source Source
}

// readLines feeds console lines into a channel until EOF or ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case out <- strings.TrimRight(sc.Text(), "\r"):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// console renders the conversation. Logs go elsewhere.
type console struct {
	w         io.Writer
	prompt    *color.Color
	label     *color.Color
	reply     *color.Color
	notice    *color.Color
	errorText *color.Color
}

func newConsole(w io.Writer, noColor bool) *console {
	c := &console{
		w:         w,
		prompt:    color.New(color.FgGreen, color.Bold),
		label:     color.New(color.FgBlue, color.Bold),
		reply:     color.New(color.FgCyan),
		notice:    color.New(color.FgYellow),
		errorText: color.New(color.FgRed),
	}
	if noColor {
		for _, col := range []*color.Color{c.prompt, c.label, c.reply, c.notice, c.errorText} {
			col.DisableColor()
		}
	}
	return c
}

func (c *console) Prompt(p string) { c.prompt.Fprint(c.w, p) }

func (c *console) Reply(text string) {
	c.label.Fprint(c.w, "\nPersonal Assistant > ")
	c.reply.Fprintln(c.w, text)
}

func (c *console) Voice(text string) {
	c.label.Fprint(c.w, "You (voice) > ")
	c.reply.Fprintln(c.w, text)
}

func (c *console) Notice(text string) { c.notice.Fprintln(c.w, text) }

func (c *console) Error(text string) { c.errorText.Fprintln(c.w, text) }
