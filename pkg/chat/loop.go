// Package chat runs the interactive console session.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/harunnryd/aide/pkg/access"
	"github.com/harunnryd/aide/pkg/adapters/tts"
	"github.com/harunnryd/aide/pkg/assistant"
	"github.com/harunnryd/aide/pkg/conversation"
	"github.com/harunnryd/aide/pkg/logging"
	"github.com/harunnryd/aide/pkg/pdf"
	"github.com/harunnryd/aide/pkg/redact"
	"github.com/harunnryd/aide/pkg/search"
	"github.com/harunnryd/aide/pkg/session"
	"github.com/harunnryd/aide/pkg/turn"
)

const helpText = `Commands:
  /pdf <path>      load a PDF into the conversation
  /search <query>  add web search results to the conversation
  voice            toggle spoken replies
  /help            show this help
  exit, quit, q    end the session`

// Speaker starts playback of a reply for the user turn identified by epoch.
// It reports false when nothing was spoken.
type Speaker interface {
	Speak(ctx context.Context, text string, epoch uint64) (bool, error)
}

type Config struct {
	// MaxEmpty consecutive empty inputs end the session.
	MaxEmpty int `mapstructure:"max_empty"`
	// TrimThreshold is the transcript length above which the operator is
	// asked to drop old turns.
	TrimThreshold int  `mapstructure:"trim_threshold"`
	NoColor       bool `mapstructure:"no_color"`
}

func (c Config) withDefaults() Config {
	if c.MaxEmpty <= 0 {
		c.MaxEmpty = 3
	}
	if c.TrimThreshold <= 0 {
		c.TrimThreshold = 100
	}
	return c
}

// Deps are the collaborators of a Loop. Speaker, PDF, Search, Gate and Voice
// are optional.
type Deps struct {
	Assistant *assistant.Assistant
	Session   *session.Session
	Turns     turn.Manager
	Speaker   Speaker
	PDF       *pdf.Loader
	Search    search.Searcher
	Gate      *access.Gate
	// Voice delivers transcribed speech.
	Voice  <-chan string
	In     io.Reader
	Out    io.Writer
	Logger *slog.Logger
}

// Loop processes one input at a time from the console and from voice.
type Loop struct {
	cfg    Config
	deps   Deps
	con    *console
	logger *slog.Logger
	lines  <-chan string
	voice  <-chan string
	empty  int
}

func NewLoop(cfg Config, deps Deps) *Loop {
	return &Loop{
		cfg:    cfg.withDefaults(),
		deps:   deps,
		con:    newConsole(deps.Out, cfg.NoColor),
		logger: logging.NewComponentLogger(deps.Logger, "chat"),
		voice:  deps.Voice,
	}
}

// Run returns when the user ends the session, input is exhausted or ctx is
// done.
func (l *Loop) Run(ctx context.Context) error {
	l.lines = readLines(ctx, l.deps.In)
	if l.deps.Gate != nil && !l.deps.Session.Unlocked() {
		if !l.unlock(ctx) {
			return nil
		}
	}
	for {
		l.con.Prompt("\nUser > ")
		in, ok := l.next(ctx)
		if !ok {
			return ctx.Err()
		}
		if in.Source == SourceVoice {
			l.con.Voice(in.Text)
		}
		if l.handle(ctx, in) {
			return nil
		}
	}
}

func (l *Loop) next(ctx context.Context) (Input, bool) {
	for {
		select {
		case <-ctx.Done():
			return Input{}, false
		case line, ok := <-l.lines:
			if !ok {
				return Input{}, false
			}
			return Input{Text: line, Source: SourceTyped}, true
		case text, ok := <-l.voice:
			if !ok {
				l.voice = nil
				continue
			}
			return Input{Text: text, Source: SourceVoice}, true
		}
	}
}

// nextTyped waits for a console line, discarding speech.
func (l *Loop) nextTyped(ctx context.Context) (string, bool) {
	for {
		in, ok := l.next(ctx)
		if !ok {
			return "", false
		}
		if in.Source == SourceTyped {
			return strings.TrimSpace(in.Text), true
		}
	}
}

func (l *Loop) unlock(ctx context.Context) bool {
	gate := l.deps.Gate
	l.con.Notice("Please enter your password to authenticate.")
	for {
		l.con.Prompt("Password > ")
		pwd, ok := l.nextTyped(ctx)
		if !ok {
			return false
		}
		if isQuit(pwd) {
			return false
		}
		if pwd == "" {
			continue
		}
		if gate.Check(pwd) {
			l.deps.Session.Unlock()
			l.logger.Info("access_granted")
			l.con.Notice("Access granted.")
			return true
		}
		l.logger.Warn("access_denied", "remaining", gate.Remaining())
		if gate.Exhausted() {
			l.con.Error("Too many failed attempts, exiting...")
			return false
		}
		l.con.Error(fmt.Sprintf("Wrong password, %d attempt(s) left.", gate.Remaining()))
	}
}

// handle processes one input and reports whether the session should end.
func (l *Loop) handle(ctx context.Context, in Input) bool {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		l.empty++
		if l.empty >= l.cfg.MaxEmpty {
			l.con.Notice("Invalid Input, exiting...")
			return true
		}
		l.con.Notice("Please enter a valid message")
		return false
	}
	l.empty = 0

	lower := strings.ToLower(text)
	switch {
	case isQuit(lower):
		l.con.Notice("Exiting...")
		return true
	case lower == "voice":
		l.toggleVoice()
		return false
	case lower == "/help":
		l.con.Notice(helpText)
		return false
	}

	if in.Source == SourceTyped {
		l.deps.Turns.OnUserText()
	}
	switch {
	case lower == "/pdf" || strings.HasPrefix(lower, "/pdf "):
		l.loadPDF(strings.TrimSpace(text[len("/pdf"):]))
		l.deps.Turns.OnReplyReady(false)
	case lower == "/search" || strings.HasPrefix(lower, "/search "):
		l.search(ctx, strings.TrimSpace(text[len("/search"):]))
		l.deps.Turns.OnReplyReady(false)
	default:
		l.converse(ctx, text, in.Source)
	}
	l.manageLength(ctx)
	return false
}

func (l *Loop) toggleVoice() {
	if l.deps.Speaker == nil {
		l.con.Notice("Voice output is not available.")
		return
	}
	if l.deps.Session.ToggleVoiceOutput() {
		l.con.Notice("Voice output enabled.")
		return
	}
	l.con.Notice("Voice output disabled.")
}

func (l *Loop) loadPDF(path string) {
	if path == "" || l.deps.PDF == nil {
		l.con.Notice("Usage: /pdf <path>")
		return
	}
	text, err := l.deps.PDF.Load(path)
	if err != nil || strings.TrimSpace(text) == "" {
		if err == nil {
			err = errors.New("no text found")
		}
		l.logger.Warn("pdf_load_failed", "path", path, "error", err.Error())
		l.con.Error("PDF could not be loaded: " + err.Error())
		return
	}
	l.transcript().AddUser(fmt.Sprintf("[PDF] %s\n%s", filepath.Base(path), text))
	l.con.Notice("PDF loaded into context.")
}

func (l *Loop) search(ctx context.Context, query string) {
	if query == "" {
		l.con.Notice("Please provide a search query after /search")
		return
	}
	if l.deps.Search == nil {
		l.con.Notice("Web search is not configured.")
		return
	}
	l.con.Notice("Searching the web...")
	results, err := l.deps.Search.Search(ctx, query)
	if err != nil {
		l.logger.Warn("search_failed", "error", err.Error())
		l.con.Error("Search error: " + err.Error())
		return
	}
	if len(results) == 0 {
		l.con.Notice(search.NoResults)
		return
	}
	l.transcript().AddUser(assistant.SearchContext(query, results))
	l.con.Notice("Web search results loaded into chat context.")
}

func (l *Loop) converse(ctx context.Context, text string, src Source) {
	sess := l.deps.Session
	epoch := sess.Epoch()
	l.logger.Info("user_input", "source", src.String(), "text", redact.Text(text))
	reply, err := l.deps.Assistant.Reply(ctx, text)
	if err != nil {
		l.con.Error("Sorry, something went wrong: " + err.Error())
		l.deps.Turns.OnTurnFailed("llm_generate")
		return
	}
	l.con.Reply(reply.Text)

	stale := sess.Epoch() != epoch
	if stale {
		l.logger.Info("reply_superseded", "epoch", epoch, "current_epoch", sess.Epoch())
	}
	speak := l.deps.Speaker != nil && sess.VoiceOutput() && !stale && tts.ShouldSpeak(reply.Text)
	l.deps.Turns.OnReplyReady(speak)
	if !speak {
		return
	}
	spoken, err := l.deps.Speaker.Speak(ctx, reply.Text, epoch)
	if err != nil {
		l.logger.Warn("speak_failed", "error", err.Error())
		l.con.Error("Sorry, something went wrong: " + err.Error())
	}
	if err != nil || !spoken {
		l.deps.Turns.OnPlaybackDone()
	}
}

func (l *Loop) manageLength(ctx context.Context) {
	tr := l.transcript()
	n := tr.Len()
	if n <= l.cfg.TrimThreshold {
		return
	}
	l.con.Notice(fmt.Sprintf("Conversation getting long (%d messages).", n))
	l.con.Prompt("How many old messages to remove? (0 to keep all): ")
	answer, ok := l.nextTyped(ctx)
	if !ok {
		return
	}
	count, err := strconv.Atoi(answer)
	if err != nil || count <= 0 {
		l.con.Notice("Keeping all messages")
		return
	}
	removed := tr.Trim(count)
	l.logger.Info("transcript_trimmed", "removed", removed, "remaining", tr.Len())
	l.con.Notice(fmt.Sprintf("Removed %d old messages. Now %d messages", removed, tr.Len()))
}

func (l *Loop) transcript() *conversation.Transcript {
	return l.deps.Assistant.Transcript()
}

func isQuit(s string) bool {
	switch strings.ToLower(s) {
	case "exit", "quit", "q":
		return true
	}
	return false
}
