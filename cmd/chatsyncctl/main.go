package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/domain"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/session"
)

func main() {
	layout := session.DefaultLayout()

	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	configFlag := flag.String("config", layout.ConfigPath(), "path to config.toml")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}
	sessionName := session.Resolve(*sessionFlag, cfg)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	holder, err := lock.Inspect(layout.LockPath(sessionName))
	if err != nil {
		fail(err)
	}
	if holder == nil {
		fmt.Fprintf(os.Stderr, "error: no daemon running for session %q (start it with: chatsyncd --session %s)\n", sessionName, sessionName)
		os.Exit(1)
	}

	socketPath := layout.SocketPath(sessionName)
	c, err := api.Dial(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	out := printer{json: *jsonFlag}

	if args[0] == "watch" {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		prefix := ""
		if len(args) > 1 {
			prefix = args[1]
		}
		err = c.Watch(ctx, prefix, out.envelope)
		if err != nil && ctx.Err() == nil {
			fail(err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, out)
	case "chats":
		cmdChats(ctx, c, out)
	case "messages":
		cmdMessages(ctx, c, out, args[1:])
	case "send":
		if len(args) < 3 {
			usageExit("usage: chatsyncctl send <convo> <text>")
		}
		cmdSend(ctx, c, out, args[1], strings.Join(args[2:], " "))
	case "resend":
		if len(args) != 3 {
			usageExit("usage: chatsyncctl resend <convo> <identifier>")
		}
		if err := c.Resend(ctx, api.ResendRequest{Convo: args[1], Identifier: args[2]}); err != nil {
			fail(err)
		}
	case "react":
		if len(args) != 4 {
			usageExit("usage: chatsyncctl react <convo> <message-id> <symbol>")
		}
		resp, err := c.React(ctx, api.ReactRequest{Convo: args[1], Message: args[2], Symbol: args[3]})
		if err != nil {
			fail(err)
		}
		out.value(resp, func() { fmt.Printf("Action: %s\n", resp.ActionID) })
	case "search":
		cmdSearch(ctx, c, out, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatsyncctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                         Show session status")
	fmt.Fprintln(os.Stderr, "  chats                          List conversations, most recent first")
	fmt.Fprintln(os.Stderr, "  messages [flags] <convo>       Show or page a conversation window")
	fmt.Fprintln(os.Stderr, "  send <convo> <text>            Send a text message")
	fmt.Fprintln(os.Stderr, "  resend <convo> <identifier>    Retry a failed message")
	fmt.Fprintln(os.Stderr, "  react <convo> <id> <symbol>    React to a message")
	fmt.Fprintln(os.Stderr, "  search [flags] <phrase>        Search messages")
	fmt.Fprintln(os.Stderr, "  watch [prefix]                 Stream daemon events")
}

func usageExit(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func cmdStatus(ctx context.Context, c *api.Client, out printer) {
	resp, err := c.Status(ctx)
	if err != nil {
		fail(err)
	}
	out.value(resp, func() {
		fmt.Printf("Session: %s (%s)\n", resp.Session, resp.Ship)
		fmt.Printf("Status:  %s\n", resp.Status)
		fmt.Printf("Stream:  %s\n", map[bool]string{true: "live", false: "down"}[resp.Live])
		fmt.Printf("Chats:   %d\n", resp.Conversations)
		if resp.Active != "" {
			fmt.Printf("Open:    %s\n", resp.Active)
		}
		fmt.Printf("Uptime:  %s\n", time.Duration(resp.UptimeMs)*time.Millisecond)
	})
}

func cmdChats(ctx context.Context, c *api.Client, out printer) {
	resp, err := c.ListChats(ctx)
	if err != nil {
		fail(err)
	}
	out.value(resp, func() {
		if len(resp.Chats) == 0 {
			fmt.Println("No conversations.")
			return
		}
		for _, ch := range resp.Chats {
			name := ch.Conversation.Name
			if name == "" {
				name = strings.Join(ch.Conversation.Members, ", ")
			}
			unread := ""
			if ch.Unreads > 0 {
				unread = fmt.Sprintf(" (%d unread)", ch.Unreads)
			}
			preview := ""
			if ch.LastMessage != nil {
				preview = ch.LastMessage.Author + ": " + truncate(ch.LastMessage.Content, 60)
			}
			fmt.Printf("%-24s %-30s%s  %s\n", ch.Conversation.ID, name, unread, preview)
		}
	})
}

func cmdMessages(ctx context.Context, c *api.Client, out printer, args []string) {
	fs := flag.NewFlagSet("messages", flag.ExitOnError)
	anchor := fs.String("anchor", "", "message id to page around; empty shows the cached window")
	before := fs.Int("before", 50, "messages before the anchor")
	after := fs.Int("after", 0, "messages after the anchor")
	dir := fs.String("dir", "older", "how to merge the page: older, newer or jump")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		usageExit("usage: chatsyncctl messages [--anchor id] [--before n] [--after n] [--dir older|newer|jump] <convo>")
	}

	resp, err := c.ListMessages(ctx, api.MessagesRequest{
		Convo:     fs.Arg(0),
		Anchor:    *anchor,
		Before:    *before,
		After:     *after,
		Direction: *dir,
	})
	if err != nil {
		fail(err)
	}
	out.value(resp, func() {
		// Windows are newest first; print oldest first like a chat log.
		for i := len(resp.Messages) - 1; i >= 0; i-- {
			printMessage(resp.Messages[i])
		}
		if resp.End {
			fmt.Println("-- no more messages --")
		}
	})
}

func cmdSend(ctx context.Context, c *api.Client, out printer, convo, text string) {
	resp, err := c.SendMessage(ctx, api.SendRequest{Convo: convo, Content: text})
	if err != nil {
		fail(err)
	}
	out.value(resp, func() {
		fmt.Printf("Queued %s (%s)\n", resp.Message.Identifier, resp.Message.Status)
	})
}

func cmdSearch(ctx context.Context, c *api.Client, out printer, args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	in := fs.String("in", "", "only search this conversation")
	author := fs.String("author", "", "only messages by this ship")
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		usageExit("usage: chatsyncctl search [--in convo] [--author ship] <phrase>")
	}

	resp, err := c.Search(ctx, api.SearchRequest{
		Phrase:     strings.Join(fs.Args(), " "),
		OnlyIn:     *in,
		OnlyAuthor: *author,
	})
	if err != nil {
		fail(err)
	}
	out.value(resp, func() {
		if resp.Status == domain.SearchError {
			fmt.Fprintf(os.Stderr, "search failed: %s\n", resp.Err)
			os.Exit(1)
		}
		for _, hit := range resp.Results {
			fmt.Printf("[%s] ", hit.Convo)
			printMessage(hit.Message)
		}
		fmt.Printf("%d result(s)\n", len(resp.Results))
	})
}

func printMessage(m domain.Message) {
	ts := time.UnixMilli(m.Timestamp).Format("2006-01-02 15:04")
	flags := ""
	if m.Edited {
		flags += " (edited)"
	}
	if m.Status != "" && m.Status != domain.StatusDelivered {
		flags += " [" + string(m.Status) + "]"
	}
	fmt.Printf("%s %-6s %s: %s%s\n", ts, m.ID, m.Author, m.Content, flags)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

type printer struct {
	json bool
}

func (p printer) value(v any, human func()) {
	if !p.json {
		human()
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}

func (p printer) envelope(env api.Envelope) error {
	if p.json {
		return json.NewEncoder(os.Stdout).Encode(env)
	}
	ts := time.UnixMilli(env.OccurredAtMs).Format("15:04:05.000")
	fmt.Printf("%s %-24s %s\n", ts, env.Kind, env.Payload)
	return nil
}
