package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/omnichat/webchat/internal/config"
	"github.com/omnichat/webchat/internal/logging"
	"github.com/omnichat/webchat/internal/storage"
	"github.com/omnichat/webchat/internal/webchat"
)

type clientRuntime struct {
	cfg     *config.Config
	log     zerolog.Logger
	store   storage.Store
	session *webchat.Session
}

func (rt *clientRuntime) Close() {
	if rt.session != nil {
		rt.session.Close()
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.log.Warn().Err(err).Msg("close storage")
		}
	}
}

// setup loads configuration, applies global flag overrides and builds a session.
func setup(c *cli.Context) (*clientRuntime, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if v := c.String("api"); v != "" {
		cfg.API.URL = v
	}
	if v := c.String("ws"); v != "" {
		cfg.WS.URL = v
	}
	if v := c.String("storage"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	store, err := storage.New(c.Context, cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}

	return &clientRuntime{
		cfg:     cfg,
		log:     logger,
		store:   store,
		session: webchat.New(cfg.Session(), store, webchat.WithLogger(logger)),
	}, nil
}

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Open the chat and talk to support interactively",
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runChat(ctx, rt.session, os.Stdin, os.Stdout)
		},
	}
}

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Send one message and print the conversation",
		ArgsUsage: "MESSAGE",
		Action: func(c *cli.Context) error {
			text := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("a message is required")
			}

			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			return sendOnce(c.Context, rt.session, rt.log, text, os.Stdout)
		},
	}
}

// sendOnce opens the session and posts text. A failed resume still leaves a
// usable handle, so only a session without one aborts the send.
func sendOnce(ctx context.Context, sess *webchat.Session, log zerolog.Logger, text string, out io.Writer) error {
	if err := sess.Open(ctx); err != nil {
		if sess.Snapshot().ConversationID == "" {
			return err
		}
		log.Warn().Err(err).Msg("conversation history unavailable, sending anyway")
	}
	if err := sess.SendMessage(ctx, text); err != nil {
		return err
	}

	r := newRenderer(out)
	r.render(sess.Snapshot())
	return nil
}

func whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Print the stored visitor identity",
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			identity := webchat.NewIdentityManager(rt.store, rt.log)
			fmt.Printf("visitor:      %s\n", identity.EnsureVisitorID(c.Context))
			if handle, ok := identity.ConversationHandle(c.Context); ok {
				fmt.Printf("conversation: %s\n", handle)
			} else {
				fmt.Println("conversation: (none)")
			}
			return nil
		},
	}
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a sample configuration file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "Destination `FILE`",
				Value: "webchat.toml",
			},
		},
		Action: func(c *cli.Context) error {
			path := c.String("path")
			if err := config.InitConfig(path); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
}

const chatHelp = `Type a message and press enter to send it.
  /name VALUE  /phone VALUE  /email VALUE  /address VALUE   fill in contact details
  /save        send the contact details
  /profile     toggle the contact form
  /quit        leave the chat`

// runChat drives a session from line-oriented input until EOF, /quit or ctx ends.
func runChat(ctx context.Context, sess *webchat.Session, in io.Reader, out io.Writer) error {
	r := newRenderer(out)
	fmt.Fprintln(out, chatHelp)

	if err := sess.Open(ctx); err != nil {
		r.render(sess.Snapshot())
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		r.render(sess.Snapshot())

		select {
		case <-ctx.Done():
			return nil
		case <-sess.Updates():
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, sess, line); quit {
				r.render(sess.Snapshot())
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, sess *webchat.Session, line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		sess.SetDraft(line)
		_ = sess.Submit(ctx)
		return false
	}

	cmd, arg, _ := strings.Cut(trimmed, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true
	case "/profile":
		sess.ShowProfileForm(!sess.Snapshot().ShowProfileForm)
	case "/name":
		sess.SetProfileField(webchat.FieldFullName, arg)
	case "/phone":
		sess.SetProfileField(webchat.FieldPhone, arg)
	case "/email":
		sess.SetProfileField(webchat.FieldEmail, arg)
	case "/address":
		sess.SetProfileField(webchat.FieldAddress, arg)
	case "/save":
		_ = sess.SaveProfileForm(ctx)
	}
	return false
}
