package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/harulua/coreheart/internal/config"
	"github.com/harulua/coreheart/internal/db"
	"github.com/harulua/coreheart/internal/errors"
	"github.com/harulua/coreheart/internal/mcp"
	"github.com/harulua/coreheart/internal/ops"
	"github.com/harulua/coreheart/internal/web"
)

// maxStdinBytes bounds text piped into a command.
const maxStdinBytes = 2 << 20

// app holds the store and config shared by every command.
// When st is nil, the Before hook opens it from --dir.
type app struct {
	st     *db.Store
	cfg    *config.Config
	opened bool
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(a *app) *cli.App {
	cliApp := &cli.App{
		Name:    "coreheart",
		Usage:   "Breath, purify, meeting and central memory store",
		Version: Version,
		// after-language lines may contain commas
		DisableSliceFlagSeparator: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				EnvVars: []string{"COREHEART_DIR"},
				Usage:   "Data directory (default ~/.coreheart)",
			},
		},
		Before: a.open,
		After:  a.close,
		Commands: []*cli.Command{
			serveCmd(a),
			mcpCmd(a),
			breathCmd(a),
			purifyCmd(a),
			meetingCmd(a),
			centralCmd(a),
			hacoinCmd(a),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	cliApp.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return cliApp
}

// open loads config and the store unless they were injected.
func (a *app) open(c *cli.Context) error {
	if a.st != nil {
		if a.cfg == nil {
			a.cfg = config.DefaultConfig()
		}
		return nil
	}
	// help needs no store
	if c.Args().First() == "help" || c.Args().Len() == 0 {
		return nil
	}

	baseDir, err := resolveBaseDir(c.String("dir"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}

	cwd, _ := os.Getwd()
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: failed to load config: %v", err), 1)
	}
	if err := config.ApplyEnv(cfg, os.Getenv); err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	if err := cfg.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("error: invalid config: %v", err), 1)
	}

	// stdout carries JSON and MCP frames; logs go to stderr
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	warnUnknownNames(cfg)

	st, err := db.Open(baseDir, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: failed to open store: %v", err), 1)
	}

	a.st = st.WithLogger(slog.Default())
	a.cfg = cfg
	a.opened = true
	return nil
}

// close releases a store opened by open.
func (a *app) close(_ *cli.Context) error {
	if a.opened && a.st != nil {
		a.opened = false
		return a.st.Close()
	}
	return nil
}

// resolveBaseDir returns dir, or ~/.coreheart when dir is empty.
func resolveBaseDir(dir string) (string, error) {
	if dir = strings.TrimSpace(dir); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".coreheart"), nil
}

func warnUnknownNames(cfg *config.Config) {
	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		slog.Warn("unknown tools in disabled_tools", "names", unknown)
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		slog.Warn("unknown types in disabled_types", "names", unknown)
	}
}

// serveCmd creates the serve command.
func serveCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and pages",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Bind address (default from config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port (default from config)"},
		},
		Action: func(c *cli.Context) error {
			if bind := c.String("bind"); bind != "" {
				a.cfg.Server.Bind = bind
			}
			if c.IsSet("port") {
				a.cfg.Server.Port = c.Int("port")
			}
			if err := a.cfg.Validate(); err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}
			return web.Run(web.NewServer(a.st, a.cfg, Version))
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP server on stdio",
		Action: func(c *cli.Context) error {
			return mcp.Run(a.st, a.cfg, Version)
		},
	}
}

// breathCmd creates the breath command group.
func breathCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "breath",
		Usage: "Submit and inspect breath fragments",
		Subcommands: []*cli.Command{
			{
				Name:  "submit",
				Usage: "Submit a fragment (--text or stdin)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "Fragment text"},
					&cli.StringFlag{Name: "id", Usage: "Breath id"},
					&cli.StringFlag{Name: "message-id", Aliases: []string{"m"}, Usage: "Client message id"},
					&cli.StringFlag{Name: "room-id", Aliases: []string{"r"}, Usage: "Room id"},
					&cli.StringFlag{Name: "user-id", Aliases: []string{"u"}, Usage: "User id"},
					&cli.StringFlag{Name: "kind", Usage: "Kind label"},
					&cli.StringFlag{Name: "summary", Usage: "Summary"},
				},
				Action: func(c *cli.Context) error {
					text, err := textInput(c)
					if err != nil {
						return outputError(err)
					}
					output, err := ops.SubmitBreath(c.Context, a.st, a.cfg, ops.SubmitBreathInput{
						ID:        c.String("id"),
						MessageID: c.String("message-id"),
						Text:      text,
						RoomID:    c.String("room-id"),
						UserID:    c.String("user-id"),
						Kind:      c.String("kind"),
						Summary:   c.String("summary"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "recent",
				Usage: "List the newest breaths",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Number of items (default 10)"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.RecentBreaths(c.Context, a.st, a.cfg, ops.RecentBreathsInput{Limit: c.Int("limit")})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "get",
				Usage:     "Fetch a breath by id or message id",
				ArgsUsage: "[id]",
				Flags:     []cli.Flag{idFlag("Breath id or message id")},
				Action: func(c *cli.Context) error {
					id, err := idArg(c, "id")
					if err != nil {
						return outputError(err)
					}
					output, err := ops.GetBreath(c.Context, a.st, ops.GetBreathInput{ID: id})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "delete",
				Usage:     "Remove a breath by id or message id",
				ArgsUsage: "[id]",
				Flags:     []cli.Flag{idFlag("Breath id or message id")},
				Action: func(c *cli.Context) error {
					id, err := idArg(c, "id")
					if err != nil {
						return outputError(err)
					}
					output, err := ops.DeleteBreath(c.Context, a.st, ops.DeleteBreathInput{ID: id})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "consume",
				Usage:     "Mark a breath consumed and journal its ha-coin events",
				ArgsUsage: "[id]",
				Flags: []cli.Flag{
					idFlag("Breath id or message id"),
					&cli.StringFlag{Name: "to", Usage: "Destination (default meaning-cross)"},
					&cli.StringFlag{Name: "reason", Usage: "Reason (default MOVED)"},
					&cli.StringFlag{Name: "user-id", Usage: "User id (default web)"},
					&cli.StringFlag{Name: "persona", Usage: "Persona (default haru)"},
					&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"},
				},
				Action: func(c *cli.Context) error {
					id, err := idArg(c, "id")
					if err != nil {
						return outputError(err)
					}
					output, err := ops.ConsumeBreath(c.Context, a.st, ops.ConsumeBreathInput{
						ID:      id,
						To:      c.String("to"),
						Reason:  c.String("reason"),
						UserID:  c.String("user-id"),
						Persona: c.String("persona"),
						Tags:    parseTags(c.String("tags")),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "log",
				Usage: "Print the whole breath log",
				Action: func(c *cli.Context) error {
					output, err := ops.BreathLog(c.Context, a.st)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// purifyCmd creates the purify command group.
func purifyCmd(a *app) *cli.Command {
	idAction := func(run func(c *cli.Context, id string) (any, error)) cli.ActionFunc {
		return func(c *cli.Context) error {
			id, err := idArg(c, "id")
			if err != nil {
				return outputError(err)
			}
			output, err := run(c, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		}
	}

	return &cli.Command{
		Name:  "purify",
		Usage: "Quarantine fragments and move them on",
		Subcommands: []*cli.Command{
			{
				Name:  "move",
				Usage: "Move a fragment into the purify bin (--text or stdin)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "Fragment text"},
					&cli.StringFlag{Name: "reason", Usage: "Reason (default hold)"},
					&cli.StringFlag{Name: "message-id", Aliases: []string{"m"}, Usage: "Source message id"},
					&cli.StringFlag{Name: "room-id", Aliases: []string{"r"}, Usage: "Source room id"},
					&cli.Int64Flag{Name: "received-at", Usage: "Source receivedAt in ms"},
					&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"},
				},
				Action: func(c *cli.Context) error {
					text, err := textInput(c)
					if err != nil {
						return outputError(err)
					}
					output, err := ops.MoveToPurify(c.Context, a.st, ops.MoveToPurifyInput{
						Text:       text,
						Reason:     c.String("reason"),
						MessageID:  c.String("message-id"),
						RoomID:     c.String("room-id"),
						ReceivedAt: c.Int64("received-at"),
						Tags:       parseTags(c.String("tags")),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "restore",
				Usage:     "Move a purify item back into the breath log",
				ArgsUsage: "[id]",
				Flags:     []cli.Flag{idFlag("Purify item id")},
				Action: idAction(func(c *cli.Context, id string) (any, error) {
					return ops.RestoreFromPurify(c.Context, a.st, a.cfg, ops.PurifyIDInput{ID: id})
				}),
			},
			{
				Name:      "send",
				Usage:     "Open a meeting on a purify item",
				ArgsUsage: "[id]",
				Flags:     []cli.Flag{idFlag("Purify item id")},
				Action: idAction(func(c *cli.Context, id string) (any, error) {
					return ops.SendToMeeting(c.Context, a.st, ops.PurifyIDInput{ID: id})
				}),
			},
			{
				Name:      "delete",
				Usage:     "Delete a purify item for good",
				ArgsUsage: "[id]",
				Flags:     []cli.Flag{idFlag("Purify item id")},
				Action: idAction(func(c *cli.Context, id string) (any, error) {
					return ops.DeletePurified(c.Context, a.st, ops.PurifyIDInput{ID: id})
				}),
			},
			{
				Name:  "list",
				Usage: "Print the purify bin",
				Action: func(c *cli.Context) error {
					output, err := ops.ListPurify(c.Context, a.st)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// meetingCmd creates the meeting command group.
func meetingCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "meeting",
		Usage: "Open and revise meetings",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Open a meeting on a source text (--text or stdin)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "Source text"},
					&cli.StringFlag{Name: "id", Usage: "Meeting id (sanitized; generated when empty)"},
					&cli.StringFlag{Name: "message-id", Aliases: []string{"m"}, Usage: "Source message id"},
					&cli.StringFlag{Name: "room-id", Aliases: []string{"r"}, Usage: "Source room id"},
				},
				Action: func(c *cli.Context) error {
					text, err := textInput(c)
					if err != nil {
						return outputError(err)
					}
					output, err := ops.CreateMeeting(c.Context, a.st, ops.CreateMeetingInput{
						SourceText: text,
						MeetingID:  c.String("id"),
						MessageID:  c.String("message-id"),
						RoomID:     c.String("room-id"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "get",
				Usage:     "Fetch a meeting",
				ArgsUsage: "[meeting-id]",
				Flags:     []cli.Flag{meetingFlag()},
				Action: func(c *cli.Context) error {
					id, err := idArg(c, "id")
					if err != nil {
						return outputError(err)
					}
					output, err := ops.GetMeeting(c.Context, a.st, ops.GetMeetingInput{MeetingID: id})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "revise",
				Usage:     "Append an after-language version (--line, repeatable, or one line per stdin line)",
				ArgsUsage: "[meeting-id]",
				Flags: []cli.Flag{
					meetingFlag(),
					&cli.StringSliceFlag{Name: "line", Aliases: []string{"l"}, Usage: "After-language line"},
				},
				Action: func(c *cli.Context) error {
					id, err := idArg(c, "id")
					if err != nil {
						return outputError(err)
					}
					lines := c.StringSlice("line")
					if len(lines) == 0 && stdinHasData() {
						text, err := readStdin(maxStdinBytes)
						if err != nil {
							return outputError(errors.NewInvalidRequest(err.Error()))
						}
						lines = strings.Split(text, "\n")
					}
					output, err := ops.ReviseMeeting(c.Context, a.st, ops.ReviseMeetingInput{
						MeetingID: id,
						Lines:     lines,
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// centralCmd creates the central command group.
func centralCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "central",
		Usage: "Promote and list central definitions",
		Subcommands: []*cli.Command{
			{
				Name:      "promote",
				Usage:     "Promote a statement from a meeting (--text or stdin)",
				ArgsUsage: "[meeting-id]",
				Flags: []cli.Flag{
					meetingFlag(),
					&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "Definition text"},
					&cli.StringFlag{Name: "summary", Aliases: []string{"s"}, Usage: "Summary (default: text)"},
					&cli.StringFlag{Name: "topic", Usage: "Topic"},
				},
				Action: func(c *cli.Context) error {
					id, err := idArg(c, "id")
					if err != nil {
						return outputError(err)
					}
					text, err := textInput(c)
					if err != nil {
						return outputError(err)
					}
					output, err := ops.Promote(c.Context, a.st, a.cfg, ops.PromoteInput{
						MeetingID: id,
						Text:      text,
						Summary:   c.String("summary"),
						Topic:     c.String("topic"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "write",
				Usage: "Write a definition directly (--text or stdin)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "Definition text"},
					&cli.StringFlag{Name: "summary", Aliases: []string{"s"}, Usage: "Summary"},
					&cli.StringFlag{Name: "topic", Usage: "Topic"},
					&cli.StringFlag{Name: "id", Usage: "Definition id"},
				},
				Action: func(c *cli.Context) error {
					text, err := textInput(c)
					if err != nil {
						return outputError(err)
					}
					output, err := ops.WriteDefinition(c.Context, a.st, a.cfg, ops.WriteDefinitionInput{
						ID:      c.String("id"),
						Text:    text,
						Summary: c.String("summary"),
						Topic:   c.String("topic"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "list",
				Usage: "Print central memory",
				Action: func(c *cli.Context) error {
					output, err := ops.ListDefinitions(c.Context, a.st)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// hacoinCmd creates the hacoin command group.
func hacoinCmd(a *app) *cli.Command {
	return &cli.Command{
		Name:  "hacoin",
		Usage: "Post and read ha-coin ledger events",
		Subcommands: []*cli.Command{
			{
				Name:  "post",
				Usage: "Append a ledger event",
				Flags: []cli.Flag{
					&cli.Float64Flag{Name: "delta", Usage: "Non-zero amount", Required: true},
					&cli.StringFlag{Name: "reason", Usage: "Reason"},
					&cli.StringFlag{Name: "user-id", Usage: "User id"},
					&cli.StringFlag{Name: "message-id", Usage: "Message id"},
					&cli.StringFlag{Name: "inhale-id", Usage: "Inhale id"},
					&cli.StringFlag{Name: "summary", Usage: "Summary"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.PostEvent(c.Context, a.st, a.cfg, ops.PostEventInput{
						Delta:     c.Float64("delta"),
						Reason:    c.String("reason"),
						UserID:    c.String("user-id"),
						MessageID: c.String("message-id"),
						InhaleID:  c.String("inhale-id"),
						Summary:   c.String("summary"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "ledger",
				Usage: "Print the newest ledger events",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Number of events (default 200)"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.GetLedger(c.Context, a.st, a.cfg, ops.GetLedgerInput{Limit: c.Int("limit")})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// Helper functions

// idFlag is the --id flag of commands that address one record.
func idFlag(usage string) cli.Flag {
	return &cli.StringFlag{Name: "id", Usage: usage}
}

func meetingFlag() cli.Flag {
	return &cli.StringFlag{Name: "id", Aliases: []string{"meeting"}, Usage: "Meeting id"}
}

// idArg returns the named flag, or the positional id when the flag is empty.
// Anything after the id is an error: flags there are never parsed.
func idArg(c *cli.Context, flag string) (string, error) {
	if c.Args().Len() > 1 {
		return "", errors.NewInvalidRequest(fmt.Sprintf("unexpected arguments after id: %s (put flags before the id)", strings.Join(c.Args().Tail(), " ")))
	}
	if id := strings.TrimSpace(c.String(flag)); id != "" {
		return id, nil
	}
	return strings.TrimSpace(c.Args().First()), nil
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if cErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", cErr.Code, cErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// textInput returns --text, or piped stdin when the flag is empty.
func textInput(c *cli.Context) (string, error) {
	if text := strings.TrimSpace(c.String("text")); text != "" {
		return text, nil
	}
	if !stdinHasData() {
		return "", nil
	}
	text, err := readStdin(maxStdinBytes)
	if err != nil {
		return "", errors.NewInvalidRequest(err.Error())
	}
	return text, nil
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most limit bytes from stdin.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("stdin exceeds %d bytes", limit)
	}
	return strings.TrimSpace(string(data)), nil
}

// parseTags splits a comma-separated string into a slice of tags.
func parseTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
