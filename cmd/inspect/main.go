// Command inspect prints what a chat node stored in BadgerDB and mints
// development tokens. It opens the database read-only, so it can run next
// to a live server.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"market-chat/auth"
	"market-chat/domain"
	"market-chat/repositories"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
)

type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" default:"./data/badger"`
	JWTSecret      string `envconfig:"JWT_SECRET"`
	// INSPECT_COLOURS enables colorized headers
	Colours bool `envconfig:"INSPECT_COLOURS" default:"true"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	var (
		conversation string
		peer         string
		contact      string
		token        string
		cursor       string
		ttl          time.Duration
	)
	flagSet := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.BadgerFilepath, "db", cfg.BadgerFilepath, "path to the badger directory")
	flagSet.StringVarP(&conversation, "participant", "p", "", "list the conversation between this participant and --peer")
	flagSet.StringVar(&peer, "peer", "", "other side of the conversation")
	flagSet.StringVar(&cursor, "cursor", "", "page cursor returned by a previous listing")
	flagSet.StringVar(&contact, "contact", "", "print the notification address of a participant")
	flagSet.StringVar(&token, "token", "", "mint a token for a participant, using JWT_SECRET")
	flagSet.DurationVar(&ttl, "ttl", time.Hour, "lifetime of a minted token")
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if token != "" {
		if cfg.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required to mint a token")
		}
		signed, err := auth.NewVerifier(cfg.JWTSecret).GenerateToken(domain.ParticipantID(token), ttl)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, signed)
		return err
	}

	db, err := badger.Open(badger.DefaultOptions(cfg.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()
	color.Enable = cfg.Colours

	switch {
	case contact != "":
		address, err := repositories.NewContactRepository(db).GetContact(domain.ParticipantID(contact))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s\t%s\n", contact, address)
		return err
	case conversation != "":
		return printConversation(out, db, domain.ParticipantID(conversation), domain.ParticipantID(peer), cursor)
	default:
		return printSummary(out, db)
	}
}

func printConversation(out io.Writer, db *badger.DB, self, peer domain.ParticipantID, cursor string) error {
	key, err := domain.Resolve(self, peer)
	if err != nil {
		return err
	}
	repository := repositories.NewMessageRepository(db, logs.GetLoggerFromLevel(slog.LevelWarn), nil)
	var page *string
	if cursor != "" {
		page = &cursor
	}
	messages, next, err := repository.ListBetween(key, page)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, color.New(color.BgBlack, color.FgGreen).Render(" "+key.String()+" "))
	table := newTable(out, "Sent at", "ID", "Sender", "Lang", "Read", "Content")
	for _, m := range messages {
		content := m.Body.Text
		if m.Body.IsAudio() {
			content = "[audio] " + m.Body.AudioRef
		}
		table.Append([]string{
			m.CreatedAt.Format(time.RFC3339),
			m.ID.String()[:8],
			m.Sender.String(),
			m.Lang,
			lo.Ternary(m.Read, "yes", "no"),
			content,
		})
	}
	table.Render()
	if next != nil {
		fmt.Fprintf(out, "\nolder messages: --cursor %s\n", *next)
	}
	return nil
}

// printSummary counts the stored messages of every conversation.
func printSummary(out io.Writer, db *badger.DB) error {
	counts := make(map[string]int)
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte("msg:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if key, ok := conversationOf(string(it.Item().Key())); ok {
				counts[key]++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(out, color.New(color.BgBlack, color.FgGreen).Render(" conversations "))
	table := newTable(out, "Conversation", "Messages")
	keys := lo.Keys(counts)
	slices.Sort(keys)
	for _, key := range keys {
		table.Append([]string{key, fmt.Sprint(counts[key])})
	}
	table.Render()
	return nil
}

// conversationOf extracts the key out of "msg:{conversation}:{ts}:{uuid}".
func conversationOf(key string) (string, bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 || parts[0] != "msg" {
		return "", false
	}
	return parts[1], true
}

func newTable(out io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}
