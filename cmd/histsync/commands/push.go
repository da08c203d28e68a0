package commands

import (
	"context"

	"github.com/kballard/go-shellquote"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/histsync/am"
	"github.com/teranos/histsync/errors"
	"github.com/teranos/histsync/logger"
	"github.com/teranos/histsync/record"
)

// RecordVersion is written into every record this build appends.
const RecordVersion = "v0"

// PushCmd appends a command to this host's history
var PushCmd = &cobra.Command{
	Use:   "push [--tag <tag>] -- <command...>",
	Short: "Append a command to this host's history",
	Long: `Append one record to this host's chain for the given tag. The
command words are re-quoted so the stored line can be pasted back into a
shell unchanged.

Examples:
  histsync push -- git commit -m "fix: typo"
  histsync push --tag kv -- editor=vim`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPush,
}

var pushTag string

func init() {
	PushCmd.Flags().StringVarP(&pushTag, "tag", "t", "history", "Chain tag to append to")
}

func runPush(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	rec, err := pushCommand(cmd.Context(), cfg, pushTag, args)
	if err != nil {
		return err
	}

	if verbosityOf(cmd) >= logger.VerbosityInfo {
		pterm.Printf("%s %s[%d]\n", rec.ID, rec.Key(), rec.Idx)
	}
	return nil
}

// pushCommand appends the shell-quoted words to this host's chain for tag.
func pushCommand(ctx context.Context, cfg *am.Config, tag string, words []string) (record.Record, error) {
	if tag == "" {
		return record.Record{}, errors.New("tag cannot be empty")
	}
	host, err := am.LoadHostID(cfg.Host.IDPath)
	if err != nil {
		return record.Record{}, err
	}

	st, database, err := openStore(cfg.Database.Path)
	if err != nil {
		return record.Record{}, err
	}
	defer database.Close()

	line := shellquote.Join(words...)
	rec, err := st.Append(ctx, host, tag, RecordVersion, []byte(line))
	if err != nil {
		return record.Record{}, errors.Wrapf(err, "failed to record %q", line)
	}
	return rec, nil
}

func verbosityOf(cmd *cobra.Command) int {
	v, _ := cmd.Flags().GetCount("verbose")
	return v
}
