package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/histsync/am"
	"github.com/teranos/histsync/errors"
	"github.com/teranos/histsync/record"
)

// StatusCmd shows the locally held chains
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the chains held locally",
	Long:  "List every (host, tag) chain in the local store with its record count. This host's chains are marked.",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	self, err := am.LoadHostID(cfg.Host.IDPath)
	if err != nil {
		return err
	}

	st, database, err := openStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	status, err := st.Status(cmd.Context())
	if err != nil {
		return errors.Wrap(err, "failed to read local status")
	}

	pterm.Printf("Host %s\n", pterm.LightCyan(self.String()))
	if status.Len() == 0 {
		pterm.Info.Println("No records yet")
		return nil
	}
	return pterm.DefaultTable.WithHasHeader().WithData(statusTable(status, self)).Render()
}

func statusTable(status record.Status, self record.HostID) pterm.TableData {
	data := pterm.TableData{{"Host", "Tag", "Records"}}
	for _, key := range status.Keys() {
		n, _ := status.Get(key.Host, key.Tag)
		host := key.Host.String()
		if key.Host == self {
			host += " (this host)"
		}
		data = append(data, []string{host, key.Tag, fmt.Sprint(n)})
	}
	return data
}
