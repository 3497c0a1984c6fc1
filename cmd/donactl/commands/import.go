package commands

import (
	glog "github.com/labstack/gommon/log"
	"github.com/spf13/cobra"

	"github.com/iliyamo/donation-market/internal/importer"
	"github.com/iliyamo/donation-market/internal/repository"
)

var importURL string

var importCmd = &cobra.Command{
	Use:   "import-addresses",
	Short: "Import cities and postal codes from the open-data API",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, cfg, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		url := cfg.AddressAPIURL
		if importURL != "" {
			url = importURL
		}
		logger := glog.New("donactl")
		logger.SetLevel(glog.WARN)
		if verbose {
			logger.SetLevel(glog.INFO)
		}
		Info("fetching %s", url)
		repo := repository.NewAddressRepo(db, repository.Dialect(cfg.DBDriver))
		n, err := importer.NewPostalImporter(url, repo, logger).Run(cmd.Context())
		if err != nil {
			return err
		}
		Success("%d new addresses", n)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importURL, "url", "", "Override ADDRESS_API_URL")
	rootCmd.AddCommand(importCmd)
}
