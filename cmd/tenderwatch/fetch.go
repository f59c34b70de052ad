package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aristath/tenderwatch/internal/clients/goszakup"
	"github.com/aristath/tenderwatch/internal/corpus"
	"github.com/aristath/tenderwatch/internal/domain"
)

var (
	fetchPages    int
	fetchPageSize int
	fetchGraphQL  bool
)

// graphQLFetcher pages by lastId cursor instead of offset
type graphQLFetcher struct {
	client *goszakup.Client
}

func (g graphQLFetcher) FetchAll(ctx context.Context, pageSize, maxPages int) ([]domain.Lot, error) {
	return g.client.FetchAllGraphQL(ctx, pageSize, maxPages)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Pull lots from goszakup into the corpus file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var fetcher corpus.Fetcher = container.Goszakup
		if fetchGraphQL {
			fetcher = graphQLFetcher{client: container.Goszakup}
		}

		lots, err := corpus.NewClientSource(fetcher, fetchPageSize, fetchPages).Load(cmd.Context())
		if err != nil {
			return err
		}
		if err := container.Source.Save(lots); err != nil {
			return err
		}
		log.Info().Int("lots", len(lots)).Str("path", container.Source.Path()).Msg("Corpus saved")
		return nil
	},
}

func init() {
	fetchCmd.Flags().IntVar(&fetchPages, "pages", 10, "maximum pages to fetch")
	fetchCmd.Flags().IntVar(&fetchPageSize, "page-size", 100, "lots per page")
	fetchCmd.Flags().BoolVar(&fetchGraphQL, "graphql", false, "use the GraphQL endpoint")
}
