package ledger

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// QueryMany queries several addresses concurrently. The first failure
// cancels the rest.
func QueryMany(ctx context.Context, l Ledger, addresses []string) (map[string][]UTxO, error) {
	results := make([][]UTxO, len(addresses))
	g, gctx := errgroup.WithContext(ctx)
	for i, addr := range addresses {
		i, addr := i, addr
		g.Go(func() error {
			utxos, err := l.QueryUtxosAt(gctx, addr)
			if err != nil {
				return fmt.Errorf("query %s: %w", addr, err)
			}
			results[i] = utxos
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]UTxO, len(addresses))
	for i, addr := range addresses {
		out[addr] = results[i]
	}
	return out, nil
}
