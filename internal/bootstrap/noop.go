package bootstrap

import "context"

func init() {
	Register("noop", newNoopProvider)
}

// noopProvider produces no data and no watermark: bootstrap completes
// immediately with an empty result set (spec §4.3 table).
type noopProvider struct{}

func newNoopProvider(map[string]any) (Provider, error) {
	return noopProvider{}, nil
}

func (noopProvider) Stream(ctx context.Context, req Request) (<-chan Insert, <-chan Result, <-chan error) {
	inserts := make(chan Insert)
	results := make(chan Result, 1)
	errs := make(chan error, 1)
	close(inserts)
	results <- Result{}
	close(results)
	close(errs)
	return inserts, results, errs
}
