package probe

import (
	"sync/atomic"
	"time"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/utils/batcher"
)

// progress batches per-peer completions into periodic log lines so a
// large round does not flood the output.
type progress struct {
	total int
	count atomic.Int64
	b     *batcher.Batcher[struct{}]
}

func newProgress(total int) *progress {
	p := &progress{total: total}
	p.b = batcher.New(
		batcher.WithMaxCapacity[struct{}](total),
		batcher.WithFlushInterval[struct{}](2*time.Second),
		batcher.WithFlushCallback[struct{}](func(items []struct{}) {
			if len(items) == 0 {
				return
			}
			done := p.count.Add(int64(len(items)))
			gologger.Info().Msgf("probed %d/%d peers", done, p.total)
		}),
	)
	go p.b.Run()
	return p
}

func (p *progress) mark() {
	p.b.Append(struct{}{})
}

func (p *progress) stop() {
	p.b.Stop()
}
