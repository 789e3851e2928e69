package observability

import (
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushJob is the Pushgateway job name grouping the relayer's metrics.
const PushJob = "gema_anchor"

// PushMetrics delivers the relayer's collectors to a Pushgateway. The
// relayer is a one-shot process with no scrape surface, so counters survive
// a pass only if pushed before exit.
func PushMetrics(gatewayURL string) error {
	RegisterMetrics()

	return push.New(gatewayURL, PushJob).
		Collector(anchorSessionsTotal).
		Collector(anchorLinesTotal).
		Collector(anchorPassSeconds).
		Push()
}
