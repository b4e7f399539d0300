package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus/push"
)

// Push sends the registry to a Prometheus Pushgateway under job. Short-lived
// runs cannot be scraped, so they report this way.
func (r *Registry) Push(url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(r.Registry).Push(); err != nil {
		return fmt.Errorf("pushing metrics: %w", err)
	}
	return nil
}
