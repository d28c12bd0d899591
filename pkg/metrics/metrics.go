// Package metrics instruments the transaction coordinator with Prometheus
// metrics, grounded on distribution-distribution's own
// github.com/docker/go-metrics + github.com/prometheus/client_golang
// pairing (metrics.NewNamespace registered against the default Prometheus
// registry) rather than using either library directly.
package metrics

import "github.com/docker/go-metrics"

const namespacePrefix = "dsgsync"

// CoordinatorNamespace is the namespace under which every Coordinator
// metric below is registered.
var CoordinatorNamespace = metrics.NewNamespace(namespacePrefix, "coordinator", nil)

var (
	// TransfersTotal counts files transferred, labeled by direction
	// ("upload"/"download").
	TransfersTotal = CoordinatorNamespace.NewLabeledCounter("transfers_total", "Total number of files transferred", "direction")

	// BytesTransferredTotal counts bytes transferred, labeled by direction.
	BytesTransferredTotal = CoordinatorNamespace.NewLabeledCounter("bytes_transferred_total", "Total bytes transferred", "direction")

	// LockWaitSeconds observes how long Execute waited to acquire the
	// distributed lock.
	LockWaitSeconds = CoordinatorNamespace.NewLabeledTimer("lock_wait_seconds", "Time spent waiting to acquire the distributed lock", "operation")

	// ConflictsTotal counts sync plans that surfaced at least one
	// unresolved conflict.
	ConflictsTotal = CoordinatorNamespace.NewCounter("conflicts_total", "Total number of sync plans blocked by a conflict")

	// CommitsTotal counts successful transaction commits, labeled by
	// operation ("init"/"clone"/"sync").
	CommitsTotal = CoordinatorNamespace.NewLabeledCounter("commits_total", "Total number of committed transactions", "operation")

	// RecoverableFailuresTotal counts client-commit failures that occurred
	// after a successful remote commit (spec §7's recoverable case).
	RecoverableFailuresTotal = CoordinatorNamespace.NewCounter("recoverable_failures_total", "Total number of client commits that failed after a successful remote commit")
)

func init() {
	metrics.Register(CoordinatorNamespace)
}
