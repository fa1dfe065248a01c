package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	MessagesProcessed atomic.Int64
	MalformedMessages atomic.Int64
	RecordsBuilt      atomic.Int64
	RecordsStored     atomic.Int64
	MaintenanceSent   atomic.Int64
	AdSent            atomic.Int64
	AnomaliesDetected atomic.Int64
	ErrorsEncountered atomic.Int64
	SnapshotsEvicted  atomic.Int64
	BatchesDispatched atomic.Int64
)

// Snapshot returns the counters as a map for the status endpoint.
func Snapshot() map[string]int64 {
	return map[string]int64{
		"messages_processed": MessagesProcessed.Load(),
		"malformed_messages": MalformedMessages.Load(),
		"records_built":      RecordsBuilt.Load(),
		"records_stored":     RecordsStored.Load(),
		"maintenance_sent":   MaintenanceSent.Load(),
		"ad_sent":            AdSent.Load(),
		"anomalies_detected": AnomaliesDetected.Load(),
		"errors_encountered": ErrorsEncountered.Load(),
		"snapshots_evicted":  SnapshotsEvicted.Load(),
		"batches_dispatched": BatchesDispatched.Load(),
	}
}

func HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "processing_messages_processed_total %d\n", MessagesProcessed.Load())
	fmt.Fprintf(w, "processing_malformed_messages_total %d\n", MalformedMessages.Load())
	fmt.Fprintf(w, "processing_records_built_total %d\n", RecordsBuilt.Load())
	fmt.Fprintf(w, "processing_records_stored_total %d\n", RecordsStored.Load())
	fmt.Fprintf(w, "processing_maintenance_sent_total %d\n", MaintenanceSent.Load())
	fmt.Fprintf(w, "processing_ad_sent_total %d\n", AdSent.Load())
	fmt.Fprintf(w, "processing_anomalies_detected_total %d\n", AnomaliesDetected.Load())
	fmt.Fprintf(w, "processing_errors_encountered_total %d\n", ErrorsEncountered.Load())
	fmt.Fprintf(w, "processing_snapshots_evicted_total %d\n", SnapshotsEvicted.Load())
	fmt.Fprintf(w, "processing_batches_dispatched_total %d\n", BatchesDispatched.Load())
}
