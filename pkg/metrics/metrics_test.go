package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		Convey("When creating a manager with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithMetricPrefix("unit"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithRegistry(registry),
			)
			manager.samplesIngested.Add(2)

			Convey("Then metric names carry namespace, subsystem and prefix", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_namespace_test_subsystem_unit_samples_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When empty or invalid option values are passed", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithHistogramBuckets(nil),
				WithConstLabels(nil),
				WithRegistry(nil),
				WithRegistry(registry),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "gaitlog")
				So(manager.subsystem, ShouldEqual, "ingest")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
				So(manager.constLabels, ShouldBeEmpty)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When ingest outcomes are recorded", func() {
			createdBefore := testutil.ToFloat64(globalManager.batchesIngested.WithLabelValues("created"))
			samplesBefore := testutil.ToFloat64(globalManager.samplesIngested)
			dupBefore := testutil.ToFloat64(globalManager.batchesDuplicate)
			conflictsBefore := testutil.ToFloat64(globalManager.mergeConflicts)

			RecordBatchIngested("created", 500)
			RecordBatchIngested("created", 12)
			RecordBatchDuplicate()
			RecordMergeConflict()
			RecordMergeAttempts(2)

			Convey("Then counters advance by the recorded amounts", func() {
				So(testutil.ToFloat64(globalManager.batchesIngested.WithLabelValues("created")), ShouldEqual, createdBefore+2)
				So(testutil.ToFloat64(globalManager.samplesIngested), ShouldEqual, samplesBefore+512)
				So(testutil.ToFloat64(globalManager.batchesDuplicate), ShouldEqual, dupBefore+1)
				So(testutil.ToFloat64(globalManager.mergeConflicts), ShouldEqual, conflictsBefore+1)
			})
		})

		Convey("When gauges are updated", func() {
			UpdateSessionsTotal(7)
			UpdateSystemGoroutineCount(42)

			Convey("Then they hold the last value", func() {
				So(testutil.ToFloat64(globalManager.sessionsTotal), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.systemGoroutineCount), ShouldEqual, 42)
			})
		})

		Convey("When store, http and transport metrics are recorded", func() {
			So(func() {
				RecordStoreLatency("memory", "get", 0.2)
				RecordStoreError("sqlite", "put")
				RecordBlobBytes("columnar", 4096)
				RecordHTTPRequest("items", "POST", "200")
				RecordHTTPRequestDuration("items", "POST", "200", 3)
				RecordErrorByEndpoint("items", "POST", "client_error")
				RecordMQTTMessage("ok")
				UpdateQueueSize(3)
				RecordQueueEnqueue("accepted")
				RecordWorkerLatency(1.5)
				RecordWorkerFailure()
				RecordValidationError()
				RecordSessionDeleted()
				RecordAnalysisDuration(12)
				RecordAnalysisFailure()
				UpdateSystemMemoryUsage(1 << 20)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)

			Convey("Then they are exposed by the custom registry", func() {
				families, err := GetRegistry().Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				joined := strings.Join(names, ",")
				So(joined, ShouldContainSubstring, "gaitlog_ingest_store_latency_milliseconds")
				So(joined, ShouldContainSubstring, "gaitlog_ingest_mqtt_messages_total")
				So(joined, ShouldContainSubstring, "gaitlog_ingest_queue_enqueues_total")
			})
		})
	})
}
