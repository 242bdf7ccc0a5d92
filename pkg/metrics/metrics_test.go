package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
		. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("risk"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then collectors are registered under the namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.decisions.WithLabelValues("HIGH").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_risk_decisions_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When options receive empty values", func() {
			manager := NewManager(WithNamespace(""), WithHistogramBuckets(nil), WithPrometheusRegistry(registry))

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "slarisk")
				So(len(manager.histogramBuckets), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording decisions", func() {
			before := value(globalManager.decisions.WithLabelValues("MEDIUM"))
			RecordDecision("MEDIUM")
			RecordDecision("MEDIUM")

			Convey("Then the band counter grows", func() {
				So(value(globalManager.decisions.WithLabelValues("MEDIUM")), ShouldEqual, before+2)
			})
		})

		Convey("When recording dropped events with a zero count", func() {
			before := value(globalManager.eventsDropped.WithLabelValues("missing_task_id"))
			RecordEventsDropped("missing_task_id", 0)
			RecordEventsDropped("missing_task_id", 3)

			Convey("Then only the positive count is added", func() {
				So(value(globalManager.eventsDropped.WithLabelValues("missing_task_id")), ShouldEqual, before+3)
			})
		})

		Convey("When publishing gauges", func() {
			UpdateStoreEntries(7)
			UpdateQueueCapacity(100)
			UpdateTrainingResult(0.81, 80, 20, 4.5)

			Convey("Then the gauges hold the last value", func() {
				So(value(globalManager.storeEntries), ShouldEqual, 7)
				So(value(globalManager.queueCapacity), ShouldEqual, 100)
				So(value(globalManager.trainingAUC), ShouldEqual, 0.81)
				So(value(globalManager.trainingRows.WithLabelValues("validation")), ShouldEqual, 20)
			})
		})

		Convey("When every helper is called", func() {
			So(func() {
				RecordEventIngested("PICKUP")
				RecordEventDuplicate()
				RecordTaskFinalized()
				RecordStoreUpdate("memory")
				RecordStaleFields(2)
				RecordStoreEviction("ttl")
				RecordStoreLatency("update", 0.2)
				UpdateTrackerOpenTasks(3)
				RecordPrediction(0.4)
				RecordPredictionError("malformed_feature")
				RecordTrainingRun("success")
				RecordHTTPRequest("/score", "POST", "200", 1.5)
				UpdateQueueSize(4)
				RecordQueueRejected("full")
				UpdateWorkerCount(2)
				RecordWorkerLatency(0.3)
				RecordWorkerError()
			}, ShouldNotPanic)
		})
	})
}

func TestRegistryExposition(t *testing.T) {
	Convey("Given the custom registry served over HTTP", t, func() {
		RecordDecision("HIGH")
		h := promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		Convey("Then the exposition contains domain metrics but no Go runtime metrics", func() {
			body := rec.Body.String()
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(body, ShouldContainSubstring, "slarisk_decisions_total")
			So(strings.Contains(body, "go_goroutines"), ShouldBeFalse)
		})
	})
}

func value(c prometheus.Metric) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return -1
	}
	switch {
	case m.Counter != nil:
		return m.GetCounter().GetValue()
	case m.Gauge != nil:
		return m.GetGauge().GetValue()
	}
	return 0
}
