package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MediaMetrics records outcomes of media save commits and storage cleanup.
type MediaMetrics struct {
	saveDuration  *prometheus.HistogramVec
	saveSuccess   *prometheus.CounterVec
	saveFailure   *prometheus.CounterVec
	uploadedBytes *prometheus.CounterVec
	deleteResults *prometheus.CounterVec
	orphanedBlobs prometheus.Counter
}

// NewMediaMetrics registers the media metrics on the provided registerer.
func NewMediaMetrics(reg prometheus.Registerer) *MediaMetrics {
	if reg == nil {
		return &MediaMetrics{}
	}
	saveDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "media_save_duration_seconds",
		Help:    "Duration of media collection saves in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	saveSuccess := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "media_save_success",
		Help: "Committed media collection saves.",
	}, []string{"kind"})
	saveFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "media_save_failure",
		Help: "Media collection saves that failed or were canceled.",
	}, []string{"kind"})
	uploadedBytes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "media_uploaded_bytes_total",
		Help: "Bytes uploaded to blob storage.",
	}, []string{"kind"})
	deleteResults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "media_blob_delete_results_total",
		Help: "Blob cleanup attempts by outcome.",
	}, []string{"outcome"})
	orphanedBlobs := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_orphaned_blobs_total",
		Help: "Uploaded blobs left behind by failed commits.",
	})
	reg.MustRegister(saveDuration, saveSuccess, saveFailure, uploadedBytes, deleteResults, orphanedBlobs)
	return &MediaMetrics{
		saveDuration:  saveDuration,
		saveSuccess:   saveSuccess,
		saveFailure:   saveFailure,
		uploadedBytes: uploadedBytes,
		deleteResults: deleteResults,
		orphanedBlobs: orphanedBlobs,
	}
}

// ObserveSaveDuration records the end-to-end save duration for a kind.
func (m *MediaMetrics) ObserveSaveDuration(kind string, duration time.Duration) {
	if m == nil || m.saveDuration == nil {
		return
	}
	m.saveDuration.WithLabelValues(normalizeLabel(kind)).Observe(duration.Seconds())
}

// IncSaveSuccess increments the committed save counter for a kind.
func (m *MediaMetrics) IncSaveSuccess(kind string) {
	if m == nil || m.saveSuccess == nil {
		return
	}
	m.saveSuccess.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncSaveFailure increments the failed save counter for a kind.
func (m *MediaMetrics) IncSaveFailure(kind string) {
	if m == nil || m.saveFailure == nil {
		return
	}
	m.saveFailure.WithLabelValues(normalizeLabel(kind)).Inc()
}

// AddUploadedBytes records bytes transferred to blob storage.
func (m *MediaMetrics) AddUploadedBytes(kind string, n int64) {
	if m == nil || m.uploadedBytes == nil || n <= 0 {
		return
	}
	m.uploadedBytes.WithLabelValues(normalizeLabel(kind)).Add(float64(n))
}

// IncDeleteResult counts a blob cleanup attempt by outcome (ok, not_found, failed).
func (m *MediaMetrics) IncDeleteResult(outcome string) {
	if m == nil || m.deleteResults == nil {
		return
	}
	m.deleteResults.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncOrphanedBlobs counts blobs stranded by a commit that failed after upload.
func (m *MediaMetrics) IncOrphanedBlobs(n int) {
	if m == nil || m.orphanedBlobs == nil || n <= 0 {
		return
	}
	m.orphanedBlobs.Add(float64(n))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
