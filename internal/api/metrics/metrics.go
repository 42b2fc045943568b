// Package metrics defines and registers all custom Prometheus metrics for the
// voice verification API. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default Prometheus registry on package
// initialisation through promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voiceid"

// ── Verification metrics ──────────────────────────────────────────────────────

// VerificationsTotal counts finished verifications.
// Labels:
//   - flow: "plain" or "secure"
//   - outcome: "verified", "not_verified", "rejected" or "error"
var VerificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verifications_total",
		Help:      "Total number of verification requests, by flow and outcome.",
	},
	[]string{"flow", "outcome"},
)

// VerificationRejectionsTotal counts REJECTED verdicts.
// Label:
//   - reason: verdict reason code (e.g. "challenge_expired", "unintelligible_audio")
var VerificationRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verification_rejections_total",
		Help:      "Total number of verifications short-circuited to REJECTED, by reason.",
	},
	[]string{"reason"},
)

// SimilarityScore observes the speaker similarity of scored verifications.
var SimilarityScore = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "similarity_score",
		Help:      "Distribution of speaker similarity scores.",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	},
	[]string{"flow"},
)

// ── Challenge metrics ─────────────────────────────────────────────────────────

// ChallengesIssuedTotal counts issued challenges.
var ChallengesIssuedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "challenges_issued_total",
		Help:      "Total number of challenge phrases issued.",
	},
)

// ── Enrollment metrics ────────────────────────────────────────────────────────

// EnrollmentsTotal counts enrollment attempts.
// Label:
//   - result: "success", "invalid" or "error"
var EnrollmentsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enrollments_total",
		Help:      "Total number of enrollment requests, by result.",
	},
	[]string{"result"},
)

// ── Inference metrics ─────────────────────────────────────────────────────────

// InferenceQueueDepth tracks the number of jobs waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var InferenceQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "inference_queue_depth",
		Help:      "Current number of jobs pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// InferenceDuration measures one job from dequeue to completion.
// Label:
//   - result: "ok" or "error"
var InferenceDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "inference_duration_seconds",
		Help:      "Duration of feature extraction jobs on the inference workers.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"result"},
)
