package encoder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	layerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bowyer_encoder_layer_duration_seconds",
		Help:    "Wall time of one transformer layer forward pass",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	}, []string{"layer"})

	forwardDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bowyer_encoder_forward_duration_seconds",
		Help:    "Wall time of a full encoder forward pass",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	forwardTokens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bowyer_encoder_tokens_total",
		Help: "Tokens pushed through the encoder",
	})
)
