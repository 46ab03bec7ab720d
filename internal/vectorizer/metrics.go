package vectorizer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	piecesProduced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vecxx_pieces_total",
		Help: "Total number of pieces mapped to ids",
	})

	unknownPieces = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vecxx_unknown_pieces_total",
		Help: "Pieces that resolved to the unknown id",
	})

	truncatedSequences = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vecxx_truncated_sequences_total",
		Help: "Sequences cut short by a max length",
	})

	convertDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vecxx_convert_duration_seconds",
		Help:    "Time spent converting one sequence to ids",
		Buckets: []float64{0.00001, 0.000025, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01},
	})
)
