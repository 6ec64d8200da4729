package recommendation

import "github.com/prometheus/client_golang/prometheus"

var (
	generatedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "recommendations",
		Name:      "generated_total",
		Help:      "Number of recommendations generated and stored, labeled by generator.",
	}, []string{"generator"})

	generationErrorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "recommendations",
		Name:      "generation_errors_total",
		Help:      "Number of recommendation generation failures.",
	})

	fallbackCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "recommendations",
		Name:      "fallbacks_total",
		Help:      "Number of times the AI generator fell back to rule-based advice.",
	})
)

func init() {
	prometheus.MustRegister(generatedCounter, generationErrorCounter, fallbackCounter)
}

func recordGenerated(generator string) {
	if generator == "" {
		generator = "unknown"
	}
	generatedCounter.WithLabelValues(generator).Inc()
}

func recordGenerationError() {
	generationErrorCounter.Inc()
}

func recordFallback() {
	fallbackCounter.Inc()
}
