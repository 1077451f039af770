package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChatDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sitechat_chat_duration_seconds",
			Help:    "Chat request processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
	)

	ChatTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitechat_chat_total",
			Help: "Total chat requests by outcome",
		},
		[]string{"outcome"},
	)

	NoKnowledgeTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sitechat_no_knowledge_total",
			Help: "Chat requests answered with the fallback message because no knowledge matched",
		},
	)

	PagesCrawled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sitechat_pages_crawled_total",
			Help: "Total pages fetched by crawl runs, including filtered pages",
		},
	)

	PagesIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sitechat_pages_ingested_total",
			Help: "Total pages persisted by ingestion runs",
		},
	)

	ChunksEmbedded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sitechat_chunks_embedded_total",
			Help: "Total knowledge chunks embedded and stored",
		},
	)

	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sitechat_ingest_duration_seconds",
			Help:    "Ingestion run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitechat_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitechat_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(ChatDuration)
	prometheus.MustRegister(ChatTotal)
	prometheus.MustRegister(NoKnowledgeTotal)
	prometheus.MustRegister(PagesCrawled)
	prometheus.MustRegister(PagesIngested)
	prometheus.MustRegister(ChunksEmbedded)
	prometheus.MustRegister(IngestDuration)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
}

func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
