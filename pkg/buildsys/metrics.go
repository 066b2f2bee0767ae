package buildsys

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "assets_task_duration_seconds",
	Help:    "Duration of task runs",
	Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
}, []string{"task", "status"})

func observeTask(name string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}

	taskDuration.WithLabelValues(name, status).Observe(elapsed.Seconds())
}
