package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
)

var (
	PID process.Process

	memUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_Megabytes",
		Help: "Memory usage in Megabytes",
	})

	cpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "CPU usage in percent",
	})

	InspectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inspections_total",
		Help: "Total number of inspection requests processed",
	})

	InspectionsPassed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inspections_passed_total",
		Help: "Number of inspections that classified the part as conforming",
	})

	InspectionsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inspections_failed_total",
		Help: "Number of inspections that classified the part as non-conforming",
	})

	DetectorCalls = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "detector_calls_total",
		Help: "Number of calls to the external detector service",
	})
)

var srv *http.Server

func prom(port int) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(memUsage, cpuUsage, InspectionsTotal, InspectionsPassed, InspectionsFailed, DetectorCalls)
	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: nil,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("Prometheus server ListenAndServe error: %v\n", err)
		}
	}()
}

func CheckProcessInfo() {
	MemInfo, _ := PID.MemoryInfo()
	var MemMB = MemInfo.RSS / 1024 / 1024
	CPUPercent, _ := PID.CPUPercent()
	CPUPercentFloat := math.Round(CPUPercent*100) / 100
	memUsage.Set(float64(MemMB))
	cpuUsage.Set(CPUPercentFloat)
}

func GotPID() {
	pid := os.Getpid()
	i32Pid := int32(pid)
	PID.Pid = i32Pid
}

func StartMon(port int, ctx context.Context) {
	PID = process.Process{}
	GotPID()
	go prom(port)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
checkPcs:
	for {
		select {
		case <-ctx.Done():
			break checkPcs
		case <-ticker.C:
			CheckProcessInfo()
		}
	}
	if err := srv.Shutdown(ctx); err != nil {
		fmt.Printf("Prometheus server Shutdown error: %v\n", err)
	}
}
