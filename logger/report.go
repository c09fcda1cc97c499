package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type stageStat struct {
	events int64
	units  int64
}

var (
	errorsSource   int64
	errorsWriter   int64
	warnsSource    int64
	warnsWriter    int64
	fetches        int64
	recordsWritten int64
	rowsDropped    int64
	stages         sync.Map // map[string]*stageStat
)

func recordWarn(component string) {
	if strings.Contains(component, "source") {
		atomic.AddInt64(&warnsSource, 1)
	} else if strings.Contains(component, "writer") {
		atomic.AddInt64(&warnsWriter, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "source") {
		atomic.AddInt64(&errorsSource, 1)
	} else if strings.Contains(component, "writer") {
		atomic.AddInt64(&errorsWriter, 1)
	}
}

// IncrementFetch counts one upstream request and the payload bytes it
// returned.
func IncrementFetch(size int) {
	atomic.AddInt64(&fetches, 1)
	recordStage("fetch", size)
}

// IncrementNormalized counts candidate rows produced by a normalizer.
func IncrementNormalized(rows int) {
	recordStage("normalize", rows)
}

// IncrementDropped counts candidate rows discarded by integrity checks.
func IncrementDropped(rows int) {
	atomic.AddInt64(&rowsDropped, int64(rows))
	recordStage("drop", rows)
}

// IncrementObservations counts observations surviving integrity checks.
func IncrementObservations(rows int) {
	recordStage("series", rows)
}

// IncrementWrite counts one persisted output file and its size.
func IncrementWrite(name string, size int) {
	atomic.AddInt64(&recordsWritten, 1)
	recordStage(name, size)
}

// IncrementS3Mirror counts one archive upload and its size.
func IncrementS3Mirror(size int) {
	recordStage("s3_mirror", size)
}

func recordStage(name string, size int) {
	v, _ := stages.LoadOrStore(name, &stageStat{})
	st := v.(*stageStat)
	atomic.AddInt64(&st.events, 1)
	atomic.AddInt64(&st.units, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and stage statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)
	stageData := map[string]map[string]int64{}
	stages.Range(func(k, v any) bool {
		name := k.(string)
		st := v.(*stageStat)
		stageData[name] = map[string]int64{
			"events": atomic.LoadInt64(&st.events),
			"units":  atomic.LoadInt64(&st.units),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	memoryMB := int64(0)
	if memStats != nil {
		memoryMB = int64(memStats.Used) / 1024 / 1024
	}
	diskMB := int64(0)
	if diskStats != nil {
		diskMB = int64(diskStats.Used) / 1024 / 1024
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"errors_source":   atomic.LoadInt64(&errorsSource),
		"errors_writer":   atomic.LoadInt64(&errorsWriter),
		"warns_source":    atomic.LoadInt64(&warnsSource),
		"warns_writer":    atomic.LoadInt64(&warnsWriter),
		"fetches":         atomic.LoadInt64(&fetches),
		"records_written": atomic.LoadInt64(&recordsWritten),
		"rows_dropped":    atomic.LoadInt64(&rowsDropped),
		"goroutines":      runtime.NumGoroutine(),
		"cpu_percent":     cpuPct,
		"memory_mb":       memoryMB,
		"disk_mb":         diskMB,
		"stages":          stageData,
		"net_bytes_sent":  int64(bytesSent),
		"net_bytes_recv":  int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("Macroflow-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("Macroflow-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memoryMB))},
		cwtypes.MetricDatum{MetricName: aws.String("Macroflow-DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskMB))},
		cwtypes.MetricDatum{MetricName: aws.String("Macroflow-SourceErrors"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_source"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Macroflow-WriterErrors"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_writer"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Macroflow-SourceWarns"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_source"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Macroflow-WriterWarns"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_writer"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Macroflow-Fetches"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["fetches"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Macroflow-RecordsWritten"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["records_written"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Macroflow-RowsDropped"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["rows_dropped"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Macroflow-NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("Macroflow-NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, stats := range stageData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("Macroflow-StageEvents"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Stage"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["events"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("Macroflow-StageUnits"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Stage"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["units"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
