package logger

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

var cwClient *cloudwatch.Client
var cwNamespace = "OptionFlow"
var cwDashboard = "OptionFlow"

// Per-component warn/error counters, fed by Entry.Warn/Entry.Error and
// published by the periodic report.
var (
	warnCounts  sync.Map // map[string]*int64
	errorCounts sync.Map // map[string]*int64
)

func recordWarn(component string) {
	v, _ := warnCounts.LoadOrStore(component, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

func recordError(component string) {
	v, _ := errorCounts.LoadOrStore(component, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

// InitCloudWatch initialises the CloudWatch client using the provided region
// and namespace. If region is empty it falls back to the AWS_REGION
// environment variable. When the client cannot be created the function logs
// a warning and metrics publishing remains disabled.
func InitCloudWatch(region, namespace, dashboard string) {
	log := GetLogger().WithComponent("cloudwatch")

	if region == "" {
		region = os.Getenv("AWS_REGION")
	}

	ctx := context.Background()
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		return
	}

	cwClient = cloudwatch.NewFromConfig(cfg)

	if namespace != "" {
		cwNamespace = namespace
	}
	if dashboard != "" {
		cwDashboard = dashboard
	}

	log.WithFields(Fields{"region": region, "namespace": cwNamespace}).Info("initialized CloudWatch client")
}

// publishMetrics sends the provided metric data to CloudWatch when the
// client has been initialised.
func publishMetrics(ctx context.Context, data []cwtypes.MetricDatum) {
	log := GetLogger().WithComponent("cloudwatch")
	if cwClient == nil {
		log.Debug("CloudWatch client not initialized; skipping metric publish")
		return
	}

	if len(data) == 0 {
		return
	}

	if _, err := cwClient.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(cwNamespace),
		MetricData: data,
	}); err != nil {
		log.WithError(err).Warn("failed to publish CloudWatch metrics")
		return
	}

	names := make([]string, 0, len(data))
	for _, datum := range data {
		if datum.MetricName != nil {
			names = append(names, *datum.MetricName)
		}
	}
	log.WithField("metrics", strings.Join(names, ",")).Debug("published metrics to CloudWatch")
}

// StartReport begins periodic logging of the warn/error counters and, when
// configured, publishes them to CloudWatch.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	fields := Fields{}
	var data []cwtypes.MetricDatum

	collect := func(m *sync.Map, kind string) {
		m.Range(func(k, v any) bool {
			component := k.(string)
			count := atomic.LoadInt64(v.(*int64))
			fields[kind+"_"+component] = count
			data = append(data, cwtypes.MetricDatum{
				MetricName: aws.String(kind),
				Dimensions: []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(component)}},
				Unit:       cwtypes.StandardUnitCount,
				Value:      aws.Float64(float64(count)),
			})
			return true
		})
	}
	collect(&warnCounts, "warns")
	collect(&errorCounts, "errors")

	fields["dashboard"] = cwDashboard
	log.WithComponent("report").WithFields(fields).Info("runtime report")
	publishMetrics(ctx, data)
}
