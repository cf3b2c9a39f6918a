package telemetry

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"

	"go.opentelemetry.io/contrib/detectors/aws/ecs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/adlens/marketplace-crawler/config"
	"github.com/google/uuid"
)

var meter metric.Meter

type MetricsProvider struct {
	KafkaConsumerMetrics *KafkaConsumerMetrics
	KafkaProducerMetrics *KafkaProducerMetrics
	AppMetrics           *AppMetrics
	Close                func()
}

type KafkaConsumerMetrics struct {
	SuccessfullyReadMsgCnt func(count int64)
	FailedReadMsgCnt       func(count int64)
}

type KafkaProducerMetrics struct {
	SuccessfullySendMsgCnt func(count int64)
	FailedSendMsgCnt       func(count int64)
}

type AppMetrics struct {
	PageTypeCounter           func(site, pageType string)
	AdsExtractedCounter       func(site string, count int64)
	AdsSkippedCounter         func(site, reason string, count int64)
	DegradedSessionCounter    func(site string)
	FailedProcessedMsgCounter func(count int64)
	SuccessfullyProcessedCnt  func(count int64)
}

func SetupMetrics(ctx context.Context, cfg *config.Config) *MetricsProvider {
	metricsProvider := new(MetricsProvider)
	var meterProvider *sdkmetric.MeterProvider

	if cfg.TelemetrySettings.Enabled {
		r, err := newResource(cfg)
		if err != nil {
			slog.Error("failed to get resource.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		exporter, err := newMetricExporter(ctx, cfg.TelemetrySettings)
		if err != nil {
			slog.Error("failed to get metric exporter.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		meterProvider = newMeterProvider(exporter, *r)
		otel.SetMeterProvider(meterProvider)
	}

	meter = otel.Meter(cfg.ServiceName)
	metricsProvider.Close = func() {
		if meterProvider != nil {
			err := meterProvider.Shutdown(ctx)
			if err != nil {
				slog.Error("failed to shutdown metrics provider.", slog.String("err", err.Error()))
			}
		}
	}

	// Set up kafka consumer metrics
	kafkaConsumerSuccessCounter, err := meter.Int64Counter("monitor-worker.kafka.read.success",
		metric.WithDescription("The number of messages that the kafka consumer successfully processed"),
		metric.WithUnit("{messages}"))
	kafkaConsumerFailCounter, err := meter.Int64Counter("monitor-worker.kafka.read.fail",
		metric.WithDescription("The number of messages that the kafka consumer could not process"),
		metric.WithUnit("{messages}"))
	if err != nil {
		slog.Error("failed to create telemetry counters for kafka consumer.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	metricsProvider.KafkaConsumerMetrics = &KafkaConsumerMetrics{
		SuccessfullyReadMsgCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				kafkaConsumerSuccessCounter.Add(ctx, count)
			}
		},
		FailedReadMsgCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				kafkaConsumerFailCounter.Add(ctx, count)
			}
		},
	}

	// Set up kafka producer metrics
	kafkaProducerSuccessCounter, err := meter.Int64Counter("monitor-worker.kafka.send.success",
		metric.WithDescription("The number of messages that the kafka producer successfully processed"),
		metric.WithUnit("{messages}"))
	kafkaProducerFailCounter, err := meter.Int64Counter("monitor-worker.kafka.send.fail",
		metric.WithDescription("The number of messages that the kafka producer could not process"),
		metric.WithUnit("{messages}"))
	if err != nil {
		slog.Error("failed to create telemetry counters for kafka producer.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	metricsProvider.KafkaProducerMetrics = &KafkaProducerMetrics{
		SuccessfullySendMsgCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				kafkaProducerSuccessCounter.Add(ctx, count)
			}
		},
		FailedSendMsgCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				kafkaProducerFailCounter.Add(ctx, count)
			}
		},
	}

	// Set up worker metrics
	pageTypeCounter, err := meter.Int64Counter("monitor-worker.pages.diagnosed",
		metric.WithDescription("The number of diagnosed pages, by site and page type."),
		metric.WithUnit("{pages}"))
	adsExtractedCounter, err := meter.Int64Counter("monitor-worker.ads.extracted",
		metric.WithDescription("The number of valid ads extracted, by site."),
		metric.WithUnit("{ads}"))
	adsSkippedCounter, err := meter.Int64Counter("monitor-worker.ads.skipped",
		metric.WithDescription("The number of candidate ads excluded, by site and skip reason."),
		metric.WithUnit("{ads}"))
	degradedSessionCounter, err := meter.Int64Counter("monitor-worker.sessions.degraded",
		metric.WithDescription("The number of runs that had to use a session below the health threshold."),
		metric.WithUnit("{runs}"))
	appSuccessCounter, err := meter.Int64Counter("monitor-worker.messages.success",
		metric.WithDescription("The number of run tasks that the worker successfully processed"),
		metric.WithUnit("{messages}"))
	appFailCounter, err := meter.Int64Counter("monitor-worker.messages.fail",
		metric.WithDescription("The number of run tasks that could not be processed. Send to DLQ."),
		metric.WithUnit("{messages}"))
	if err != nil {
		slog.Error("failed to create telemetry counters for worker.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	metricsProvider.AppMetrics = &AppMetrics{
		PageTypeCounter: func(site, pageType string) {
			if cfg.TelemetrySettings.Enabled {
				pageTypeCounter.Add(ctx, 1, metric.WithAttributes(
					attribute.String("site", site), attribute.String("page_type", pageType)))
			}
		},
		AdsExtractedCounter: func(site string, count int64) {
			if cfg.TelemetrySettings.Enabled {
				adsExtractedCounter.Add(ctx, count, metric.WithAttributes(attribute.String("site", site)))
			}
		},
		AdsSkippedCounter: func(site, reason string, count int64) {
			if cfg.TelemetrySettings.Enabled {
				adsSkippedCounter.Add(ctx, count, metric.WithAttributes(
					attribute.String("site", site), attribute.String("reason", reason)))
			}
		},
		DegradedSessionCounter: func(site string) {
			if cfg.TelemetrySettings.Enabled {
				degradedSessionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("site", site)))
			}
		},
		FailedProcessedMsgCounter: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				appFailCounter.Add(ctx, count)
			}
		},
		SuccessfullyProcessedCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				appSuccessCounter.Add(ctx, count)
			}
		},
	}

	return metricsProvider
}

func newResource(cfg *config.Config) (*resource.Resource, error) {
	ecsResourceDetector := ecs.NewResourceDetector()
	ecsResource, err := ecsResourceDetector.Detect(context.Background())
	if err != nil {
		slog.Error("ecs detection failed", slog.String("err", err.Error()))
	}
	mergedResource, err := resource.Merge(ecsResource, resource.Default())
	if err != nil {
		slog.Error("failed to merge resources", slog.String("err", err.Error()))
	}
	keyValue, found := ecsResource.Set().Value("container.id")
	var serviceId string
	if found {
		serviceId = keyValue.AsString()
	} else {
		serviceId = uuid.New().String()
	}
	return resource.Merge(mergedResource,
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Env),
			semconv.ServiceInstanceID(serviceId),
		))
}

func newMetricExporter(ctx context.Context, cfg *config.TelemetryConfig) (sdkmetric.Exporter, error) {
	return otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(cfg.CollectorUrl),
		otlpmetrichttp.WithInsecure())
}

func newMeterProvider(meterExporter sdkmetric.Exporter, resource resource.Resource) *sdkmetric.MeterProvider {
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(meterExporter)),
		sdkmetric.WithResource(&resource),
	)
	return meterProvider
}
