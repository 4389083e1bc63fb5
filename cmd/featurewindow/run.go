package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jacentio/featurewindow/config"
	"github.com/jacentio/featurewindow/internal/logging"
	"github.com/jacentio/featurewindow/internal/rowkey"
	"github.com/jacentio/featurewindow/metrics"
	"github.com/jacentio/featurewindow/reader"
	"github.com/jacentio/featurewindow/schema"
	"github.com/jacentio/featurewindow/store"
	"github.com/jacentio/featurewindow/stream"
	"github.com/jacentio/featurewindow/writer"
)

// app holds what every command builds from the configuration file.
type app struct {
	cfg    *config.Config
	desc   *schema.Descriptor
	logger *zap.Logger
}

func loadApp(path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	desc, err := cfg.Setup()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, desc: desc, logger: logger}, nil
}

func (a *app) store(ctx context.Context) (*store.Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if a.cfg.AWS.Region != "" {
		opts = append(opts, awsconfig.WithRegion(a.cfg.AWS.Region))
	}
	if a.cfg.AWS.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(a.cfg.AWS.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if a.cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(a.cfg.AWS.Endpoint)
		}
	})

	sc, err := a.cfg.Store()
	if err != nil {
		return nil, err
	}
	return store.NewWithLogger(client, sc, a.logger), nil
}

// observer builds the Prometheus handle and, when an address is configured,
// serves it.
func (a *app) observer() metrics.Observer {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	group := a.cfg.Metrics.Group
	if group == "" {
		group = a.cfg.Table
	}
	obs := metrics.NewPrometheus(reg, a.cfg.Metrics.Namespace, group)

	if addr := a.cfg.Metrics.Address; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}
	return obs
}

// backend is the store surface the stream operators drive. *store.Store
// implements it.
type backend interface {
	writer.StoreClient
	reader.Scanner
	Retention() time.Duration
	ColumnFamily() string
}

var _ backend = (*store.Store)(nil)

func (a *app) writer(ctx context.Context, st backend, obs metrics.Observer) (*writer.Writer, error) {
	w := writer.New(st, a.desc,
		writer.WithObserver(obs),
		writer.WithLogger(a.logger),
		writer.WithRetention(st.Retention()),
		writer.WithColumnFamily(st.ColumnFamily()),
	)
	if err := w.Open(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// operator opens the stream operator the configured access kind calls for and
// returns it with the time its records are allowed to take. Scan patterns
// never write.
func (a *app) operator(ctx context.Context, st backend, obs metrics.Observer) (stream.Invoker, time.Duration, error) {
	kind, err := schema.ParseAccessKind(a.cfg.AccessKind)
	if err != nil {
		return nil, 0, err
	}
	if kind == schema.KindWrite {
		w, err := a.writer(ctx, st, obs)
		if err != nil {
			return nil, 0, err
		}
		return w, a.cfg.WriteTimeout, nil
	}

	r := reader.New(st, a.desc,
		reader.WithObserver(obs),
		reader.WithLogger(a.logger),
	)
	if err := r.Open(ctx); err != nil {
		return nil, 0, err
	}
	return r, a.cfg.ReadTimeout, nil
}

func runValidate(_ context.Context, path string, out io.Writer) error {
	a, err := loadApp(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %d input column(s) valid for access pattern %s\n",
		a.cfg.Table, len(a.desc.Index().InputColumns()), a.cfg.AccessKind)
	if a.desc.HasDataColumns() {
		fmt.Fprintf(out, "data columns: %v\n", a.desc.DataColumns())
	}
	return nil
}

func runProvision(ctx context.Context, path string) error {
	a, err := loadApp(path)
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	st, err := a.store(ctx)
	if err != nil {
		return err
	}
	rec := metrics.NewRecorder()
	if _, err := a.writer(ctx, st, metrics.Multi{a.observer(), rec}); err != nil {
		return err
	}
	a.logger.Info("table ready",
		zap.String("table", a.cfg.Table),
		zap.Bool("created", rec.Count(metrics.ProvisionSuccess) > 0),
	)
	return nil
}

// scanLine is one JSON line of the scan command.
type scanLine struct {
	Key   string            `json:"key"`
	Time  time.Time         `json:"time"`
	Cells map[string]string `json:"cells"`
}

func runScan(ctx context.Context, path, entity, window string, until time.Duration, out io.Writer) error {
	a, err := loadApp(path)
	if err != nil {
		return err
	}
	length, err := schema.ParseRetention(window)
	if err != nil {
		return err
	}

	st, err := a.store(ctx)
	if err != nil {
		return err
	}
	if err := st.Initialize(ctx); err != nil {
		return err
	}

	latest := time.Now().Add(-until)
	start, end := rowkey.Window(entity, latest.Add(-length), latest)
	req := store.NewScanSelector(a.desc).Select(start, end)

	enc := json.NewEncoder(out)
	for doc, err := range st.Scan(ctx, req) {
		if err != nil {
			return err
		}
		ts, err := rowkey.Time(doc.Key)
		if err != nil {
			return err
		}
		if err := enc.Encode(scanLine{Key: string(doc.Key), Time: ts.UTC(), Cells: doc.Cells}); err != nil {
			return err
		}
	}
	return nil
}

func runLambda(ctx context.Context, path, source string) error {
	if source != "dynamodb" && source != "kinesis" {
		return fmt.Errorf("unknown event source %q", source)
	}
	a, err := loadApp(path)
	if err != nil {
		return err
	}
	st, err := a.store(ctx)
	if err != nil {
		return err
	}
	op, timeout, err := a.operator(ctx, st, a.observer())
	if err != nil {
		return err
	}

	h := stream.NewHandler(op, a.desc.Index(),
		stream.WithTimeout(timeout),
		stream.WithLogger(a.logger),
	)
	if source == "kinesis" {
		lambda.Start(h.HandleKinesisEvent)
		return nil
	}
	lambda.Start(h.HandleDynamoDBEvent)
	return nil
}
