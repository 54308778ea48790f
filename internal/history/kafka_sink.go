package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/segmentio/kafka-go"

	"github.com/mmizutani/wandbox/pkg/logger"
)

// KafkaConfig configures the producer and in-process consumer.
type KafkaConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	MySQLDSN      string
	QueueSize     int
	FlushTimeout  time.Duration
}

// producer is the subset of *kafka.Writer that drainProducer depends
// on, narrow enough that a test can inject a fake standing in for an
// unreachable broker without opening a socket.
type producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes RunRecords to Kafka from a buffered channel
// drained by a dedicated goroutine, decoupling Record from any network
// I/O. A second goroutine in the same process consumes the topic back
// out and upserts rows into MySQL — an external consumer was judged an
// unnecessary moving part for what this sink needs to do.
type KafkaSink struct {
	writer producer
	reader *kafka.Reader
	db     *sql.DB

	queue  chan RunRecord
	done   chan struct{}
	cancel context.CancelFunc
}

// NewKafkaSink dials MySQL, builds the Kafka writer/reader pair, and
// starts the producer-drain and consumer-upsert goroutines.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 100 * time.Millisecond,
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.ConsumerGroup,
	})

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &KafkaSink{
		writer: writer,
		reader: reader,
		db:     db,
		queue:  make(chan RunRecord, queueSize),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go s.drainProducer(ctx, cfg.FlushTimeout)
	go s.consumeAndUpsert(ctx)

	return s, nil
}

// Record enqueues record without blocking; if the queue is full the
// record is dropped and logged.
func (s *KafkaSink) Record(record RunRecord) {
	select {
	case s.queue <- record:
	default:
		logger.Warnf(context.Background(), "history queue full, dropping record for %s", record.SubmissionID)
	}
}

func (s *KafkaSink) drainProducer(ctx context.Context, flushTimeout time.Duration) {
	if flushTimeout <= 0 {
		flushTimeout = 3 * time.Second
	}
	for {
		select {
		case <-ctx.Done():
			close(s.done)
			return
		case rec := <-s.queue:
			payload, err := json.Marshal(rec)
			if err != nil {
				logger.Errorf(ctx, "marshal run record: %v", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, flushTimeout)
			err = s.writer.WriteMessages(writeCtx, kafka.Message{Key: []byte(rec.SubmissionID), Value: payload})
			cancel()
			if err != nil {
				logger.Warnf(ctx, "publish run record %s: %v", rec.SubmissionID, err)
			}
		}
	}
}

func (s *KafkaSink) consumeAndUpsert(ctx context.Context) {
	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warnf(ctx, "read history message: %v", err)
			continue
		}
		var rec RunRecord
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			logger.Errorf(ctx, "unmarshal run record: %v", err)
			continue
		}
		if err := s.upsert(ctx, rec); err != nil {
			logger.Warnf(ctx, "upsert run record %s: %v", rec.SubmissionID, err)
		}
	}
}

func (s *KafkaSink) upsert(ctx context.Context, rec RunRecord) error {
	var signalName sql.NullString
	if rec.SignalName != nil {
		signalName = sql.NullString{String: *rec.SignalName, Valid: true}
	}
	var exitCode sql.NullInt64
	if rec.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*rec.ExitCode), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_history
			(submission_id, compiler_name, started_at, finished_at, exit_code, signal_name, stdout_bytes, stderr_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			finished_at = VALUES(finished_at),
			exit_code = VALUES(exit_code),
			signal_name = VALUES(signal_name),
			stdout_bytes = VALUES(stdout_bytes),
			stderr_bytes = VALUES(stderr_bytes)`,
		rec.SubmissionID, rec.CompilerName, rec.StartedAt, rec.FinishedAt,
		exitCode, signalName, rec.StdoutBytes, rec.StderrBytes,
	)
	return err
}

// Close stops the background goroutines and releases the writer,
// reader, and database connection.
func (s *KafkaSink) Close() error {
	s.cancel()
	<-s.done
	_ = s.writer.Close()
	_ = s.reader.Close()
	return s.db.Close()
}

var _ Sink = (*KafkaSink)(nil)
