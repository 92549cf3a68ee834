package store

import (
	"context"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/pkg/errors"

	"github.com/chzchzchz/sniffrx/sniffer"
)

const messagesTable = `
CREATE TABLE IF NOT EXISTS sniffed_messages (
	timestamp     DateTime64(3),
	session       String,
	start_sample  Int64,
	end_sample    Int64,
	pause_samples Int64,
	bits          String,
	hex           String
) ENGINE = MergeTree()
ORDER BY (session, start_sample)
`

const insertTimeout = 10 * time.Second

const insertMessage = `
INSERT INTO sniffed_messages (timestamp, session, start_sample, end_sample, pause_samples, bits, hex)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

// ClickHouseSink inserts each message as a row tagged with the session
// that opened the sink.
type ClickHouseSink struct {
	conn    driver.Conn
	session string
}

func NewClickHouseSink(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseSink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to ClickHouse")
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to ping ClickHouse")
	}
	if err := conn.Exec(ctx, messagesTable); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to create table")
	}
	s := &ClickHouseSink{conn: conn, session: time.Now().UTC().Format("20060102T150405.000")}
	log.Printf("[clickhouse] connected to %s, session %s", cfg.Addr, s.session)
	return s, nil
}

type messageRow struct {
	Timestamp time.Time
	Session   string
	Start     int64
	End       int64
	Pause     int64
	Bits      string
	Hex       string
}

func newMessageRow(session string, m sniffer.Message, now time.Time) messageRow {
	return messageRow{
		Timestamp: now,
		Session:   session,
		Start:     m.Start,
		End:       m.End,
		Pause:     m.Pause,
		Bits:      sniffer.Bits.Format(m),
		Hex:       sniffer.Hex.Format(m),
	}
}

func (r messageRow) args() []any {
	return []any{r.Timestamp, r.Session, r.Start, r.End, r.Pause, r.Bits, r.Hex}
}

func (s *ClickHouseSink) WriteMessage(m sniffer.Message) error {
	row := newMessageRow(s.session, m, time.Now())
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()
	if err := s.conn.Exec(ctx, insertMessage, row.args()...); err != nil {
		return errors.Wrap(err, "failed to insert message")
	}
	return nil
}

// WriteLog inserts a whole log in one batch.
func (s *ClickHouseSink) WriteLog(ctx context.Context, msgs []sniffer.Message) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO sniffed_messages")
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}
	now := time.Now()
	for _, m := range msgs {
		if err := batch.Append(newMessageRow(s.session, m, now).args()...); err != nil {
			return errors.Wrapf(err, "append message at sample %d", m.Start)
		}
	}
	return errors.Wrap(batch.Send(), "failed to send batch")
}

func (s *ClickHouseSink) Close() error { return s.conn.Close() }
