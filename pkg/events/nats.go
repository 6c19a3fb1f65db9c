package events

import (
    "context"
    "time"

    "github.com/nats-io/nats.go"
    "go.uber.org/zap"

    "buildnode/pkg/protocol/codec"
)

// Publisher is the subset of *nats.Conn the sink needs.
type Publisher interface {
    Publish(subject string, data []byte) error
}

// NATSSink publishes JSON events on <subject>.<kind>.
type NATSSink struct {
    pub     Publisher
    subject string
    json    codec.Codec
    log     *zap.Logger
}

func NewNATSSink(pub Publisher, subject string) *NATSSink {
    return &NATSSink{pub: pub, subject: subject, json: codec.MustRegistry().Get(codec.ContentJSON), log: zap.L().Named("events")}
}

func (s *NATSSink) Publish(_ context.Context, e Event) {
    b, err := s.json.Marshal(e)
    if err != nil {
        s.log.Warn("encode event", zap.Error(err))
        return
    }
    if err := s.pub.Publish(s.subject+"."+string(e.Kind), b); err != nil {
        s.log.Warn("publish event", zap.String("event", string(e.Kind)), zap.Error(err))
    }
}

// ConnectNATS dials url with reconnects enabled. Close the returned conn
// with Drain when done.
func ConnectNATS(url, name string) (*nats.Conn, error) {
    log := zap.L().Named("events")
    return nats.Connect(url,
        nats.Name(name),
        nats.MaxReconnects(-1),
        nats.ReconnectWait(2*time.Second),
        nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
            if err != nil { log.Warn("nats disconnected", zap.Error(err)) }
        }),
        nats.ReconnectHandler(func(nc *nats.Conn) { log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl())) }),
    )
}
