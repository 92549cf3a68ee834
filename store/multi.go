package store

import (
	"github.com/pkg/errors"

	"github.com/chzchzchz/sniffrx/sniffer"
)

// MultiSink writes each message to every sink, in order. A failing sink
// does not keep the others from receiving the message.
type MultiSink []sniffer.Sink

func (ms MultiSink) WriteMessage(m sniffer.Message) (err error) {
	for _, s := range ms {
		if werr := s.WriteMessage(m); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

func (ms MultiSink) Close() (err error) {
	for _, s := range ms {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %T", s)
		}
	}
	return err
}
