package store

import (
	"encoding/csv"
	"encoding/gob"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/chzchzchz/sniffrx/dsp"
	"github.com/chzchzchz/sniffrx/sniffer"
)

// Archive is a saved message log and the configuration that produced it.
type Archive struct {
	Date     time.Time
	Config   dsp.Config
	Messages []sniffer.Message
}

func SaveLog(fpath string, a *Archive) error {
	f, err := os.OpenFile(fpath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(a); err != nil {
		f.Close()
		return errors.Wrapf(err, "encode %s", fpath)
	}
	return f.Close()
}

func LoadLog(fpath string) (*Archive, error) {
	f, err := os.Open(fpath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	a := &Archive{}
	if err := gob.NewDecoder(f).Decode(a); err != nil {
		return nil, errors.Wrapf(err, "decode %s", fpath)
	}
	return a, nil
}

// ExportCSV writes msgs as ';' separated start, end, pause, raw bits and
// the bits rendered by f, preceded by a '#' header line.
func ExportCSV(w io.Writer, msgs []sniffer.Message, f sniffer.Formatter) error {
	if _, err := io.WriteString(w, "# start;end;pause;bits;view\n"); err != nil {
		return err
	}
	csvw := csv.NewWriter(w)
	csvw.Comma = ';'
	for _, m := range msgs {
		rec := []string{
			strconv.FormatInt(m.Start, 10),
			strconv.FormatInt(m.End, 10),
			strconv.FormatInt(m.Pause, 10),
			sniffer.Bits.Format(m),
			f.Format(m),
		}
		if err := csvw.Write(rec); err != nil {
			return err
		}
	}
	csvw.Flush()
	return csvw.Error()
}

// ImportCSV reads messages written by ExportCSV. The view column is
// ignored; bits come from the raw column.
func ImportCSV(r io.Reader) ([]sniffer.Message, error) {
	csvr := csv.NewReader(r)
	csvr.Comma, csvr.Comment, csvr.FieldsPerRecord = ';', '#', 5
	records, err := csvr.ReadAll()
	if err != nil {
		return nil, err
	}
	msgs := make([]sniffer.Message, 0, len(records))
	for i, v := range records {
		var m sniffer.Message
		if m.Start, err = strconv.ParseInt(v[0], 10, 64); err != nil {
			return nil, errors.Wrapf(err, "record %d", i)
		}
		if m.End, err = strconv.ParseInt(v[1], 10, 64); err != nil {
			return nil, errors.Wrapf(err, "record %d", i)
		}
		if m.Pause, err = strconv.ParseInt(v[2], 10, 64); err != nil {
			return nil, errors.Wrapf(err, "record %d", i)
		}
		if m.Bits, err = parseBitColumn(v[3]); err != nil {
			return nil, errors.Wrapf(err, "record %d", i)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func parseBitColumn(s string) ([]uint8, error) {
	if strings.Trim(s, "01") != "" {
		return nil, errors.Errorf("bits %q are not binary", s)
	}
	return dsp.ParseBits(s), nil
}
