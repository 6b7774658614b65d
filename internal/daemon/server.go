package daemon

import (
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/leonardcser/kvnode/internal/logger"
	"github.com/leonardcser/kvnode/internal/metrics"
	"github.com/leonardcser/kvnode/internal/storage"
)

// Serve accepts connections on l and answers requests against store until l
// is closed. m may be nil.
func Serve(l net.Listener, store storage.Storage, m *metrics.Metrics) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Warnf("accept: %v", err)
			continue
		}
		go handleConn(conn, store, m)
	}
}

func handleConn(conn net.Conn, store storage.Storage, m *metrics.Metrics) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		start := time.Now()
		resp, err := handle(store, req)
		m.Observe(opLabel(req.Op, err), start, err)
		if err != nil {
			resp = failure(err)
		}
		if err := enc.Encode(resp); err != nil {
			logger.Warnf("write response: %v", err)
			return
		}
	}
}

func handle(store storage.Storage, req Request) (Response, error) {
	switch req.Op {
	case OpGet:
		v, err := store.Get(req.Key)
		if err != nil {
			return Response{}, err
		}
		return Response{OK: true, Value: v}, nil
	case OpSet:
		if err := store.SetWithExpire(req.Key, req.Value, storage.MillisToDuration(req.TTLMillis)); err != nil {
			return Response{}, err
		}
		return Response{OK: true}, nil
	case OpDelete:
		existed, err := store.Delete(req.Key)
		if err != nil {
			return Response{}, err
		}
		return Response{OK: true, Found: existed}, nil
	case OpHas:
		ok, err := store.Has(req.Key)
		if err != nil {
			return Response{}, err
		}
		return Response{OK: true, Found: ok}, nil
	case OpKeys:
		keys, err := store.Keys()
		if err != nil {
			return Response{}, err
		}
		return Response{OK: true, Keys: keys}, nil
	case OpClear:
		if err := store.Clear(); err != nil {
			return Response{}, err
		}
		return Response{OK: true}, nil
	default:
		return Response{}, errUnknownOp
	}
}

var errUnknownOp = errors.New("unknown op")

// opLabel keeps arbitrary client input out of metric labels.
func opLabel(op string, err error) string {
	if err == errUnknownOp {
		return "unknown"
	}
	return op
}

func failure(err error) Response {
	if metrics.Result(err) == metrics.ResultError && err != errUnknownOp {
		logger.Errorf("store: %v", err)
	}
	return Response{OK: false, Error: err.Error()}
}
