package server

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/johbar/ocr-sample/internal/recognizer"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
)

// RegisterNatsService adds the endpoints ocr.recognize and ocr.langs to nc.
func (s *Server) RegisterNatsService(nc *nats.Conn) (micro.Service, error) {
	svc, err := micro.AddService(nc, micro.Config{
		Name:        "ocr",
		Version:     "1.0.0",
		Description: "Recognizes text in JPEG, PNG and BMP images",
	})
	if err != nil {
		return nil, err
	}
	g := svc.AddGroup("ocr", micro.WithGroupQueueGroup("ocr-sample"))
	if err := g.AddEndpoint("recognize", micro.HandlerFunc(s.handleRecognize)); err != nil {
		return nil, err
	}
	if err := g.AddEndpoint("langs", micro.HandlerFunc(s.handleLangs)); err != nil {
		return nil, err
	}
	return svc, nil
}

// handleRecognize replies with the recognized text. Failures are reported
// with the error kind as code.
func (s *Server) handleRecognize(req micro.Request) {
	var params RequestParams
	if err := json.Unmarshal(req.Data(), &params); err != nil {
		req.Error("invalid_params", err.Error(), nil)
		return
	}
	s.log.Info("Received NATS request", "params", params)
	res, _, err := s.Recognize(context.Background(), params, "NATS request")
	if err != nil {
		req.Error("invalid_params", err.Error(), nil)
		return
	}
	headers := metaHeaders(res)
	if !res.OK() {
		req.Error(res.Err.Kind.String(), res.Err.Msg, nil, micro.WithHeaders(headers))
		return
	}
	req.Respond([]byte(res.Text), micro.WithHeaders(headers))
}

func (s *Server) handleLangs(req micro.Request) {
	langs, err := s.store.Languages()
	if err != nil {
		req.Error("failed", err.Error(), nil)
		return
	}
	if langs == nil {
		langs = []string{}
	}
	data, err := json.Marshal(langs)
	if err != nil {
		req.Error("failed", err.Error(), nil)
		return
	}
	req.Respond(data)
}

func metaHeaders(res recognizer.Result) micro.Headers {
	h := micro.Headers{}
	for k, v := range res.Meta {
		h[k] = []string{v}
	}
	return h
}
