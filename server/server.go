// Package server exposes proof generation and verification over HTTP.
//
//	POST /generateproof  {"hash","start","end","attest"} -> GenerateProofResponse
//	POST /verify         {"proof","root"}                -> VerifyResponse
//	GET  /healthz
package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"xdao.co/rangeproof/attest"
	"xdao.co/rangeproof/cidutil"
	"xdao.co/rangeproof/model"
	"xdao.co/rangeproof/proof"
	"xdao.co/rangeproof/prover"
)

const (
	defaultMaxBody  = 64 << 20
	defaultMaxRange = 16 << 20
)

type Server struct {
	mux      *http.ServeMux
	prover   *prover.Prover
	attester *attest.Attester
	log      logrus.FieldLogger
	maxBody  int64
	maxRange uint64
}

type Option func(*Server)

func WithLogger(l logrus.FieldLogger) Option { return func(s *Server) { s.log = l } }

// WithAttester enables receipts on /generateproof.
func WithAttester(a *attest.Attester) Option { return func(s *Server) { s.attester = a } }

// WithMaxRange bounds end-start of a single proof request.
func WithMaxRange(n uint64) Option { return func(s *Server) { s.maxRange = n } }

// WithMaxBody bounds request bodies in bytes.
func WithMaxBody(n int64) Option { return func(s *Server) { s.maxBody = n } }

func New(p *prover.Prover, opts ...Option) *Server {
	l := logrus.New()
	l.SetOutput(io.Discard)
	s := &Server{
		mux:      http.NewServeMux(),
		prover:   p,
		log:      l,
		maxBody:  defaultMaxBody,
		maxRange: defaultMaxRange,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /generateproof", s.handleGenerate)
	s.mux.HandleFunc("POST /verify", s.handleVerify)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.log.WithFields(logrus.Fields{
		"method":   r.Method,
		"path":     r.URL.Path,
		"status":   rec.status,
		"duration": time.Since(start).String(),
	}).Info("request")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req model.GenerateProofRequest
	if !s.decode(w, r, &req) {
		return
	}
	root, err := cidutil.Parse(req.Hash)
	if err != nil {
		s.writeError(w, model.NewError(model.ErrInvalidCID, err.Error()))
		return
	}
	if req.End >= req.Start && req.End-req.Start > s.maxRange {
		s.writeError(w, model.NewError(model.ErrInvalidRequest, "requested range exceeds the server limit"))
		return
	}
	if req.Attest && s.attester == nil {
		s.writeError(w, model.NewError(model.ErrInvalidRequest, "attestation is not enabled on this server"))
		return
	}

	rp, res, err := s.prover.Prove(r.Context(), root, req.Start, req.End)
	if err != nil {
		s.writeError(w, model.FromError(err))
		return
	}
	enc, err := proof.Marshal(rp)
	if err != nil {
		s.writeError(w, model.FromError(err))
		return
	}
	resp := model.GenerateProofResponse{
		Root:      root.String(),
		Start:     req.Start,
		End:       req.End,
		Proof:     enc,
		Selectors: len(rp.Selectors),
	}

	if req.Attest {
		rcpt, ares, err := s.attester.Attest(rp)
		if err != nil {
			s.writeError(w, model.FromError(err))
			return
		}
		if resp.Receipt, err = attest.MarshalReceipt(rcpt); err != nil {
			s.writeError(w, model.FromError(err))
			return
		}
		resp.Data = ares.Data
	} else {
		// res is nil only when the prover skips pre-flight.
		if res == nil {
			if res, err = proof.Verify(rp); err != nil {
				s.writeError(w, model.FromError(err))
				return
			}
		}
		resp.Data = res.Data
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req model.VerifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	rp, err := proof.Unmarshal(req.Proof)
	if err != nil {
		s.writeError(w, model.FromError(err))
		return
	}
	var res *proof.Result
	if req.Root != "" {
		root, perr := cidutil.Parse(req.Root)
		if perr != nil {
			s.writeError(w, model.NewError(model.ErrInvalidCID, perr.Error()))
			return
		}
		res, err = proof.VerifyRoot(rp, root)
	} else {
		res, err = proof.Verify(rp)
	}
	if err != nil {
		s.writeError(w, model.FromError(err))
		return
	}
	writeJSON(w, http.StatusOK, model.VerifyResponse{RootHash: res.RootHash.String(), Data: res.Data})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, model.Health{Status: "ok"})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, model.NewError(model.ErrInvalidRequest, "invalid JSON body: "+err.Error()))
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, e *model.CodedError) {
	status := statusFor(e.Code)
	if status >= http.StatusInternalServerError {
		s.log.WithFields(logrus.Fields{"code": e.Code, "rule": e.RuleID}).Error(e.Message)
	}
	writeJSON(w, status, e)
}

func statusFor(code model.ErrorCode) int {
	switch code {
	case model.ErrInvalidRequest, model.ErrInvalidCID:
		return http.StatusBadRequest
	case model.ErrNotFound:
		return http.StatusNotFound
	case model.ErrOutOfRange:
		return http.StatusRequestedRangeNotSatisfiable
	case model.ErrInvalidProof, model.ErrRootMismatch, model.ErrUnsupported:
		return http.StatusUnprocessableEntity
	case model.ErrFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
