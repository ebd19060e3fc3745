package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	cid "github.com/ipfs/go-cid"
	"github.com/mosaicnetworks/delta/src/delta"
	"github.com/mosaicnetworks/delta/src/peers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// MaxTxBodySize bounds the body of a transaction submission, in bytes.
const MaxTxBodySize = 1 << 20

// Node is the part of the node exposed by the service.
type Node interface {
	GetStats() map[string]string
}

// HashProvider ...
type HashProvider interface {
	GetLatestDeltaHash(asOf *time.Time) cid.Cid
}

// DeltaReader ...
type DeltaReader interface {
	TryGetOrAddConfirmedDelta(hash cid.Cid) (*delta.Delta, error)
}

// FavouriteProvider ...
type FavouriteProvider interface {
	TryGetFavouriteDelta(previous cid.Cid) (*delta.FavouriteDeltaBroadcast, bool)
}

// TransactionSink accepts transactions submitted by clients.
type TransactionSink interface {
	Add(txs ...*delta.Transaction) int
}

// Backend groups the components queried by the service.
type Backend struct {
	Node       Node
	Hashes     HashProvider
	Deltas     DeltaReader
	Favourites FavouriteProvider
	Mempool    TransactionSink
	Peers      *peers.PeerSet
	Gatherer   prometheus.Gatherer
}

// Service ...
type Service struct {
	sync.Mutex

	bindAddress string
	backend     Backend
	mux         *http.ServeMux
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, backend Backend, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		backend:     backend,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering delta API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/delta/", s.makeHandler(s.GetDelta))
	s.mux.HandleFunc("/favourite/", s.makeHandler(s.GetFavourite))
	s.mux.HandleFunc("/peers", s.makeHandler(s.GetPeers))
	s.mux.HandleFunc("/tx", s.makeHandler(s.SubmitTx))

	if s.backend.Gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.backend.Gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the handler serving the API.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve listens on the bind address until ctx is cancelled.
func (s *Service) Serve(ctx context.Context) error {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving delta API")

	server := &http.Server{
		Addr:    s.bindAddress,
		Handler: s.mux,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.backend.Node.GetStats())
}

// DeltaResponse ...
type DeltaResponse struct {
	Hash  string
	Delta *delta.Delta
}

// GetDelta serves /delta/latest, optionally as of an RFC3339 time, and
// /delta/<cid>.
func (s *Service) GetDelta(w http.ResponseWriter, r *http.Request) {
	param := r.URL.Path[len("/delta/"):]

	var hash cid.Cid

	if param == "latest" {
		var asOf *time.Time
		if v := r.URL.Query().Get("asof"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				s.logger.WithError(err).Errorf("Parsing asof parameter %s", v)
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			asOf = &t
		}

		hash = s.backend.Hashes.GetLatestDeltaHash(asOf)
		if !hash.Defined() {
			http.Error(w, "no delta retained for that time", http.StatusNotFound)
			return
		}
	} else {
		var err error
		hash, err = cid.Decode(param)
		if err != nil {
			s.logger.WithError(err).Errorf("Parsing delta hash %s", param)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	d, err := s.backend.Deltas.TryGetOrAddConfirmedDelta(hash)
	if err != nil {
		s.logger.WithError(err).Errorf("Retrieving delta %s", hash)
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	writeJSON(w, DeltaResponse{Hash: hash.String(), Delta: d})
}

// GetFavourite serves this node's favourite candidate following a delta.
func (s *Service) GetFavourite(w http.ResponseWriter, r *http.Request) {
	param := r.URL.Path[len("/favourite/"):]

	previous, err := cid.Decode(param)
	if err != nil {
		s.logger.WithError(err).Errorf("Parsing previous hash %s", param)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	favourite, ok := s.backend.Favourites.TryGetFavouriteDelta(previous)
	if !ok {
		http.Error(w, "no favourite", http.StatusNotFound)
		return
	}

	writeJSON(w, favourite)
}

// GetPeers ...
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	var ps []*peers.Peer
	if s.backend.Peers != nil {
		ps = s.backend.Peers.Peers
	}
	writeJSON(w, ps)
}

// SubmitTx adds a JSON encoded transaction to the mempool.
func (s *Service) SubmitTx(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxTxBodySize)

	var tx delta.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		s.logger.WithError(err).Error("Decoding transaction")
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		http.Error(w, err.Error(), status)
		return
	}

	added := s.backend.Mempool.Add(&tx)

	writeJSON(w, map[string]int{"added": added})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
