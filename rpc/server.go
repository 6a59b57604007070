package rpc

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/pegbridge/pegbridge/bridge"
	"github.com/pegbridge/pegbridge/common"
	"github.com/pegbridge/pegbridge/common/util"
)

var logger *log.Entry = util.GetLoggerForModule("rpc")

// BridgeRPCServer exposes the checkpoint queue's query surface and the
// sign-checkpoint call over HTTP. The queue itself is single-owner state; the
// server serializes every call into it behind one mutex.
type BridgeRPCServer struct {
	queue *bridge.CheckpointQueue
	mu    sync.Mutex

	router *mux.Router
	server *http.Server

	// Life cycle
	wg      *sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

// NewBridgeRPCServer creates a new instance of BridgeRPCServer.
func NewBridgeRPCServer(queue *bridge.CheckpointQueue) *BridgeRPCServer {
	s := &BridgeRPCServer{
		queue: queue,
		wg:    &sync.WaitGroup{},
	}

	s.router = mux.NewRouter()
	s.router.HandleFunc("/index", s.handleIndex).Methods("GET")
	s.router.HandleFunc("/checkpoints", s.handleAll).Methods("GET")
	s.router.HandleFunc("/checkpoints/completed", s.handleCompleted).Methods("GET")
	s.router.HandleFunc("/checkpoints/signing", s.handleSigning).Methods("GET")
	s.router.HandleFunc("/checkpoints/{index:[0-9]+}", s.handleGet).Methods("GET")
	s.router.HandleFunc("/sigset", s.handleActiveSigset).Methods("GET")
	s.router.HandleFunc("/sign", s.handleSign).Methods("POST")

	address := viper.GetString(common.CfgRPCAddress)
	port := viper.GetString(common.CfgRPCPort)
	timeout := time.Duration(viper.GetInt(common.CfgRPCTimeoutSecs)) * time.Second
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%v:%v", address, port),
		Handler:      s.router,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	return s
}

// Start creates the main goroutine.
func (s *BridgeRPCServer) Start(ctx context.Context) {
	c, cancel := context.WithCancel(ctx)
	s.ctx = c
	s.cancel = cancel

	s.wg.Add(1)
	go s.mainLoop()
}

func (s *BridgeRPCServer) mainLoop() {
	defer s.wg.Done()

	go s.serve()

	<-s.ctx.Done()
	s.stopped = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)
}

func (s *BridgeRPCServer) serve() {
	logger.WithFields(log.Fields{"address": s.server.Addr}).Info("RPC server started")
	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		logger.Errorf("RPC server failed, err: %v", err)
	}
}

// Stop notifies the server to stop without blocking.
func (s *BridgeRPCServer) Stop() {
	s.cancel()
}

// Wait blocks until the server shuts down.
func (s *BridgeRPCServer) Wait() {
	s.wg.Wait()
}
