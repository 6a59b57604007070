package rpc

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/pegbridge/pegbridge/bridge"
	"github.com/pegbridge/pegbridge/common"
	"github.com/pegbridge/pegbridge/common/result"
	"github.com/pegbridge/pegbridge/core"
)

// ------------------------------ DTOs ------------------------------ //

type IndexResult struct {
	Index uint64 `json:"index"`
}

type InputResult struct {
	PrevTxid     string       `json:"prev_txid"`
	PrevVout     uint32       `json:"prev_vout"`
	Amount       uint64       `json:"amount"`
	ScriptPubkey common.Bytes `json:"script_pubkey"`
}

type OutputResult struct {
	Amount uint64       `json:"amount"`
	Script common.Bytes `json:"script"`
}

type SignatoryResult struct {
	Pubkey      common.Bytes `json:"pubkey"`
	VotingPower uint64       `json:"voting_power"`
}

type SigsetResult struct {
	Index             uint64            `json:"index"`
	Signatories       []SignatoryResult `json:"signatories"`
	TotalVotingPower  uint64            `json:"total_voting_power"`
	QuorumVotingPower uint64            `json:"quorum_voting_power"`
}

type CheckpointResult struct {
	Index       uint64         `json:"index"`
	Status      string         `json:"status"`
	Inputs      []InputResult  `json:"inputs"`
	Outputs     []OutputResult `json:"outputs"`
	SignedPower uint64         `json:"signed_power"`
	TotalPower  uint64         `json:"total_power"`
	Message     common.Bytes   `json:"message,omitempty"`
}

type SignRequest struct {
	Pubkey    common.Bytes `json:"pubkey"`
	Signature common.Bytes `json:"signature"`
}

func checkpointResult(index uint64, cp *core.Checkpoint) CheckpointResult {
	res := CheckpointResult{
		Index:   index,
		Status:  cp.Status.String(),
		Inputs:  []InputResult{},
		Outputs: []OutputResult{},
	}
	for _, in := range cp.Inputs {
		res.Inputs = append(res.Inputs, InputResult{
			PrevTxid:     in.PrevTxid.String(),
			PrevVout:     in.PrevVout,
			Amount:       in.Amount,
			ScriptPubkey: in.ScriptPubkey,
		})
	}
	for _, out := range cp.Outputs {
		res.Outputs = append(res.Outputs, OutputResult{Amount: out.Amount, Script: out.Script})
	}
	if cp.Sig != nil {
		res.SignedPower = cp.Sig.SignedPower
		res.TotalPower = cp.Sig.TotalPower
		res.Message = cp.Sig.Message
	}
	return res
}

func sigsetResult(ss *core.SignatorySet) SigsetResult {
	res := SigsetResult{
		Index:             ss.Index,
		Signatories:       []SignatoryResult{},
		TotalVotingPower:  ss.TotalVotingPower(),
		QuorumVotingPower: ss.QuorumVotingPower(),
	}
	for _, s := range ss.Signatories {
		res.Signatories = append(res.Signatories, SignatoryResult{
			Pubkey:      s.Pubkey,
			VotingPower: s.VotingPower,
		})
	}
	return res
}

// ------------------------------ Handlers ------------------------------ //

func (s *BridgeRPCServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	writeJSON(w, http.StatusOK, IndexResult{Index: s.queue.Index()})
}

func (s *BridgeRPCServer) handleAll(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []CheckpointResult{}
	for _, entry := range s.queue.All() {
		out = append(out, checkpointResult(entry.Index, entry.Checkpoint))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *BridgeRPCServer) handleCompleted(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []CheckpointResult{}
	index := s.queue.Index() + 1 - uint64(s.queue.Len())
	for _, cp := range s.queue.Completed() {
		out = append(out, checkpointResult(index, cp))
		index++
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *BridgeRPCServer) handleSigning(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	signing, ok := s.queue.Signing()
	if !ok {
		writeError(w, http.StatusNotFound,
			result.Error("no checkpoint is being signed").WithErrorCode(result.CodeNothingToSign))
		return
	}
	writeJSON(w, http.StatusOK, checkpointResult(signing.Index, signing.Checkpoint))
}

func (s *BridgeRPCServer) handleGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := strconv.ParseUint(mux.Vars(r)["index"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, result.Error("invalid checkpoint index"))
		return
	}
	cp, err := s.queue.Get(index)
	if err != nil {
		writeError(w, http.StatusNotFound,
			result.Error("%v", err).WithErrorCode(result.CodeIndexOutOfBounds))
		return
	}
	writeJSON(w, http.StatusOK, checkpointResult(index, cp))
}

func (s *BridgeRPCServer) handleActiveSigset(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sigset, err := s.queue.ActiveSigset()
	if err != nil {
		writeError(w, http.StatusNotFound,
			result.Error("%v", err).WithErrorCode(result.CodeIndexOutOfBounds))
		return
	}
	writeJSON(w, http.StatusOK, sigsetResult(sigset))
}

func (s *BridgeRPCServer) handleSign(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var req SignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, result.Error("invalid sign request: %v", err))
		return
	}

	err := s.queue.SignCheckpoint(req.Pubkey, req.Signature)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result.OK)
	case errors.Is(err, bridge.ErrNoCheckpointToSign):
		writeError(w, http.StatusConflict,
			result.Error("%v", err).WithErrorCode(result.CodeNothingToSign))
	case errors.Is(err, core.ErrSignatureRejected):
		writeError(w, http.StatusUnprocessableEntity,
			result.Error("%v", err).WithErrorCode(result.CodeSignatureRejected))
	default:
		writeError(w, http.StatusInternalServerError, result.Error("%v", err))
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorf("Failed to encode RPC response, err: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, res result.Result) {
	writeJSON(w, status, res)
}
