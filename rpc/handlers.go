package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"powergrid/archive"
	"powergrid/core"
	"powergrid/core/types"
	"powergrid/crypto"
	"powergrid/crypto/bn254"
)

// envelopeParam is the wire form of a signed transition envelope. All byte
// fields are 0x-prefixed hex.
type envelopeParam struct {
	TransitionIndex uint64 `json:"transitionIndex"`
	TargetIdentity  string `json:"targetIdentity"`
	Selector        string `json:"selector"`
	Digest          string `json:"digest"`
	DiffBytes       string `json:"diffBytes"`
	ApkG1           string `json:"apkG1"`
	ApkG2           string `json:"apkG2"`
	Signature       string `json:"signature"`
}

type submitTransitionParams struct {
	Envelope envelopeParam `json:"envelope"`
	Payment  string        `json:"payment"`
}

type submitTransitionResult struct {
	Index  uint64 `json:"index"`
	Power  string `json:"power"`
	Passed bool   `json:"passed"`
}

type auditParams struct {
	Envelope envelopeParam `json:"envelope"`
}

type auditResult struct {
	Misbehaved bool   `json:"misbehaved"`
	Reason     string `json:"reason,omitempty"`
}

type appendParticipantParams struct {
	Participant string `json:"participant"`
}

type appendParticipantResult struct {
	Index uint64 `json:"index"`
}

type powerStateResult struct {
	Power  string `json:"power"`
	Passed bool   `json:"passed"`
}

type indexParams struct {
	Index uint64 `json:"index"`
}

type snapshotResult struct {
	Index        uint64   `json:"index"`
	Participants []string `json:"participants"`
}

type canonicalDiffResult struct {
	Index uint64 `json:"index"`
	Diff  string `json:"diff"`
}

type feePoolResult struct {
	Fee     string `json:"fee"`
	Balance string `json:"balance"`
}

func (s *Server) handleSubmitTransition(w http.ResponseWriter, req *RPCRequest, logger *slog.Logger) {
	started := time.Now()
	var params submitTransitionParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	env, err := params.Envelope.toEnvelope()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	payment, err := parseAmount(params.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	state, err := s.node.SubmitTransition(env, payment)
	if err != nil {
		outcome, status, code := classifySubmitError(err)
		s.metrics.ObserveSubmission(outcome, time.Since(started))
		logger.Info("transition rejected", "error", err)
		writeError(w, status, req.ID, code, err.Error(), nil)
		return
	}
	s.metrics.ObserveSubmission("applied", time.Since(started))
	writeResult(w, req.ID, submitTransitionResult{
		Index:  env.TransitionIndex,
		Power:  state.Power.Hex(),
		Passed: state.Passed,
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request, req *RPCRequest, logger *slog.Logger) {
	var params auditParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	env, err := params.Envelope.toEnvelope()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	verdict, err := s.node.Audit(env)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
		return
	}
	s.metrics.ObserveAudit(verdict.Misbehaved)
	if s.archive != nil {
		record := archive.Verdict{
			EnvelopeHash:    env.HashHex(),
			TransitionIndex: env.TransitionIndex,
			Misbehaved:      verdict.Misbehaved,
			Reason:          verdict.Reason,
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		if recErr := s.archive.Record(ctx, record); recErr != nil {
			logger.Error("failed to archive verdict", "error", recErr)
		}
		cancel()
	}
	writeResult(w, req.ID, auditResult{Misbehaved: verdict.Misbehaved, Reason: verdict.Reason})
}

func (s *Server) handleAppendParticipant(w http.ResponseWriter, req *RPCRequest, logger *slog.Logger) {
	var params appendParticipantParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	participant, err := crypto.DecodeAddress(params.Participant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("invalid participant: %v", err), nil)
		return
	}
	index, err := s.node.AppendParticipant(participant)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
		return
	}
	s.metrics.ObserveParticipant()
	logger.Info("participant appended", "participant", participant.String(), "index", index)
	writeResult(w, req.ID, appendParticipantResult{Index: index})
}

func (s *Server) handleCurrentIndex(w http.ResponseWriter, req *RPCRequest) {
	writeResult(w, req.ID, indexParams{Index: s.node.CurrentTransitionIndex()})
}

func (s *Server) handlePowerState(w http.ResponseWriter, req *RPCRequest) {
	state, err := s.node.PowerState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, powerStateResult{Power: state.Power.Hex(), Passed: state.Passed})
}

func (s *Server) handleSnapshotAt(w http.ResponseWriter, req *RPCRequest) {
	var params indexParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	snapshot, err := s.node.SnapshotAt(params.Index)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
		return
	}
	participants := make([]string, len(snapshot))
	for i, p := range snapshot {
		participants[i] = p.String()
	}
	writeResult(w, req.ID, snapshotResult{Index: params.Index, Participants: participants})
}

func (s *Server) handleCanonicalDiff(w http.ResponseWriter, req *RPCRequest) {
	var params indexParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	diffBytes, err := s.node.CanonicalDiff(params.Index)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, canonicalDiffResult{Index: params.Index, Diff: hexEncode(diffBytes)})
}

func (s *Server) handleFeePool(w http.ResponseWriter, req *RPCRequest) {
	balance, err := s.node.FeePoolBalance()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, feePoolResult{
		Fee:     s.node.SubmissionFee().String(),
		Balance: balance.String(),
	})
}

func classifySubmitError(err error) (outcome string, status, code int) {
	switch {
	case errors.Is(err, core.ErrStaleTransition):
		return "stale", http.StatusConflict, codeStale
	case errors.Is(err, core.ErrInsufficientPayment):
		return "payment", http.StatusPaymentRequired, codeInvalidParams
	case errors.Is(err, core.ErrHashMismatch):
		return "hash_mismatch", http.StatusBadRequest, codeInvalidParams
	case errors.Is(err, core.ErrInvalidSignature):
		return "invalid_signature", http.StatusBadRequest, codeInvalidParams
	default:
		return "malformed", http.StatusBadRequest, codeInvalidParams
	}
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) == 0 {
		return errors.New("params required")
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

func (p envelopeParam) toEnvelope() (*types.SignedEnvelope, error) {
	target, err := crypto.DecodeAddress(p.TargetIdentity)
	if err != nil {
		return nil, fmt.Errorf("invalid targetIdentity: %w", err)
	}
	selector, err := hexDecode(p.Selector, types.SelectorLength)
	if err != nil {
		return nil, fmt.Errorf("invalid selector: %w", err)
	}
	digest, err := hexDecode(p.Digest, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid digest: %w", err)
	}
	diffBytes, err := hexDecode(p.DiffBytes, -1)
	if err != nil {
		return nil, fmt.Errorf("invalid diffBytes: %w", err)
	}
	apkG1, err := hexDecode(p.ApkG1, bn254.G1Size)
	if err != nil {
		return nil, fmt.Errorf("invalid apkG1: %w", err)
	}
	apkG2, err := hexDecode(p.ApkG2, bn254.G2Size)
	if err != nil {
		return nil, fmt.Errorf("invalid apkG2: %w", err)
	}
	signature, err := hexDecode(p.Signature, bn254.SignatureSize)
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}
	env := &types.SignedEnvelope{
		TransitionIndex: p.TransitionIndex,
		TargetIdentity:  target,
		DiffBytes:       diffBytes,
		ApkG1:           apkG1,
		ApkG2:           apkG2,
		Signature:       signature,
	}
	copy(env.Selector[:], selector)
	copy(env.Digest[:], digest)
	return env, nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("payment required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid payment amount %q", raw)
	}
	return amount, nil
}

// hexDecode parses a 0x-prefixed hex string. A negative size skips the length
// check.
func hexDecode(raw string, size int) ([]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "0x") {
		return nil, fmt.Errorf("hex string %q missing 0x prefix", raw)
	}
	decoded, err := hex.DecodeString(trimmed[2:])
	if err != nil {
		return nil, err
	}
	if size >= 0 && len(decoded) != size {
		return nil, fmt.Errorf("expected %d bytes, got %d", size, len(decoded))
	}
	return decoded, nil
}

func hexEncode(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
