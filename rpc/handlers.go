package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"tokend/crypto"
	"tokend/native/permit"
	"tokend/native/recovery"
	"tokend/native/token"
	"tokend/observability"
)

func (s *Server) dispatch(r *http.Request, method string, params json.RawMessage) (interface{}, *RPCError) {
	switch method {
	// --- open queries ---
	case "token_balanceOf":
		return s.handleBalanceOf(params)
	case "token_allowance":
		return s.handleAllowance(params)
	case "token_nonce":
		return s.handleNonce(params)
	case "token_totalSupply":
		return s.handleTotalSupply()
	case "token_isBlocked":
		return s.handleIsBlocked(params)
	case "recovery_isEnabled":
		return s.handleRecoveryIsEnabled()
	case "recovery_active":
		return s.handleRecoveryActive()
	case "recovery_totalRecovered":
		return s.handleTotalRecovered()
	case "role_holder":
		return s.handleRoleHolder(params)

	// --- permit: anyone may submit, but still rate limited ---
	case "token_permit":
		if rpcErr := s.allowSource(r); rpcErr != nil {
			return nil, rpcErr
		}
		return s.handlePermit(params)

	// --- privileged mutations ---
	case "token_transfer", "token_approve", "token_transferFrom", "token_setBlocked",
		"recovery_request", "recovery_execute", "recovery_cancel",
		"role_transfer", "role_claim":
		if rpcErr := s.requireAuth(r); rpcErr != nil {
			return nil, rpcErr
		}
		if rpcErr := s.allowSource(r); rpcErr != nil {
			return nil, rpcErr
		}
		switch method {
		case "token_transfer":
			return s.handleTransfer(params)
		case "token_approve":
			return s.handleApprove(params)
		case "token_transferFrom":
			return s.handleTransferFrom(params)
		case "token_setBlocked":
			return s.handleSetBlocked(params)
		case "recovery_request":
			return s.handleRecoveryRequest(params)
		case "recovery_execute":
			return s.handleRecoveryExecute(params)
		case "recovery_cancel":
			return s.handleRecoveryCancel(params)
		case "role_transfer":
			return s.handleRoleTransfer(params)
		case "role_claim":
			return s.handleRoleClaim(params)
		}
	}
	return nil, &RPCError{Code: codeMethodNotFound, Message: "unknown method " + method}
}

// --- parameter helpers ---

func decodeParams(raw json.RawMessage, out interface{}) *RPCError {
	if len(raw) == 0 {
		return &RPCError{Code: codeInvalidParams, Message: "params required"}
	}
	decoder := json.NewDecoder(strings.NewReader(string(raw)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid params: " + err.Error()}
	}
	return nil
}

func parseAddr(value string) ([20]byte, *RPCError) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, &RPCError{Code: codeInvalidParams, Message: err.Error()}
	}
	return addr.Raw(), nil
}

func parseAmount(value string) (*big.Int, *RPCError) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, &RPCError{Code: codeInvalidParams, Message: "amount required"}
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, &RPCError{Code: codeInvalidParams, Message: "invalid amount " + value}
	}
	return amount, nil
}

func parseAddrList(values []string) ([][20]byte, *RPCError) {
	out := make([][20]byte, len(values))
	for i, v := range values {
		addr, rpcErr := parseAddr(v)
		if rpcErr != nil {
			return nil, rpcErr
		}
		out[i] = addr
	}
	return out, nil
}

func parseAmountList(values []string) ([]*big.Int, *RPCError) {
	out := make([]*big.Int, len(values))
	for i, v := range values {
		amount, rpcErr := parseAmount(v)
		if rpcErr != nil {
			return nil, rpcErr
		}
		out[i] = amount
	}
	return out, nil
}

func parseSignature(value string) ([]byte, *RPCError) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, &RPCError{Code: codeInvalidParams, Message: "invalid signature hex"}
	}
	return decoded, nil
}

// domainError maps engine failures onto JSON-RPC error objects.
func domainError(err error) *RPCError {
	if errors.Is(err, token.ErrUnauthorized) {
		return &RPCError{Code: codeUnauthorized, Message: err.Error()}
	}
	return &RPCError{Code: codeServerError, Message: err.Error()}
}

// --- query handlers ---

type accountParams struct {
	Account string `json:"account"`
}

func (s *Server) handleBalanceOf(raw json.RawMessage) (interface{}, *RPCError) {
	var params accountParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddr(params.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := s.node.BalanceOf(addr)
	if err != nil {
		return nil, domainError(err)
	}
	return map[string]string{"balance": balance.String()}, nil
}

type allowanceParams struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
}

func (s *Server) handleAllowance(raw json.RawMessage) (interface{}, *RPCError) {
	var params allowanceParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parseAddr(params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	spender, rpcErr := parseAddr(params.Spender)
	if rpcErr != nil {
		return nil, rpcErr
	}
	allowance, err := s.node.AllowanceOf(owner, spender)
	if err != nil {
		return nil, domainError(err)
	}
	return map[string]string{"allowance": allowance.String()}, nil
}

func (s *Server) handleNonce(raw json.RawMessage) (interface{}, *RPCError) {
	var params accountParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddr(params.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	nonce, err := s.node.NonceOf(addr)
	if err != nil {
		return nil, domainError(err)
	}
	return map[string]uint64{"nonce": nonce}, nil
}

func (s *Server) handleTotalSupply() (interface{}, *RPCError) {
	supply, err := s.node.TotalSupply()
	if err != nil {
		return nil, domainError(err)
	}
	return map[string]string{"totalSupply": supply.String()}, nil
}

func (s *Server) handleIsBlocked(raw json.RawMessage) (interface{}, *RPCError) {
	var params accountParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, rpcErr := parseAddr(params.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	blocked, err := s.node.IsBlocked(addr)
	if err != nil {
		return nil, domainError(err)
	}
	return map[string]bool{"blocked": blocked}, nil
}

func (s *Server) handleRecoveryIsEnabled() (interface{}, *RPCError) {
	enabled, err := s.node.IsRecoveryEnabled()
	if err != nil {
		return nil, domainError(err)
	}
	return map[string]bool{"enabled": enabled}, nil
}

func (s *Server) handleTotalRecovered() (interface{}, *RPCError) {
	total, err := s.node.TotalRecovered()
	if err != nil {
		return nil, domainError(err)
	}
	return map[string]string{"totalRecovered": total.String()}, nil
}

type recoveryRequestView struct {
	Hash               string   `json:"hash"`
	RequestTimestamp   int64    `json:"requestTimestamp"`
	ExecutionTimestamp int64    `json:"executionTimestamp"`
	Accounts           []string `json:"accounts"`
	CappedValues       []string `json:"cappedValues"`
}

func requestView(request *recovery.Request) recoveryRequestView {
	view := recoveryRequestView{
		Hash:               "0x" + hex.EncodeToString(request.Hash[:]),
		RequestTimestamp:   request.RequestTimestamp,
		ExecutionTimestamp: request.ExecutionTimestamp,
		Accounts:           make([]string, len(request.Accounts)),
		CappedValues:       make([]string, len(request.CappedValues)),
	}
	for i, addr := range request.Accounts {
		view.Accounts[i] = crypto.MustNewAddress(addr[:]).String()
	}
	for i, v := range request.CappedValues {
		view.CappedValues[i] = v.String()
	}
	return view
}

func (s *Server) handleRecoveryActive() (interface{}, *RPCError) {
	request, ok, err := s.node.ActiveRecoveryRequest()
	if err != nil {
		return nil, domainError(err)
	}
	if !ok {
		return map[string]bool{"active": false}, nil
	}
	return map[string]interface{}{"active": true, "request": requestView(request)}, nil
}

type roleParams struct {
	Role string `json:"role"`
}

func (s *Server) handleRoleHolder(raw json.RawMessage) (interface{}, *RPCError) {
	var params roleParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	holder, err := s.node.RoleHolder(params.Role)
	if err != nil {
		return nil, domainError(err)
	}
	return map[string]string{"holder": crypto.MustNewAddress(holder[:]).String()}, nil
}

// --- mutation handlers ---

type transferParams struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleTransfer(raw json.RawMessage) (interface{}, *RPCError) {
	var params transferParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	from, rpcErr := parseAddr(params.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	to, rpcErr := parseAddr(params.To)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.Transfer(from, to, amount); err != nil {
		return nil, domainError(err)
	}
	return map[string]bool{"ok": true}, nil
}

type approveParams struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Value   string `json:"value"`
}

func (s *Server) handleApprove(raw json.RawMessage) (interface{}, *RPCError) {
	var params approveParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := parseAddr(params.Owner)
	if rpcErr != nil {
		return nil, rpcErr
	}
	spender, rpcErr := parseAddr(params.Spender)
	if rpcErr != nil {
		return nil, rpcErr
	}
	value, rpcErr := parseAmount(params.Value)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.Approve(owner, spender, value); err != nil {
		return nil, domainError(err)
	}
	return map[string]bool{"ok": true}, nil
}

type transferFromParams struct {
	Spender string `json:"spender"`
	From    string `json:"from"`
	To      string `json:"to"`
	Amount  string `json:"amount"`
}

func (s *Server) handleTransferFrom(raw json.RawMessage) (interface{}, *RPCError) {
	var params transferFromParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	spender, rpcErr := parseAddr(params.Spender)
	if rpcErr != nil {
		return nil, rpcErr
	}
	from, rpcErr := parseAddr(params.From)
	if rpcErr != nil {
		return nil, rpcErr
	}
	to, rpcErr := parseAddr(params.To)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, rpcErr := parseAmount(params.Amount)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.TransferFrom(spender, from, to, amount); err != nil {
		return nil, domainError(err)
	}
	return map[string]bool{"ok": true}, nil
}

type permitParams struct {
	Holder    string `json:"holder"`
	Spender   string `json:"spender"`
	Value     string `json:"value"`
	Deadline  int64  `json:"deadline"`
	Signature string `json:"signature"`
}

func (s *Server) handlePermit(raw json.RawMessage) (interface{}, *RPCError) {
	var params permitParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	holder, rpcErr := parseAddr(params.Holder)
	if rpcErr != nil {
		return nil, rpcErr
	}
	spender, rpcErr := parseAddr(params.Spender)
	if rpcErr != nil {
		return nil, rpcErr
	}
	value, rpcErr := parseAmount(params.Value)
	if rpcErr != nil {
		return nil, rpcErr
	}
	signature, rpcErr := parseSignature(params.Signature)
	if rpcErr != nil {
		return nil, rpcErr
	}
	err := s.node.Permit(holder, spender, value, params.Deadline, signature)
	metrics := observability.Ledger()
	if err != nil {
		switch {
		case errors.Is(err, permit.ErrExpired):
			metrics.ObservePermit("expired")
		case errors.Is(err, permit.ErrInvalidSignature):
			metrics.ObservePermit("invalid_signature")
		default:
			metrics.ObservePermit("error")
		}
		return nil, domainError(err)
	}
	metrics.ObservePermit("ok")
	return map[string]bool{"ok": true}, nil
}

type setBlockedParams struct {
	Caller  string `json:"caller"`
	Account string `json:"account"`
	Blocked bool   `json:"blocked"`
}

func (s *Server) handleSetBlocked(raw json.RawMessage) (interface{}, *RPCError) {
	var params setBlockedParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddr(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	account, rpcErr := parseAddr(params.Account)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.SetBlocked(caller, account, params.Blocked); err != nil {
		return nil, domainError(err)
	}
	return map[string]bool{"ok": true}, nil
}

type recoveryBatchParams struct {
	Caller   string   `json:"caller"`
	Accounts []string `json:"accounts"`
	Values   []string `json:"values"`
}

func (s *Server) handleRecoveryRequest(raw json.RawMessage) (interface{}, *RPCError) {
	var params recoveryBatchParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddr(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	accounts, rpcErr := parseAddrList(params.Accounts)
	if rpcErr != nil {
		return nil, rpcErr
	}
	values, rpcErr := parseAmountList(params.Values)
	if rpcErr != nil {
		return nil, rpcErr
	}
	request, err := s.node.RequestRecovery(caller, accounts, values)
	metrics := observability.Ledger()
	if err != nil {
		metrics.ObserveRecovery("request", "error")
		return nil, domainError(err)
	}
	metrics.ObserveRecovery("request", "ok")
	return requestView(request), nil
}

func (s *Server) handleRecoveryExecute(raw json.RawMessage) (interface{}, *RPCError) {
	var params recoveryBatchParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddr(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	accounts, rpcErr := parseAddrList(params.Accounts)
	if rpcErr != nil {
		return nil, rpcErr
	}
	values, rpcErr := parseAmountList(params.Values)
	if rpcErr != nil {
		return nil, rpcErr
	}
	total, err := s.node.ExecuteRecovery(caller, accounts, values)
	metrics := observability.Ledger()
	if err != nil {
		metrics.ObserveRecovery("execute", "error")
		return nil, domainError(err)
	}
	metrics.ObserveRecovery("execute", "ok")
	return map[string]string{"totalMoved": total.String()}, nil
}

type callerParams struct {
	Caller string `json:"caller"`
}

func (s *Server) handleRecoveryCancel(raw json.RawMessage) (interface{}, *RPCError) {
	var params callerParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddr(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	err := s.node.CancelRecovery(caller)
	metrics := observability.Ledger()
	if err != nil {
		metrics.ObserveRecovery("cancel", "error")
		return nil, domainError(err)
	}
	metrics.ObserveRecovery("cancel", "ok")
	return map[string]bool{"ok": true}, nil
}

type roleTransferParams struct {
	Caller  string `json:"caller"`
	Role    string `json:"role"`
	Pending string `json:"pending"`
}

func (s *Server) handleRoleTransfer(raw json.RawMessage) (interface{}, *RPCError) {
	var params roleTransferParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddr(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pending, rpcErr := parseAddr(params.Pending)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.TransferRole(caller, params.Role, pending); err != nil {
		return nil, domainError(err)
	}
	return map[string]bool{"ok": true}, nil
}

type roleClaimParams struct {
	Caller string `json:"caller"`
	Role   string `json:"role"`
}

func (s *Server) handleRoleClaim(raw json.RawMessage) (interface{}, *RPCError) {
	var params roleClaimParams
	if rpcErr := decodeParams(raw, &params); rpcErr != nil {
		return nil, rpcErr
	}
	caller, rpcErr := parseAddr(params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.node.ClaimRole(caller, params.Role); err != nil {
		return nil, domainError(err)
	}
	return map[string]bool{"ok": true}, nil
}
