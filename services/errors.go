package services

import (
	"errors"
	"fmt"
)

// Code classifica os erros do núcleo.
type Code string

const (
	CodeInvalidArgument Code = "invalid_argument"
	CodeNotFound        Code = "not_found"
	CodeWrongStatus     Code = "wrong_status"
	CodeUnauthorized    Code = "unauthorized"
	CodeNoBacking       Code = "no_backing"
	CodeEscrowMissing   Code = "escrow_missing"
	CodeNoHolders       Code = "no_holders"
	CodeConflict        Code = "conflict"
	CodeLedgerFailure   Code = "ledger_failure"
	CodeBatchMint       Code = "batch_mint"
)

// Error é o erro tipado devolvido pelas operações do núcleo.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is compara pelo código, permitindo errors.Is(err, ErrNoBacking).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Retryable informa se o chamador pode repetir a operação.
// Só falhas do ledger são repetíveis; erros de pré-condição não mudam com nova tentativa.
func (e *Error) Retryable() bool {
	return e.Code == CodeLedgerFailure || e.Code == CodeConflict
}

// IsPrecondition informa se o erro foi rejeitado antes de qualquer chamada externa.
func (e *Error) IsPrecondition() bool {
	switch e.Code {
	case CodeInvalidArgument, CodeNotFound, CodeWrongStatus, CodeUnauthorized, CodeNoBacking, CodeEscrowMissing, CodeNoHolders:
		return true
	}
	return false
}

// Sentinelas para comparação com errors.Is.
var (
	ErrInvalidArgument = &Error{Code: CodeInvalidArgument, Message: "argumento inválido"}
	ErrNotFound        = &Error{Code: CodeNotFound, Message: "registro não encontrado"}
	ErrWrongStatus     = &Error{Code: CodeWrongStatus, Message: "status do ativo não permite a operação"}
	ErrUnauthorized    = &Error{Code: CodeUnauthorized, Message: "chamador não autorizado"}
	ErrNoBacking       = &Error{Code: CodeNoBacking, Message: "ativo sem lastro para resgatar"}
	ErrEscrowMissing   = &Error{Code: CodeEscrowMissing, Message: "ativo lastreado sem escrow vivo"}
	ErrNoHolders       = &Error{Code: CodeNoHolders, Message: "nenhum titular para distribuir"}
	ErrConflict        = &Error{Code: CodeConflict, Message: "ativo alterado por outra operação"}
	ErrLedgerFailure   = &Error{Code: CodeLedgerFailure, Message: "falha no ledger"}
	ErrBatchMint       = &Error{Code: CodeBatchMint, Message: "falha na emissão em lote"}
)

func newError(code Code, msg string, meta map[string]string) *Error {
	return &Error{Code: code, Message: msg, Metadata: meta}
}

func invalidArgument(msg string) *Error {
	return newError(CodeInvalidArgument, msg, nil)
}

func wrongStatus(assetID string, got string, want ...string) *Error {
	meta := map[string]string{"asset_id": assetID, "status": got}
	for i, w := range want {
		meta[fmt.Sprintf("want_%d", i)] = w
	}
	return newError(CodeWrongStatus, fmt.Sprintf("ativo %s está com status %s", assetID, got), meta)
}

func unauthorized(msg string) *Error {
	return newError(CodeUnauthorized, msg, nil)
}

// ledgerFailure embrulha uma falha do gateway. A operação não teve efeito e pode ser repetida.
func ledgerFailure(op string, cause error) *Error {
	return &Error{
		Code:     CodeLedgerFailure,
		Message:  fmt.Sprintf("falha ao executar %s no ledger", op),
		Metadata: map[string]string{"op": op},
		Cause:    cause,
	}
}

// BatchMintError informa os tokens já emitidos quando a emissão em lote falhou no meio.
type BatchMintError struct {
	Minted []string
	Cause  error
}

func (e *BatchMintError) Error() string {
	return fmt.Sprintf("emissão em lote interrompida após %d tokens: %v", len(e.Minted), e.Cause)
}

func (e *BatchMintError) Unwrap() error {
	return e.Cause
}

func (e *BatchMintError) Is(target error) bool {
	return target == ErrBatchMint
}
