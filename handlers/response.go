package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ferreirogomes/lastro/models"
	"github.com/ferreirogomes/lastro/services"

	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

// partyRequest identifica quem chama. Credential é repassada ao ledger sem ser guardada.
type partyRequest struct {
	Address    string `json:"address"`
	Credential string `json:"credential,omitempty"`
}

func (p partyRequest) party() models.Party {
	return models.Party{Identity: p.Address, Credential: p.Credential}
}

type errorBody struct {
	Error    string            `json:"error"`
	Code     string            `json:"code,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Minted   []string          `json:"minted,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("falha ao escrever resposta JSON")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("corpo da requisição inválido: %w", err)
	}
	return nil
}

// httpStatus traduz os códigos de erro do núcleo.
func httpStatus(code services.Code) int {
	switch code {
	case services.CodeInvalidArgument, services.CodeNoBacking, services.CodeNoHolders:
		return http.StatusBadRequest
	case services.CodeUnauthorized:
		return http.StatusForbidden
	case services.CodeNotFound:
		return http.StatusNotFound
	case services.CodeWrongStatus, services.CodeEscrowMissing, services.CodeConflict:
		return http.StatusConflict
	case services.CodeLedgerFailure, services.CodeBatchMint:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	var batch *services.BatchMintError
	if errors.As(err, &batch) {
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error(), Code: string(services.CodeBatchMint), Minted: batch.Minted})
		return
	}
	var typed *services.Error
	if errors.As(err, &typed) {
		if !typed.IsPrecondition() {
			log.Warn().Err(err).Str("code", string(typed.Code)).Msg("operação falhou depois de chamar o ledger")
		}
		writeJSON(w, httpStatus(typed.Code), errorBody{Error: typed.Error(), Code: string(typed.Code), Metadata: typed.Metadata})
		return
	}
	log.Error().Err(err).Msg("erro interno")
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "erro interno"})
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: string(services.CodeInvalidArgument)})
}
