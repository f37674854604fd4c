package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/AlexZinkM/solwallet/internal/common"
	"github.com/AlexZinkM/solwallet/internal/crypto"
	"github.com/AlexZinkM/solwallet/internal/model"
	"github.com/AlexZinkM/solwallet/solana"

	solanago "github.com/gagliardetto/solana-go"
)

// maxSendTimeout caps the timeout a client may ask POST /wallet/send to wait.
const maxSendTimeout = 120 * time.Second

// SolanaHandler serves the wallet session over HTTP.
type SolanaHandler struct {
	session  *solana.Session
	filePath string
	password []byte
	logger   *slog.Logger
}

// NewSolanaHandler creates a handler. password encrypts keystores written by
// Generate; the handler clears it on Close.
func NewSolanaHandler(session *solana.Session, filePath string, password []byte, logger *slog.Logger) (*SolanaHandler, error) {
	if filePath == "" {
		return nil, errors.New("SOLANA_FILE_PATH not set")
	}
	return &SolanaHandler{
		session:  session,
		filePath: filePath,
		password: password,
		logger:   logger,
	}, nil
}

// Close wipes the held password.
func (h *SolanaHandler) Close() {
	clear(h.password)
}

// Address handles GET /wallet/address
// @Summary      Get active address
// @Tags         wallet
// @Produce      json
// @Success      200  {object}  model.AddressResponse
// @Failure      409  {object}  model.ErrorResponse
// @Router       /wallet/address [get]
func (h *SolanaHandler) Address(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Should be GET", http.StatusMethodNotAllowed)
		return
	}

	address, err := h.session.ActiveAddress()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.AddressResponse{Address: address.String()})
}

// Balance handles GET /wallet/balance
// @Summary      Get wallet balance
// @Description  Gets the SOL balance of the active key
// @Tags         wallet
// @Produce      json
// @Success      200  {object}  model.BalanceResponse
// @Failure      502  {object}  model.ErrorResponse
// @Router       /wallet/balance [get]
func (h *SolanaHandler) Balance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Should be GET", http.StatusMethodNotAllowed)
		return
	}

	account, err := h.session.Balance(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.BalanceResponse{
		Address:  account.Address.String(),
		Lamports: account.Lamports,
		SOL:      common.LamportsToSOL(account.Lamports),
		Slot:     account.Slot,
	})
}

// Send handles POST /wallet/send
// @Summary      Send SOL
// @Description  Sends SOL and waits for a terminal state or the timeout. 202 means still pending.
// @Tags         wallet
// @Accept       json
// @Produce      json
// @Param        request  body      model.SendRequest  true  "Transfer"
// @Success      200      {object}  model.SubmissionResponse
// @Success      202      {object}  model.SubmissionResponse
// @Failure      400      {object}  model.ErrorResponse
// @Failure      422      {object}  model.ErrorResponse
// @Router       /wallet/send [post]
func (h *SolanaHandler) Send(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. Should be POST", http.StatusMethodNotAllowed)
		return
	}

	var req model.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	lamports, err := common.SOLToLamports(req.Amount)
	if err != nil || lamports > 1<<63-1 {
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "invalid amount", Code: "INVALID_REQUEST"})
		return
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	if timeout > maxSendTimeout {
		timeout = maxSendTimeout
	}

	record, err := h.session.Send(r.Context(), req.ToAddress, int64(lamports), req.Memo, timeout)
	if err != nil && record == nil {
		h.writeError(w, r, err)
		return
	}
	if err != nil {
		h.logger.WarnContext(r.Context(), "send finished with error", "tx_id", record.ID.String(), "error", err)
	}
	writeRecord(w, record, err)
}

// Submission handles GET /wallet/submissions/{id}
// @Summary      Get submission
// @Tags         wallet
// @Produce      json
// @Param        id   path      string  true  "Transaction signature"
// @Success      200  {object}  model.SubmissionResponse
// @Failure      404  {object}  model.ErrorResponse
// @Router       /wallet/submissions/{id} [get]
func (h *SolanaHandler) Submission(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	record, err := h.session.Submission(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(record))
}

// Rebroadcast handles POST /wallet/submissions/{id}/rebroadcast
// @Summary      Rebroadcast a pending submission
// @Tags         wallet
// @Produce      json
// @Param        id   path      string  true  "Transaction signature"
// @Success      200  {object}  model.SubmissionResponse
// @Success      202  {object}  model.SubmissionResponse
// @Failure      409  {object}  model.ErrorResponse
// @Router       /wallet/submissions/{id}/rebroadcast [post]
func (h *SolanaHandler) Rebroadcast(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	record, err := h.session.Rebroadcast(r.Context(), id)
	if err != nil && record == nil {
		h.writeError(w, r, err)
		return
	}
	if err != nil {
		h.logger.WarnContext(r.Context(), "rebroadcast attempt failed", "tx_id", record.ID.String(), "error", err)
	}
	writeRecord(w, record, err)
}

// Generate handles POST /wallet/generate
// @Summary      Generate new wallet
// @Description  Generates a new key, makes it active and saves it to the .cwt keystore
// @Tags         wallet
// @Produce      json
// @Success      200  {object}  model.GenerateResponse
// @Failure      409  {object}  model.ErrorResponse
// @Router       /wallet/generate [post]
func (h *SolanaHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed. should be POST", http.StatusMethodNotAllowed)
		return
	}

	if info, err := os.Stat(h.filePath); err == nil && info.Size() > 0 {
		writeJSON(w, http.StatusConflict, model.ErrorResponse{Error: "file is not empty", Code: "KEYSTORE_EXISTS"})
		return
	}

	kp, err := h.session.Generate()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.session.Use(kp.Address); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.session.SaveKeystore(h.filePath, h.password); err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.GenerateResponse{
		Success: true,
		Message: "Wallet generated successfully",
		Address: kp.Address.String(),
	})
}

func parseID(w http.ResponseWriter, r *http.Request) (solanago.Signature, bool) {
	id, err := solanago.SignatureFromBase58(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "invalid transaction id", Code: "INVALID_REQUEST"})
		return solanago.Signature{}, false
	}
	return id, true
}

func toResponse(r *model.SubmissionRecord) model.SubmissionResponse {
	return model.SubmissionResponse{
		TxID:        r.ID.String(),
		RequestID:   r.RequestID,
		From:        r.Sender.String(),
		To:          r.Recipient.String(),
		Amount:      common.LamportsToSOL(r.Lamports),
		State:       string(r.State),
		Reason:      r.Reason,
		RetryCount:  r.RetryCount,
		SubmittedAt: r.SubmittedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}

// writeRecord answers 202 while the record is pending. err, when the
// record survived it, is reported as the response's error code.
func writeRecord(w http.ResponseWriter, record *model.SubmissionRecord, err error) {
	status := http.StatusOK
	if record.State == model.StatePending {
		status = http.StatusAccepted
	}
	resp := toResponse(record)
	if err != nil {
		resp.ErrorCode = model.ErrorCode(err)
	}
	writeJSON(w, status, resp)
}

// writeError maps the error taxonomy to HTTP status codes.
func (h *SolanaHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrInvalidRequest), errors.Is(err, model.ErrInvalidKeyFormat):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrUnknownRecord), errors.Is(err, model.ErrAddressNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrNoActiveKey), errors.Is(err, model.ErrTerminalRecord),
		errors.Is(err, model.ErrExpired), crypto.IsFileExistsError(err):
		status = http.StatusConflict
	case errors.Is(err, model.ErrRejectedByNetwork):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrNetwork):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, model.ErrorResponse{Error: err.Error(), Code: model.ErrorCode(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
