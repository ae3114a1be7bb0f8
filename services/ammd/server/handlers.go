package server

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"mercx/native/amm"
)

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("ammd encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, amm.ErrPoolNotFound), errors.Is(err, amm.ErrTokenNotFound):
		status = http.StatusNotFound
	case errors.Is(err, amm.ErrPoolExists), errors.Is(err, amm.ErrDuplicateTransfer):
		status = http.StatusConflict
	case errors.Is(err, amm.ErrZeroAmount), errors.Is(err, amm.ErrSameToken),
		errors.Is(err, amm.ErrPullUnsupported):
		status = http.StatusBadRequest
	case errors.Is(err, amm.ErrZeroReceiveAmount), errors.Is(err, amm.ErrInsufficientReserve),
		errors.Is(err, amm.ErrInsufficientLPBalance), errors.Is(err, amm.ErrIncorrectRatio),
		errors.Is(err, amm.ErrSlippageExceeded), errors.Is(err, amm.ErrMinimumReceive),
		errors.Is(err, amm.ErrStaleTransfer), errors.Is(err, amm.ErrStaleQuote),
		errors.Is(err, amm.ErrPoolNotEmpty):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, amm.ErrTransferFailed):
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, errorBody{Error: err.Error()})
}

func parseAmount(raw string) (*big.Int, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() <= 0 {
		return nil, false
	}
	return value, true
}

func parsePullSpec(mode, ref string) (amm.PullSpec, bool) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "authorized":
		return amm.PullSpec{Mode: amm.PullAuthorized}, true
	case "reference":
		trimmed := strings.TrimSpace(ref)
		if trimmed == "" {
			return amm.PullSpec{}, false
		}
		if index, ok := new(big.Int).SetString(trimmed, 10); ok && index.Sign() >= 0 {
			return amm.PullSpec{Mode: amm.PullByReference, Ref: amm.TxRef{BlockIndex: index}}, true
		}
		return amm.PullSpec{Mode: amm.PullByReference, Ref: amm.HashRef(trimmed)}, true
	default:
		return amm.PullSpec{}, false
	}
}

func formatRef(ref amm.TxRef) string {
	return ref.String()
}

type poolPayload struct {
	ID           uint32  `json:"id"`
	Base         string  `json:"base"`
	Quote        string  `json:"quote"`
	Balance0     string  `json:"balance0"`
	Balance1     string  `json:"balance1"`
	LPFee0       string  `json:"lpFee0"`
	LPFee1       string  `json:"lpFee1"`
	ProtocolFee0 string  `json:"protocolFee0"`
	ProtocolFee1 string  `json:"protocolFee1"`
	FeeRateBps   uint16  `json:"feeRateBps"`
	LPTokenID    uint32  `json:"lpTokenId"`
	LPSupply     string  `json:"lpSupply"`
	MidPrice     float64 `json:"midPrice"`
}

func poolToPayload(view *amm.PoolView) poolPayload {
	return poolPayload{
		ID:           view.ID,
		Base:         view.Symbol0,
		Quote:        view.Symbol1,
		Balance0:     view.Balance0.String(),
		Balance1:     view.Balance1.String(),
		LPFee0:       view.LPFee0.String(),
		LPFee1:       view.LPFee1.String(),
		ProtocolFee0: view.ProtocolFee0.String(),
		ProtocolFee1: view.ProtocolFee1.String(),
		FeeRateBps:   view.FeeRateBps,
		LPTokenID:    view.LPTokenID,
		LPSupply:     view.LPSupply.String(),
		MidPrice:     view.MidPrice,
	}
}

func (s *Server) handleListPools(w http.ResponseWriter, _ *http.Request) {
	views, err := s.engine.ListPools()
	if err != nil {
		s.writeError(w, err)
		return
	}
	payload := make([]poolPayload, 0, len(views))
	for _, view := range views {
		payload = append(payload, poolToPayload(view))
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.GetPool(chi.URLParam(r, "base"), chi.URLParam(r, "quote"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, poolToPayload(view))
}

func (s *Server) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Base  string `json:"base"`
		Quote string `json:"quote"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid payload"})
		return
	}
	pool, err := s.engine.CreatePool(payload.Base, payload.Quote)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":        pool.ID,
		"lpTokenId": pool.LPTokenID,
	})
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	pay := r.URL.Query().Get("pay")
	receive := r.URL.Query().Get("receive")
	price, err := s.engine.GetPrice(pay, receive)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"pay":     strings.ToUpper(strings.TrimSpace(pay)),
		"receive": strings.ToUpper(strings.TrimSpace(receive)),
		"price":   price,
	})
}

type hopPayload struct {
	PoolID         uint32 `json:"poolId"`
	PayTokenID     uint32 `json:"payTokenId"`
	PayAmount      string `json:"payAmount"`
	ReceiveTokenID uint32 `json:"receiveTokenId"`
	GrossReceive   string `json:"grossReceive"`
	LPFee          string `json:"lpFee"`
	GasFee         string `json:"gasFee"`
}

func hopsToPayload(hops []*amm.SwapCalc) []hopPayload {
	payload := make([]hopPayload, 0, len(hops))
	for _, hop := range hops {
		payload = append(payload, hopPayload{
			PoolID:         hop.PoolID,
			PayTokenID:     hop.PayTokenID,
			PayAmount:      hop.PayAmount.String(),
			ReceiveTokenID: hop.ReceiveTokenID,
			GrossReceive:   hop.ReceiveAmount.String(),
			LPFee:          hop.LPFee.String(),
			GasFee:         hop.GasFee.String(),
		})
	}
	return payload
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Pay            string `json:"pay"`
		Amount         string `json:"amount"`
		Receive        string `json:"receive"`
		FeeDiscountPct uint8  `json:"feeDiscountPct"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid payload"})
		return
	}
	amount, ok := parseAmount(payload.Amount)
	if !ok {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "positive integer amount required"})
		return
	}
	quote, err := s.engine.QuoteSwap(payload.Pay, amount, payload.Receive, payload.FeeDiscountPct)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"pay":            quote.PaySymbol,
		"payAmount":      quote.PayAmount.String(),
		"receive":        quote.ReceiveSymbol,
		"grossReceive":   quote.GrossReceive.String(),
		"netReceive":     quote.NetReceive.String(),
		"lpFee":          quote.LPFee.String(),
		"gasFee":         quote.GasFee.String(),
		"midPrice":       quote.MidPrice,
		"executionPrice": quote.ExecutionPrice,
		"slippagePct":    quote.SlippagePct,
		"hops":           hopsToPayload(quote.Hops),
	})
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Caller         string  `json:"caller"`
		Pay            string  `json:"pay"`
		Amount         string  `json:"amount"`
		Receive        string  `json:"receive"`
		MinReceive     string  `json:"minReceive"`
		MaxSlippagePct float64 `json:"maxSlippagePct"`
		Destination    string  `json:"destination"`
		FeeDiscountPct uint8   `json:"feeDiscountPct"`
		PullMode       string  `json:"pullMode"`
		TxRef          string  `json:"txRef"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid payload"})
		return
	}
	amount, ok := parseAmount(payload.Amount)
	if !ok {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "positive integer amount required"})
		return
	}
	pull, ok := parsePullSpec(payload.PullMode, payload.TxRef)
	if !ok {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid pull mode or missing txRef"})
		return
	}
	opts := amm.SwapOptions{
		MaxSlippagePct: payload.MaxSlippagePct,
		Destination:    payload.Destination,
		FeeDiscountPct: payload.FeeDiscountPct,
	}
	if strings.TrimSpace(payload.MinReceive) != "" {
		min, ok := parseAmount(payload.MinReceive)
		if !ok {
			s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid minReceive"})
			return
		}
		opts.MinReceive = min
	}
	receipt, err := s.engine.Swap(r.Context(), payload.Caller, payload.Pay, amount, payload.Receive, pull, opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"receiptId":      uuid.NewString(),
		"caller":         receipt.Caller,
		"pay":            receipt.PaySymbol,
		"payAmount":      receipt.PayAmount.String(),
		"payRef":         formatRef(receipt.PayRef),
		"receive":        receipt.ReceiveSymbol,
		"netReceive":     receipt.NetReceive.String(),
		"receiveRef":     formatRef(receipt.ReceiveRef),
		"lpFee":          receipt.LPFee.String(),
		"gasFee":         receipt.GasFee.String(),
		"executionPrice": receipt.ExecutionPrice,
		"slippagePct":    receipt.SlippagePct,
		"hops":           hopsToPayload(receipt.Hops),
	})
}

func (s *Server) handleAddLiquidity(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Caller   string `json:"caller"`
		Base     string `json:"base"`
		Quote    string `json:"quote"`
		AmountA  string `json:"amountA"`
		AmountB  string `json:"amountB"`
		PullMode string `json:"pullMode"`
		TxRefA   string `json:"txRefA"`
		TxRefB   string `json:"txRefB"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid payload"})
		return
	}
	amountA, okA := parseAmount(payload.AmountA)
	amountB, okB := parseAmount(payload.AmountB)
	if !okA || !okB {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "positive integer amounts required"})
		return
	}
	pullA, okA := parsePullSpec(payload.PullMode, payload.TxRefA)
	pullB, okB := parsePullSpec(payload.PullMode, payload.TxRefB)
	if !okA || !okB {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid pull mode or missing txRef"})
		return
	}
	receipt, err := s.engine.AddLiquidity(r.Context(), payload.Caller, payload.Base, payload.Quote, amountA, amountB, pullA, pullB)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"receiptId": uuid.NewString(),
		"caller":    receipt.Caller,
		"poolId":    receipt.PoolID,
		"base":      receipt.Symbol0,
		"quote":     receipt.Symbol1,
		"accepted0": receipt.Accepted0.String(),
		"accepted1": receipt.Accepted1.String(),
		"ref0":      formatRef(receipt.Ref0),
		"ref1":      formatRef(receipt.Ref1),
		"minted":    receipt.Minted.String(),
		"lpTokenId": receipt.LPTokenID,
	})
}

func (s *Server) handleRemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Caller      string `json:"caller"`
		Base        string `json:"base"`
		Quote       string `json:"quote"`
		Burn        string `json:"burn"`
		Destination string `json:"destination"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid payload"})
		return
	}
	burn, ok := parseAmount(payload.Burn)
	if !ok {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "positive integer burn amount required"})
		return
	}
	receipt, err := s.engine.RemoveLiquidity(r.Context(), payload.Caller, payload.Base, payload.Quote, burn, payload.Destination)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"receiptId": uuid.NewString(),
		"caller":    receipt.Caller,
		"poolId":    receipt.PoolID,
		"base":      receipt.Symbol0,
		"quote":     receipt.Symbol1,
		"burned":    receipt.Burned.String(),
		"payout0":   receipt.Payout0.String(),
		"payout1":   receipt.Payout1.String(),
		"ref0":      formatRef(receipt.Ref0),
		"ref1":      formatRef(receipt.Ref1),
	})
}
