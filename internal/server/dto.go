package server

import (
	"adventdrop/internal/domain"
	"adventdrop/internal/evaluate"
)

// Request payloads

type CommitSeasonRequest struct {
	Gifts []domain.GiftSpec `json:"gifts"`
}

type ExecuteDayRequest struct {
	Blockhash    string                     `json:"blockhash"`
	PoolAmount   domain.Amount              `json:"pool_amount"`
	Holders      []domain.HolderSnapshot    `json:"holders"`
	Transactions []domain.TransactionRecord `json:"transactions,omitempty"`
}

type VerifyRequest struct {
	Disclosure domain.Disclosure `json:"disclosure"`
}

// Response payloads

type CommitmentResponse struct {
	Season      string `json:"season"`
	Root        string `json:"root"`
	CommittedAt string `json:"committed_at"`
}

type DisclosureResponse struct {
	Disclosure domain.Disclosure `json:"disclosure"`
}

type VerificationResponse struct {
	Verification domain.Verification `json:"verification"`
}

type ExecutionResponse struct {
	Execution domain.Execution `json:"execution"`
}

type EventsResponse struct {
	Events []domain.Event `json:"events"`
}

func executeInputs(req ExecuteDayRequest) evaluate.Inputs {
	return evaluate.Inputs{
		Transactions: req.Transactions,
		Holders:      req.Holders,
		PoolAmount:   req.PoolAmount,
		Blockhash:    req.Blockhash,
	}
}
