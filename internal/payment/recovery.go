package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"agentpost/internal/domain"
	agentpost_errors "agentpost/pkg/errors"
)

// IndexerTx is the subset of a chain indexer's transaction response that
// recovery verification needs.
type IndexerTx struct {
	TxID          string `json:"tx_id"`
	TxStatus      string `json:"tx_status"`
	TxType        string `json:"tx_type"`
	SenderAddress string `json:"sender_address"`
	TokenTransfer *struct {
		RecipientAddress string `json:"recipient_address"`
		Amount           string `json:"amount"`
	} `json:"token_transfer,omitempty"`
	ContractCall *struct {
		ContractID   string `json:"contract_id"`
		FunctionName string `json:"function_name"`
	} `json:"contract_call,omitempty"`
	Events []IndexerEvent `json:"events,omitempty"`
}

// IndexerEvent is an asset event emitted by a confirmed transaction.
type IndexerEvent struct {
	EventType string `json:"event_type"`
	Asset     *struct {
		AssetID   string `json:"asset_id"`
		Sender    string `json:"sender"`
		Recipient string `json:"recipient"`
		Amount    string `json:"amount"`
	} `json:"asset,omitempty"`
}

// ChainIndexer fetches confirmed transaction details by id.
type ChainIndexer interface {
	GetTransaction(ctx context.Context, txid string) (*IndexerTx, error)
}

// HTTPIndexer talks to a Hiro-style chain indexing API.
type HTTPIndexer struct {
	url        string
	httpClient *http.Client
}

func NewHTTPIndexer(url string, timeout time.Duration) *HTTPIndexer {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &HTTPIndexer{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPIndexer) GetTransaction(ctx context.Context, txid string) (*IndexerTx, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/extended/v1/tx/0x%s", c.url, txid), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexer request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("indexer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, agentpost_errors.ErrTxNotFound
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read indexer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("indexer returned %d: %s", resp.StatusCode, string(body))
	}

	var tx IndexerTx
	if err := json.Unmarshal(body, &tx); err != nil {
		return nil, fmt.Errorf("failed to decode indexer response: %w", err)
	}
	return &tx, nil
}

// RecoveryVerifier accepts a confirmed on-chain transaction id in place of a
// live payload, for sends whose relay settlement timed out but whose
// transfer confirmed anyway. It is a pure verifier: double-redemption is the
// redemption ledger's concern, not handled here.
type RecoveryVerifier struct {
	policy  Policy
	indexer ChainIndexer
}

func NewRecoveryVerifier(policy Policy, indexer ChainIndexer) *RecoveryVerifier {
	return &RecoveryVerifier{policy: policy, indexer: indexer}
}

// Verify runs the four checks in order: confirmed, recognized transfer,
// amount floor, exact recipient. Each failure carries its own reason so the
// caller can decide whether to retry, wait, or abandon.
func (v *RecoveryVerifier) Verify(ctx context.Context, proof Proof, payTo string) (*Receipt, error) {
	if proof.Txid == "" {
		return nil, agentpost_errors.ErrInvalidInput
	}
	txid := domain.NormalizeTxid(proof.Txid)

	tx, err := v.indexer.GetTransaction(ctx, txid)
	if err != nil {
		return nil, err
	}

	switch tx.TxStatus {
	case "success":
	case "pending":
		return nil, agentpost_errors.ErrTxNotConfirmed
	default:
		return nil, fmt.Errorf("%w: status %q", agentpost_errors.ErrTxNotConfirmed, tx.TxStatus)
	}

	payer, recipient, amount, err := v.extractTransfer(tx)
	if err != nil {
		return nil, err
	}

	if amount < v.policy.MinAmount {
		return nil, fmt.Errorf("%w: %d < %d", agentpost_errors.ErrInsufficientAmount, amount, v.policy.MinAmount)
	}
	if recipient != payTo {
		return nil, fmt.Errorf("%w: paid %s", agentpost_errors.ErrWrongRecipient, recipient)
	}

	return &Receipt{Payer: payer, Txid: txid, Amount: amount}, nil
}

// extractTransfer pulls the payer, recipient and amount out of a recognized
// asset transfer. Arbitrary contract calls are rejected: only a native token
// transfer or a transfer call on the configured asset contract counts as
// payment.
func (v *RecoveryVerifier) extractTransfer(tx *IndexerTx) (payer, recipient string, amount uint64, err error) {
	switch tx.TxType {
	case "token_transfer":
		if tx.TokenTransfer == nil {
			return "", "", 0, agentpost_errors.ErrNotASupportedTransfer
		}
		amount, err = parseAmount(tx.TokenTransfer.Amount)
		if err != nil {
			return "", "", 0, err
		}
		return tx.SenderAddress, tx.TokenTransfer.RecipientAddress, amount, nil

	case "contract_call":
		if tx.ContractCall == nil || tx.ContractCall.FunctionName != "transfer" {
			return "", "", 0, agentpost_errors.ErrNotASupportedTransfer
		}
		if !strings.EqualFold(tx.ContractCall.ContractID, v.policy.Asset) {
			return "", "", 0, agentpost_errors.ErrNotASupportedTransfer
		}
		for _, ev := range tx.Events {
			if ev.EventType != "fungible_token_asset" || ev.Asset == nil {
				continue
			}
			if !strings.HasPrefix(ev.Asset.AssetID, v.policy.Asset) {
				continue
			}
			amount, err = parseAmount(ev.Asset.Amount)
			if err != nil {
				return "", "", 0, err
			}
			return ev.Asset.Sender, ev.Asset.Recipient, amount, nil
		}
		return "", "", 0, agentpost_errors.ErrNotASupportedTransfer

	default:
		return "", "", 0, agentpost_errors.ErrNotASupportedTransfer
	}
}

func parseAmount(s string) (uint64, error) {
	amount, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable transfer amount %q: %w", s, err)
	}
	return amount, nil
}
