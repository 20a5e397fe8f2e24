package chainmaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"chainmaker.org/chainmaker/pb-go/v2/common"
	sdk "chainmaker.org/chainmaker/sdk-go/v2"

	"pvchain/config"
	"pvchain/internal/errs"
	"pvchain/ledger/types"
)

// Client is the wrapper around the ChainMaker SDK client
type Client struct {
	sdkClient sdk.ChainClient
	cfg       *config.LedgerConfig
	chainCfg  *ChainMakerConfig
	logger    *log.Logger
}

// NewClient initializes the ChainMaker SDK client with the combined configuration
func NewClient(cfg *config.LedgerConfig, logger *log.Logger) (*Client, error) {
	logger.Println("Initializing ChainMaker SDK client using builder pattern...")

	chainCfg, ok := cfg.ChainSpecific.(*ChainMakerConfig)
	if !ok {
		return nil, fmt.Errorf("invalid ChainMaker configuration type")
	}
	if chainCfg.ContractName == "" || chainCfg.CreateCommitmentMethodName == "" || chainCfg.GetCommitmentMethodName == "" {
		return nil, fmt.Errorf("commitment contract binding incomplete in config")
	}

	var clientOptions []sdk.ChainClientOption
	clientOptions = append(clientOptions, sdk.WithChainClientOrgId(chainCfg.OrgID))
	clientOptions = append(clientOptions, sdk.WithChainClientChainId(chainCfg.ChainID))
	clientOptions = append(clientOptions, sdk.WithUserKeyFilePath(chainCfg.UserKeyPath))
	clientOptions = append(clientOptions, sdk.WithUserCrtFilePath(chainCfg.UserCertPath))
	clientOptions = append(clientOptions, sdk.WithUserSignKeyFilePath(chainCfg.UserSignKeyPath))
	clientOptions = append(clientOptions, sdk.WithUserSignCrtFilePath(chainCfg.UserSignCertPath))

	if len(chainCfg.Nodes) == 0 {
		return nil, fmt.Errorf("no node configurations provided in config")
	}
	for _, nodeCfg := range chainCfg.Nodes {
		if nodeCfg.UseTLS && len(nodeCfg.CaPaths) == 0 {
			return nil, fmt.Errorf("node %s has TLS enabled but no CaPaths provided", nodeCfg.Address)
		}
		sdkNodeConfig := sdk.NewNodeConfig(
			sdk.WithNodeAddr(nodeCfg.Address),
			sdk.WithNodeConnCnt(nodeCfg.ConnCount),
			sdk.WithNodeUseTLS(nodeCfg.UseTLS),
			sdk.WithNodeCAPaths(nodeCfg.CaPaths),
			sdk.WithNodeTLSHostName(nodeCfg.TLSHostName),
		)
		clientOptions = append(clientOptions, sdk.AddChainClientNodeConfig(sdkNodeConfig))
	}

	if cfg.RetryLimit > 0 {
		clientOptions = append(clientOptions, sdk.WithRetryLimit(cfg.RetryLimit))
	}
	if cfg.RetryInterval > 0 {
		clientOptions = append(clientOptions, sdk.WithRetryInterval(cfg.RetryInterval))
	}

	client, err := sdk.NewChainClient(clientOptions...)
	if err != nil {
		logger.Printf("Failed to build ChainMaker SDK client: %v\n", err)
		return nil, err
	}

	err = client.EnableCertHash()
	if err != nil {
		logger.Printf("Warning: Failed to enable cert hash: %v\n", err)
	}

	logger.Println("ChainMaker SDK client initialized successfully.")

	return &Client{
		sdkClient: *client,
		cfg:       cfg,
		chainCfg:  chainCfg,
		logger:    logger,
	}, nil
}

// Config returns the configuration associated with the client.
func (c *Client) Config() any {
	if c.chainCfg == nil {
		log.Println("Warning: Accessing client config before initialization.")
		return &ChainMakerConfig{}
	}
	return c.chainCfg
}

// Close stops the SDK client
func (c *Client) Close() error {
	c.logger.Println("Closing ChainMaker SDK client...")
	if err := c.sdkClient.Stop(); err != nil {
		c.logger.Printf("Error stopping ChainMaker SDK client: %v", err)
		return fmt.Errorf("failed to stop ChainMaker SDK client: %w", err)
	}
	return nil
}

// Submit anchors a commitment and waits for the transaction to be confirmed.
// The contract holds at most one commitment per batch id; a pre-submit
// lookup turns a fingerprint mismatch into a conflicting_commitment error
// before any transaction is signed.
func (c *Client) Submit(ctx context.Context, batchID, fingerprint, storageRef, submitter string) (*types.AnchorProof, error) {
	if batchID == "" || fingerprint == "" {
		return nil, errs.New(errs.KindValidation, "ledger.submit", "batch id and fingerprint are required")
	}

	existing, err := c.Lookup(ctx, batchID)
	switch {
	case err == nil:
		if existing.Fingerprint != fingerprint {
			return nil, errs.Newf(errs.KindConflict, "ledger.submit",
				"batch %s already committed with fingerprint %s", batchID, existing.Fingerprint)
		}
		c.logger.Printf("ChainMaker: batch %s already committed with matching fingerprint, skipping submit", batchID)
		return &types.AnchorProof{TransactionID: existing.TxID}, nil
	case errs.KindOf(err) == errs.KindNotFound:
		// No commitment yet, proceed.
	default:
		return nil, err
	}

	kvs := []*common.KeyValuePair{
		{Key: c.chainCfg.ParamKeyBatchID, Value: []byte(batchID)},
		{Key: c.chainCfg.ParamKeyFingerprint, Value: []byte(fingerprint)},
		{Key: c.chainCfg.ParamKeyStorageRef, Value: []byte(storageRef)},
		{Key: c.chainCfg.ParamKeySubmitter, Value: []byte(submitter)},
		{Key: c.chainCfg.ParamKeyTimestamp, Value: []byte(time.Now().UTC().Format(time.RFC3339Nano))},
	}

	// withSyncResult=true makes the SDK poll until the transaction is
	// included, bounded by confirm_timeout_seconds. Either we observe a
	// confirmed transaction or we fail; there is no pending state returned.
	resp, err := c.sdkClient.InvokeContract(
		c.chainCfg.ContractName,
		c.chainCfg.CreateCommitmentMethodName,
		"",
		kvs,
		int64(c.cfg.ConfirmTimeoutSeconds),
		true,
	)
	if err != nil {
		return nil, classifySDKErr("ledger.submit", err)
	}

	if resp.Code != common.TxStatusCode_SUCCESS {
		if isDuplicateMessage(resp.Message) {
			// Raced with another submitter. Re-read chain state to decide
			// whether the winning commitment matches ours.
			return c.reconcileDuplicate(ctx, batchID, fingerprint)
		}
		return nil, errs.Newf(errs.KindNonRetryable, "ledger.submit",
			"contract execution failed: %s (code: %d)", resp.Message, resp.Code)
	}

	returnedID := ""
	if resp.ContractResult != nil {
		returnedID = string(resp.ContractResult.Result)
	}
	if returnedID != "" && returnedID != batchID {
		return nil, errs.Newf(errs.KindNonRetryable, "ledger.submit",
			"contract returned batch id '%s' does not match sent id '%s'", returnedID, batchID)
	}

	return &types.AnchorProof{TransactionID: resp.TxId, BlockHeight: resp.TxBlockHeight}, nil
}

// Lookup queries the contract for the commitment stored under batchID.
func (c *Client) Lookup(ctx context.Context, batchID string) (*types.Commitment, error) {
	if batchID == "" {
		return nil, errs.New(errs.KindValidation, "ledger.lookup", "batch id cannot be empty")
	}

	kvs := []*common.KeyValuePair{
		{Key: c.chainCfg.ParamKeyBatchID, Value: []byte(batchID)},
	}
	resp, err := c.sdkClient.QueryContract(
		c.chainCfg.ContractName,
		c.chainCfg.GetCommitmentMethodName,
		kvs,
		int64(c.cfg.LookupTimeoutSeconds),
	)
	if err != nil {
		return nil, classifySDKErr("ledger.lookup", err)
	}
	if resp.Code != common.TxStatusCode_SUCCESS {
		return nil, errs.Newf(errs.KindRetryable, "ledger.lookup",
			"contract query failed: %s (code: %d)", resp.Message, resp.Code)
	}
	if resp.ContractResult == nil || len(resp.ContractResult.Result) == 0 {
		return nil, errs.New(errs.KindNotFound, "ledger.lookup", "no commitment for batch "+batchID)
	}

	var commitment types.Commitment
	if err := json.Unmarshal(resp.ContractResult.Result, &commitment); err != nil {
		c.logger.Printf("Failed to unmarshal commitment JSON for batch %s. Raw result: %s", batchID, string(resp.ContractResult.Result))
		return nil, errs.Wrap(errs.KindNonRetryable, "ledger.lookup", "failed to unmarshal contract result", err)
	}
	if commitment.BatchID == "" {
		return nil, errs.New(errs.KindNotFound, "ledger.lookup", "no commitment for batch "+batchID)
	}
	return &commitment, nil
}

// reconcileDuplicate handles the submit race where the contract rejected our
// transaction because a commitment appeared after our pre-submit lookup.
func (c *Client) reconcileDuplicate(ctx context.Context, batchID, fingerprint string) (*types.AnchorProof, error) {
	existing, err := c.Lookup(ctx, batchID)
	if err != nil {
		return nil, errs.Wrap(errs.KindTimeout, "ledger.submit",
			"commitment exists but could not be read back", err)
	}
	if existing.Fingerprint != fingerprint {
		return nil, errs.Newf(errs.KindConflict, "ledger.submit",
			"batch %s already committed with fingerprint %s", batchID, existing.Fingerprint)
	}
	return &types.AnchorProof{TransactionID: existing.TxID}, nil
}

// classifySDKErr maps SDK transport failures onto the pipeline error
// taxonomy. Timeouts stay ambiguous: the transaction may have landed, so the
// caller must look the commitment up before retrying.
func classifySDKErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.KindTimeout, op, "confirmation wait timed out", err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return errs.Wrap(errs.KindTimeout, op, "confirmation wait timed out", err)
	case strings.Contains(msg, "insufficient"):
		return errs.Wrap(errs.KindNonRetryable, op, "insufficient funds for transaction", err)
	default:
		return errs.Wrap(errs.KindRetryable, op, "ledger network error", err)
	}
}

func isDuplicateMessage(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "already exists") || strings.Contains(m, "duplicate")
}
