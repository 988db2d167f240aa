package settlement

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// EVMConfig configures the on-chain settlement adapter.
type EVMConfig struct {
	RPCURL         string
	PrivateKeyHex  string
	SettlementAddr string
	GasLimit       uint64
	MaxRetries     int
	RetryBackoff   time.Duration
	ReceiptTimeout time.Duration
}

// EVM records settlement finality on an Ethereum-compatible chain: each
// transfer is submitted as a transaction carrying the transfer digest, and
// the mined transaction hash becomes the settlement reference.
type EVM struct {
	cfg       EVMConfig
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	key       *ecdsa.PrivateKey
	from      common.Address
	to        common.Address
	chainID   *big.Int
	signer    types.Signer
	logger    *zap.Logger
}

var _ Settler = (*EVM)(nil)

func NewEVM(ctx context.Context, cfg EVMConfig, logger *zap.Logger) (*EVM, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("eth rpc url is required")
	}
	if !common.IsHexAddress(cfg.SettlementAddr) {
		return nil, fmt.Errorf("invalid settlement address %q", cfg.SettlementAddr)
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = 100_000
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse settlement key: %w", err)
	}

	rpcClient, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	ethClient := ethclient.NewClient(rpcClient)

	chainID, err := ethClient.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("get chain id: %w", err)
	}

	return &EVM{
		cfg:       cfg,
		rpcClient: rpcClient,
		ethClient: ethClient,
		key:       key,
		from:      crypto.PubkeyToAddress(key.PublicKey),
		to:        common.HexToAddress(cfg.SettlementAddr),
		chainID:   chainID,
		signer:    types.LatestSignerForChainID(chainID),
		logger:    logger,
	}, nil
}

// Close closes the underlying RPC client.
func (e *EVM) Close() {
	if e.rpcClient != nil {
		e.rpcClient.Close()
	}
}

// Settle submits the transfer digest on chain and waits for inclusion.
func (e *EVM) Settle(ctx context.Context, transfer Transfer) (string, error) {
	payload, err := json.Marshal(transfer)
	if err != nil {
		return "", fmt.Errorf("encode transfer: %w", err)
	}
	digest := crypto.Keccak256(payload)

	var signed *types.Transaction
	err = withRetry(ctx, e.logger, e.cfg.MaxRetries, e.cfg.RetryBackoff, func(ctx context.Context) error {
		nonce, err := e.ethClient.PendingNonceAt(ctx, e.from)
		if err != nil {
			return fmt.Errorf("pending nonce: %w", err)
		}
		gasPrice, err := e.ethClient.SuggestGasPrice(ctx)
		if err != nil {
			return fmt.Errorf("suggest gas price: %w", err)
		}

		tx := types.NewTransaction(nonce, e.to, big.NewInt(0), e.cfg.GasLimit, gasPrice, digest)
		signed, err = types.SignTx(tx, e.signer, e.key)
		if err != nil {
			return fmt.Errorf("sign settlement tx: %w", err)
		}
		return e.ethClient.SendTransaction(ctx, signed)
	})
	if err != nil {
		return "", fmt.Errorf("submit settlement: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, e.cfg.ReceiptTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, e.ethClient, signed)
	if err != nil {
		return "", fmt.Errorf("wait settlement %s: %w", signed.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("settlement tx %s reverted", signed.Hash().Hex())
	}

	e.logger.Info("settlement recorded",
		zap.String("tx", signed.Hash().Hex()),
		zap.String("kind", transfer.Kind),
		zap.String("pair", transfer.PairKey),
		zap.Uint64("block", receipt.BlockNumber.Uint64()),
	)

	return signed.Hash().Hex(), nil
}
