package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// AxelarTransport ships attestation payloads through the Axelar GMP gateway.
// A dispatch pays delivery gas first (when any was charged), then hands the
// payload to the gateway. Once the gateway accepts the call the message is
// Axelar's responsibility; the transport does not track delivery.
type AxelarTransport struct {
	client *Client
	log    *zap.Logger
}

func NewAxelarTransport(client *Client, log *zap.Logger) *AxelarTransport {
	return &AxelarTransport{client: client, log: log}
}

func (t *AxelarTransport) Dispatch(ctx context.Context, chainName string, destAddr common.Address, payload []byte, gasFee *big.Int) error {
	c := t.client
	destHex := destAddr.Hex()

	if gasFee != nil && gasFee.Sign() > 0 {
		opts, err := c.transactOpts(ctx)
		if err != nil {
			return fmt.Errorf("build tx opts: %w", err)
		}
		opts.Value = gasFee

		tx, err := c.gasService.Transact(opts, "payNativeGasForContractCall",
			c.addr, chainName, destHex, payload, c.addr)
		if err != nil {
			return fmt.Errorf("payNativeGasForContractCall tx: %w", err)
		}
		receipt, err := bind.WaitMined(ctx, c.eth, tx)
		if err != nil {
			return fmt.Errorf("wait mined: %w", err)
		}
		if receipt.Status == 0 {
			return fmt.Errorf("gas payment reverted: %s", tx.Hash().Hex())
		}
	}

	opts, err := c.transactOpts(ctx)
	if err != nil {
		return fmt.Errorf("build tx opts: %w", err)
	}

	tx, err := c.gateway.Transact(opts, "callContract", chainName, destHex, payload)
	if err != nil {
		return fmt.Errorf("callContract tx: %w", err)
	}
	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return fmt.Errorf("wait mined: %w", err)
	}
	if receipt.Status == 0 {
		return fmt.Errorf("callContract reverted: %s", tx.Hash().Hex())
	}

	t.log.Info("payload handed to gateway",
		zap.String("chain", chainName),
		zap.String("dest", destHex),
		zap.String("tx", tx.Hash().Hex()),
	)
	return nil
}
