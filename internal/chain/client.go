// Package chain wraps go-ethereum access to the source chain: the Axelar
// gateway and gas service for outbound attestations, and ERC-20 escrow
// transfers for the onramp.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/filozone/onramp-relay/internal/config"
)

const (
	gatewayABI = `[{"type":"function","name":"callContract","stateMutability":"nonpayable","inputs":[{"name":"destinationChain","type":"string"},{"name":"destinationContractAddress","type":"string"},{"name":"payload","type":"bytes"}],"outputs":[]}]`

	gasServiceABI = `[{"type":"function","name":"payNativeGasForContractCall","stateMutability":"payable","inputs":[{"name":"sender","type":"address"},{"name":"destinationChain","type":"string"},{"name":"destinationAddress","type":"string"},{"name":"payload","type":"bytes"},{"name":"refundAddress","type":"address"}],"outputs":[]}]`

	erc20ABI = `[{"type":"function","name":"transferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}]`
)

// Client wraps go-ethereum with hand-rolled bindings for the Axelar gateway
// and gas service.
type Client struct {
	eth        *ethclient.Client
	chainID    *big.Int
	key        *ecdsa.PrivateKey
	addr       common.Address
	gateway    *bind.BoundContract
	gasService *bind.BoundContract
	erc20      abi.ABI
}

func NewClient(cfg *config.Config) (*Client, error) {
	eth, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	key, err := crypto.HexToECDSA(cfg.Chain.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("parse relay signing key: %w", err)
	}

	gwABI, err := abi.JSON(strings.NewReader(gatewayABI))
	if err != nil {
		return nil, fmt.Errorf("parse gateway abi: %w", err)
	}
	gsABI, err := abi.JSON(strings.NewReader(gasServiceABI))
	if err != nil {
		return nil, fmt.Errorf("parse gas service abi: %w", err)
	}
	tokABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	return &Client{
		eth:        eth,
		chainID:    big.NewInt(cfg.Chain.ChainID),
		key:        key,
		addr:       crypto.PubkeyToAddress(key.PublicKey),
		gateway:    bind.NewBoundContract(common.HexToAddress(cfg.Chain.GatewayAddress), gwABI, eth, eth, eth),
		gasService: bind.NewBoundContract(common.HexToAddress(cfg.Chain.GasServiceAddress), gsABI, eth, eth, eth),
		erc20:      tokABI,
	}, nil
}

// Address returns the relay's signing address.
func (c *Client) Address() common.Address { return c.addr }

// ChainID returns the configured chain ID.
func (c *Client) ChainID() *big.Int { return c.chainID }

// transactOpts builds a *bind.TransactOpts signed by the relay key.
func (c *Client) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, err
	}
	auth.Context = ctx
	return auth, nil
}

// TransferFrom pulls ERC-20 payment from the client into the relay's escrow
// address. The caller must have approved the relay beforehand.
func (c *Client) TransferFrom(ctx context.Context, token common.Address, from common.Address, amount *big.Int) error {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return fmt.Errorf("build tx opts: %w", err)
	}

	bound := bind.NewBoundContract(token, c.erc20, c.eth, c.eth, c.eth)
	tx, err := bound.Transact(opts, "transferFrom", from, c.addr, amount)
	if err != nil {
		return fmt.Errorf("transferFrom tx: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return fmt.Errorf("wait mined: %w", err)
	}
	if receipt.Status == 0 {
		return fmt.Errorf("transferFrom reverted: %s", tx.Hash().Hex())
	}
	return nil
}

// Transfer sends ERC-20 tokens from the relay's escrow address back out.
func (c *Client) Transfer(ctx context.Context, token common.Address, to common.Address, amount *big.Int) error {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return fmt.Errorf("build tx opts: %w", err)
	}

	bound := bind.NewBoundContract(token, c.erc20, c.eth, c.eth, c.eth)
	tx, err := bound.Transact(opts, "transfer", to, amount)
	if err != nil {
		return fmt.Errorf("transfer tx: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return fmt.Errorf("wait mined: %w", err)
	}
	if receipt.Status == 0 {
		return fmt.Errorf("transfer reverted: %s", tx.Hash().Hex())
	}
	return nil
}
